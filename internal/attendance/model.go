package attendance

import (
	"encoding/json"
	"fmt"
	"time"

	"classattend/internal/apperr"
)

// Status is the attendance status of one student in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
)

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusExcused:
		return true
	default:
		return false
	}
}

// CheckedIn reports whether the status implies the student was in class.
func (s Status) CheckedIn() bool {
	return s == StatusPresent || s == StatusLate
}

// Source records which path last wrote a record.
type Source string

const (
	SourceSeed      Source = "seed"
	SourceManual    Source = "manual"
	SourceBiometric Source = "biometric"
	SourceExcuse    Source = "excuse"
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, apperr.Invalid("invalid time of day %q, expected HH:MM", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Valid reports whether t falls within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && t < 24*60 }

// MarshalText encodes t as "HH:MM".
func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes "HH:MM".
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// CivilDate truncates t to its calendar date in t's location and returns it
// as midnight UTC, the canonical form for Session.Date.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperr.Invalid("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// SessionState is the lifecycle state derived from a session's timestamps.
type SessionState string

const (
	StateScheduled SessionState = "scheduled"
	StateStarted   SessionState = "started"
	StateClosed    SessionState = "closed"
)

// Session is a time-bounded attendance window for one course on one date.
type Session struct {
	ID            string        `json:"id"`
	CourseID      string        `json:"course_id"`
	Date          time.Time     `json:"date"`
	Start         TimeOfDay     `json:"start"`
	End           TimeOfDay     `json:"end"`
	LateTolerance time.Duration `json:"-"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
	Summary       *Summary      `json:"summary,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type sessionJSON Session

// MarshalJSON reports the late tolerance in whole minutes, matching the
// late_tolerance_minutes field sessions are created with.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		sessionJSON
		LateToleranceMinutes int `json:"late_tolerance_minutes"`
	}{sessionJSON(s), int(s.LateTolerance / time.Minute)})
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var v struct {
		sessionJSON
		LateToleranceMinutes int `json:"late_tolerance_minutes"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Session(v.sessionJSON)
	s.LateTolerance = time.Duration(v.LateToleranceMinutes) * time.Minute
	return nil
}

// State derives the lifecycle state.
func (s Session) State() SessionState {
	switch {
	case s.ClosedAt != nil:
		return StateClosed
	case s.StartedAt != nil:
		return StateStarted
	default:
		return StateScheduled
	}
}

// Open reports whether check-ins are accepted.
func (s Session) Open() bool { return s.State() == StateStarted }

// StartsAt returns the scheduled start instant in loc.
func (s Session) StartsAt(loc *time.Location) time.Time {
	y, m, d := s.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(s.Start) * time.Minute)
}

// LateAfter is the instant after which an arrival counts as late.
func (s Session) LateAfter(loc *time.Location) time.Time {
	return s.StartsAt(loc).Add(s.LateTolerance)
}

// RecordKey identifies the single record of a student in a session.
type RecordKey struct {
	SessionID string
	StudentID string
}

// Record is the attendance of one student in one session.
type Record struct {
	SessionID           string     `json:"session_id"`
	StudentID           string     `json:"student_id"`
	Status              Status     `json:"status"`
	Source              Source     `json:"source"`
	CheckInAt           *time.Time `json:"check_in_at,omitempty"`
	VerifiedByBiometric bool       `json:"verified_by_biometric"`
	MatchConfidence     *float64   `json:"match_confidence,omitempty"`
	ManualOverride      bool       `json:"manual_override"`
	OverrideReason      *string    `json:"override_reason,omitempty"`
	ModifiedBy          *string    `json:"modified_by,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// Persisted is false for the default view of a pair with no stored row.
	Persisted bool `json:"persisted"`
}

// Key returns the record's identity.
func (r Record) Key() RecordKey { return RecordKey{SessionID: r.SessionID, StudentID: r.StudentID} }

// clearCheckIn resets the fields that only make sense while checked in.
func (r *Record) clearCheckIn() {
	r.CheckInAt = nil
	r.VerifiedByBiometric = false
	r.MatchConfidence = nil
}

// Check returns an invariant violation when the record is inconsistent.
func (r Record) Check() error {
	if !r.Status.Valid() {
		return apperr.Invariant("record %s/%s has unknown status %q", r.SessionID, r.StudentID, r.Status)
	}
	if !r.Status.CheckedIn() && (r.CheckInAt != nil || r.VerifiedByBiometric) {
		return apperr.Invariant("record %s/%s is %s but carries check-in data", r.SessionID, r.StudentID, r.Status)
	}
	if r.VerifiedByBiometric && r.MatchConfidence == nil {
		return apperr.Invariant("record %s/%s verified without confidence", r.SessionID, r.StudentID)
	}
	if r.MatchConfidence != nil && (*r.MatchConfidence < 0 || *r.MatchConfidence > 1) {
		return apperr.Invariant("record %s/%s confidence %v out of range", r.SessionID, r.StudentID, *r.MatchConfidence)
	}
	return nil
}

// newRecord is the rest state of a pair: absent, nothing recorded.
func newRecord(key RecordKey) Record {
	return Record{SessionID: key.SessionID, StudentID: key.StudentID, Status: StatusAbsent, Source: SourceSeed}
}

// ExcuseStatus is the review state of an excuse.
type ExcuseStatus string

const (
	ExcusePending  ExcuseStatus = "pending"
	ExcuseApproved ExcuseStatus = "approved"
	ExcuseRejected ExcuseStatus = "rejected"
)

// Excuse is a student's justification for missing a session.
type Excuse struct {
	ID            string       `json:"id"`
	SessionID     string       `json:"session_id"`
	StudentID     string       `json:"student_id"`
	Reason        string       `json:"reason"`
	Status        ExcuseStatus `json:"status"`
	ReviewedBy    *string      `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time   `json:"reviewed_at,omitempty"`
	ReviewComment string       `json:"review_comment,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Course groups sessions and enrolled students.
type Course struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	InstructorID string    `json:"instructor_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary counts records per status.
type Summary struct {
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	Excused        int     `json:"excused"`
	Total          int     `json:"total"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// Summarize tallies records. The rate counts present and late as attended.
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			s.Present++
		case StatusLate:
			s.Late++
		case StatusAbsent:
			s.Absent++
		case StatusExcused:
			s.Excused++
		}
	}
	s.Total = s.Present + s.Late + s.Absent + s.Excused
	if s.Total > 0 {
		s.AttendanceRate = float64(s.Present+s.Late) / float64(s.Total) * 100
	}
	return s
}

// SessionFilter narrows ListSessions. Zero fields are ignored.
type SessionFilter struct {
	CourseID string
	From     time.Time
	To       time.Time
}

// ExcuseFilter narrows ListExcuses. Zero fields are ignored.
type ExcuseFilter struct {
	StudentID string
	CourseID  string
	Status    ExcuseStatus
}
