package attendance

import (
	"context"
	"log"
	"strings"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/facematch"
)

// ManualEntry is an instructor's direct status assignment.
type ManualEntry struct {
	SessionID string
	StudentID string
	Status    Status
	Actor     string
	Reason    string
}

// RecordManual sets a student's status by hand. Repeating the same entry only
// moves UpdatedAt.
func (s *Service) RecordManual(ctx context.Context, e ManualEntry) (Record, error) {
	if !e.Status.Valid() {
		return Record{}, apperr.Invalid("unknown status %q", e.Status)
	}
	if strings.TrimSpace(e.Actor) == "" {
		return Record{}, apperr.Invalid("actor required")
	}
	if e.StudentID == "" {
		return Record{}, apperr.Invalid("student id required")
	}
	sess, err := s.openSession(ctx, e.SessionID)
	if err != nil {
		return Record{}, err
	}
	if err := s.requireEnrolled(ctx, sess.CourseID, e.StudentID); err != nil {
		return Record{}, err
	}

	now := s.now()
	actor := e.Actor
	var reason *string
	if r := strings.TrimSpace(e.Reason); r != "" {
		reason = &r
	}
	rec, err := s.store.UpsertRecord(ctx, RecordKey{SessionID: e.SessionID, StudentID: e.StudentID}, func(r *Record) error {
		r.Status = e.Status
		r.Source = SourceManual
		r.ManualOverride = true
		r.ModifiedBy = &actor
		r.OverrideReason = reason
		if e.Status.CheckedIn() {
			if r.CheckInAt == nil {
				r.CheckInAt = &now
			}
		} else {
			r.clearCheckIn()
		}
		touch(r, now)
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.obs.RecordWritten(SourceManual, rec.Status)
	return rec, nil
}

// RecordBiometric applies a verdict from the decider. A rejected verdict
// leaves the ledger untouched and fails with the verdict's numbers attached.
func (s *Service) RecordBiometric(ctx context.Context, sessionID, studentID string, d facematch.Decision) (Record, error) {
	sess, err := s.openSession(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if err := s.requireEnrolled(ctx, sess.CourseID, studentID); err != nil {
		return Record{}, err
	}
	return s.recordBiometric(ctx, RecordKey{SessionID: sessionID, StudentID: studentID}, d)
}

func (s *Service) recordBiometric(ctx context.Context, key RecordKey, d facematch.Decision) (Record, error) {
	if !d.Accepted {
		return Record{}, verificationFailed(d)
	}
	now := s.now()
	conf := d.Confidence
	rec, err := s.store.UpsertRecord(ctx, key, func(r *Record) error {
		r.Status = StatusPresent
		r.Source = SourceBiometric
		r.VerifiedByBiometric = true
		r.MatchConfidence = &conf
		r.CheckInAt = &now
		touch(r, now)
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.obs.RecordWritten(SourceBiometric, rec.Status)
	return rec, nil
}

// CheckInBiometric compares candidate against the student's registered face
// and records the verdict. Every verdict is appended to the attempt log.
func (s *Service) CheckInBiometric(ctx context.Context, sessionID, studentID string, candidate []float32) (Record, facematch.Decision, error) {
	if s.decider == nil {
		return Record{}, facematch.Decision{}, apperr.Invalid("biometric check-in is not configured")
	}
	sess, err := s.openSession(ctx, sessionID)
	if err != nil {
		return Record{}, facematch.Decision{}, err
	}
	if err := s.requireEnrolled(ctx, sess.CourseID, studentID); err != nil {
		return Record{}, facematch.Decision{}, err
	}

	d, err := s.decider.DecideFor(ctx, studentID, candidate)
	if err != nil {
		return Record{}, facematch.Decision{}, err
	}
	s.obs.VerificationDecided(d.Accepted)
	s.logAttempt(ctx, sessionID, studentID, d)

	rec, err := s.recordBiometric(ctx, RecordKey{SessionID: sessionID, StudentID: studentID}, d)
	return rec, d, err
}

func (s *Service) logAttempt(ctx context.Context, sessionID, studentID string, d facematch.Decision) {
	if s.attempts == nil {
		return
	}
	err := s.attempts.Append(ctx, Attempt{
		SessionID:  sessionID,
		StudentID:  studentID,
		Accepted:   d.Accepted,
		Distance:   d.Distance,
		Confidence: d.Confidence,
		Threshold:  d.Threshold,
		At:         s.now(),
	})
	if err != nil {
		log.Printf("attempt log append failed session=%s student=%s: %v", sessionID, studentID, err)
	}
}

// GetRecord returns the stored record, or the default absent view when the
// pair has none. It never writes.
func (s *Service) GetRecord(ctx context.Context, sessionID, studentID string) (Record, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return Record{}, err
	}
	key := RecordKey{SessionID: sessionID, StudentID: studentID}
	rec, ok, err := s.store.GetRecord(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return newRecord(key), nil
	}
	return rec, nil
}

func verificationFailed(d facematch.Decision) error {
	return apperr.ErrVerificationFailed.
		With("confidence", d.Confidence).
		With("distance", d.Distance).
		With("threshold", d.Threshold)
}

func touch(r *Record, now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
