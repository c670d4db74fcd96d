package attendance

import (
	"context"
	"time"

	"classattend/internal/apperr"
)

// Store persists courses, sessions, records and excuses.
//
// Implementations must make every mutator-based method atomic: the mutator
// observes the latest committed row and its result is written before any other
// writer on the same row can observe it. Mutators must not call back into the
// store.
type Store interface {
	CreateCourse(ctx context.Context, c Course) error
	GetCourse(ctx context.Context, id string) (Course, error)
	Enroll(ctx context.Context, courseID, studentID string) error
	ListEnrolled(ctx context.Context, courseID string) ([]string, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)

	// CreateSession inserts s once guard accepts the sessions already stored
	// for the same course and date. Guard and insert are atomic per course/date.
	CreateSession(ctx context.Context, s Session, guard func(existing []Session) error) error
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, id string, fn func(*Session) error) (Session, error)
	// CloseSession applies fn to the session together with its records, read
	// while the session is locked against ledger writes. Record writes through
	// UpsertRecord cannot interleave with fn.
	CloseSession(ctx context.Context, id string, fn func(cur *Session, records []Record) error) (Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]Session, error)
	// DeleteSession removes a session with its records and excuses.
	DeleteSession(ctx context.Context, id string) error

	// SeedRecords inserts an absent record for each student lacking one and
	// returns how many rows were created. Existing records are untouched.
	SeedRecords(ctx context.Context, sessionID string, studentIDs []string, at time.Time) (int, error)
	// UpsertRecord applies fn to the pair's record, starting from an absent
	// record with Persisted=false when none exists. It fails with
	// ErrSessionNotOpen unless the session is started and not closed at the
	// moment of the write.
	UpsertRecord(ctx context.Context, key RecordKey, fn func(*Record) error) (Record, error)
	GetRecord(ctx context.Context, key RecordKey) (Record, bool, error)
	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
	ListStudentRecords(ctx context.Context, studentID, courseID string) ([]Record, error)

	CreateExcuse(ctx context.Context, e Excuse) error
	GetExcuse(ctx context.Context, id string) (Excuse, error)
	UpdateExcuse(ctx context.Context, id string, fn func(*Excuse) error) (Excuse, error)
	// ReviewExcuse applies review to the excuse and, if the excuse ends up
	// approved, applies onApprove to the pair's record in the same transaction.
	// The returned record is nil when onApprove did not run.
	ReviewExcuse(ctx context.Context, id string, review func(*Excuse) error, onApprove func(*Record) error) (Excuse, *Record, error)
	DeleteExcuse(ctx context.Context, id string) error
	ListExcuses(ctx context.Context, f ExcuseFilter) ([]Excuse, error)
}

// mutateRecord applies fn to a copy of cur and rejects results that change the
// record's identity or break its invariants.
func mutateRecord(cur Record, fn func(*Record) error) (Record, error) {
	next := cur
	if err := fn(&next); err != nil {
		return Record{}, err
	}
	if next.Key() != cur.Key() {
		return Record{}, errKeyChanged(cur.Key(), next.Key())
	}
	if err := next.Check(); err != nil {
		return Record{}, err
	}
	next.Persisted = true
	return next, nil
}

func errKeyChanged(from, to RecordKey) error {
	return apperr.Invariant("record key changed from %s/%s to %s/%s", from.SessionID, from.StudentID, to.SessionID, to.StudentID)
}

func errNotOpen(s Session) error {
	return apperr.ErrSessionNotOpen.With("session_id", s.ID).With("state", s.State())
}
