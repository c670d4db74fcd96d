package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classattend/internal/apperr"
)

// DefaultLateTolerance applies when a session is created without one.
const DefaultLateTolerance = 10 * time.Minute

// NewSession is the input to CreateSession.
type NewSession struct {
	CourseID      string
	Date          time.Time
	Start         TimeOfDay
	End           TimeOfDay
	LateTolerance time.Duration
}

// CreateSession validates and schedules a session. Overlap with an existing
// session of the same course on the same date is rejected with a conflict.
func (s *Service) CreateSession(ctx context.Context, in NewSession) (Session, error) {
	if in.CourseID == "" {
		return Session{}, apperr.Invalid("course id required")
	}
	if in.Date.IsZero() {
		return Session{}, apperr.Invalid("date required")
	}
	if !in.Start.Valid() || !in.End.Valid() {
		return Session{}, apperr.Invalid("start and end must fall within one day")
	}
	if in.Start >= in.End {
		return Session{}, apperr.Invalid("start %s must be before end %s", in.Start, in.End)
	}
	if in.LateTolerance < 0 {
		return Session{}, apperr.Invalid("late tolerance must not be negative")
	}
	if in.LateTolerance == 0 {
		in.LateTolerance = DefaultLateTolerance
	}
	if _, err := s.store.GetCourse(ctx, in.CourseID); err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:            uuid.NewString(),
		CourseID:      in.CourseID,
		Date:          CivilDate(in.Date),
		Start:         in.Start,
		End:           in.End,
		LateTolerance: in.LateTolerance,
		CreatedAt:     s.now(),
	}
	err := s.store.CreateSession(ctx, sess, func(existing []Session) error {
		return CheckSchedule(existing, sess)
	})
	if err != nil {
		return Session{}, err
	}
	s.obs.SessionTransition(StateScheduled)
	return sess, nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	return s.store.GetSession(ctx, id)
}

// ListSessions returns sessions matching f, newest first.
func (s *Service) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	return s.store.ListSessions(ctx, f)
}

// DeleteSession removes a session together with its records and excuses.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.store.DeleteSession(ctx, id)
}

// StartResult reports a successful start.
type StartResult struct {
	Session Session `json:"session"`
	Seeded  int     `json:"seeded"`
}

// StartSession opens check-in and seeds an absent record for every enrolled
// student that has none yet.
func (s *Service) StartSession(ctx context.Context, id string) (StartResult, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return StartResult{}, err
	}
	if sess.StartedAt != nil {
		return StartResult{}, apperr.ErrAlreadyStarted.With("session_id", id).With("started_at", *sess.StartedAt)
	}

	students, err := s.store.ListEnrolled(ctx, sess.CourseID)
	if err != nil {
		return StartResult{}, fmt.Errorf("list enrolled: %w", err)
	}
	now := s.now()
	seeded, err := s.store.SeedRecords(ctx, id, students, now)
	if err != nil {
		return StartResult{}, fmt.Errorf("seed records: %w", err)
	}

	sess, err = s.store.UpdateSession(ctx, id, func(cur *Session) error {
		if cur.StartedAt != nil {
			return apperr.ErrAlreadyStarted.With("session_id", id).With("started_at", *cur.StartedAt)
		}
		cur.StartedAt = &now
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}
	s.obs.SessionTransition(StateStarted)
	return StartResult{Session: sess, Seeded: seeded}, nil
}

// CloseSession ends check-in and stores a summary of the ledger as it stood
// at close time. Both are written together.
func (s *Service) CloseSession(ctx context.Context, id string) (Session, error) {
	now := s.now()
	sess, err := s.store.CloseSession(ctx, id, func(cur *Session, records []Record) error {
		switch cur.State() {
		case StateScheduled:
			return apperr.ErrNotStarted.With("session_id", id)
		case StateClosed:
			return apperr.ErrAlreadyClosed.With("session_id", id).With("closed_at", *cur.ClosedAt)
		}
		sum := Summarize(records)
		cur.ClosedAt = &now
		cur.Summary = &sum
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.obs.SessionTransition(StateClosed)
	return sess, nil
}

// openSession loads a session and requires it to accept check-ins.
func (s *Service) openSession(ctx context.Context, id string) (Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !sess.Open() {
		return Session{}, errNotOpen(sess)
	}
	return sess, nil
}
