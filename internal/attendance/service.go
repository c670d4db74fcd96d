package attendance

import (
	"context"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/facematch"
)

// Attempt is one biometric verification outcome, kept for audit.
type Attempt struct {
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	Accepted   bool      `json:"accepted"`
	Distance   float64   `json:"distance"`
	Confidence float64   `json:"confidence"`
	Threshold  float64   `json:"threshold"`
	At         time.Time `json:"at"`
}

// AttemptLog is an append-only sink for verification attempts.
type AttemptLog interface {
	Append(ctx context.Context, a Attempt) error
}

// Observer receives domain events, typically for metrics.
type Observer interface {
	SessionTransition(state SessionState)
	RecordWritten(source Source, status Status)
	VerificationDecided(accepted bool)
	ExcuseReviewed(status ExcuseStatus)
}

type nopObserver struct{}

func (nopObserver) SessionTransition(SessionState) {}
func (nopObserver) RecordWritten(Source, Status) {}
func (nopObserver) VerificationDecided(bool) {}
func (nopObserver) ExcuseReviewed(ExcuseStatus) {}

// Service coordinates session lifecycle, the ledger and excuses.
type Service struct {
	store    Store
	clock    Clock
	loc      *time.Location
	decider  *facematch.Decider
	attempts AttemptLog
	obs      Observer
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithLocation sets the zone used for calendar dates ("today", session start).
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithDecider enables biometric check-in.
func WithDecider(d *facematch.Decider) Option { return func(s *Service) { s.decider = d } }

// WithAttemptLog records every biometric decision.
func WithAttemptLog(l AttemptLog) Option { return func(s *Service) { s.attempts = l } }

// WithObserver registers an event observer.
func WithObserver(o Observer) Option { return func(s *Service) { s.obs = o } }

// NewService creates a service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, clock: SystemClock{}, loc: time.UTC, obs: nopObserver{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the backing store for read-only collaborators.
func (s *Service) Store() Store { return s.store }

// Location returns the zone used for calendar dates.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// today is the current civil date in the service's zone.
func (s *Service) today() time.Time { return CivilDate(s.clock.Now().In(s.loc)) }

func (s *Service) requireEnrolled(ctx context.Context, courseID, studentID string) error {
	ok, err := s.store.IsEnrolled(ctx, courseID, studentID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrNotEnrolled.With("course_id", courseID).With("student_id", studentID)
	}
	return nil
}
