package attendance

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"classattend/internal/apperr"
)

// FileExcuse creates a pending excuse for a session that has already taken
// place or takes place today.
func (s *Service) FileExcuse(ctx context.Context, sessionID, studentID, reason string) (Excuse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Excuse{}, apperr.Invalid("reason required")
	}
	if studentID == "" {
		return Excuse{}, apperr.Invalid("student id required")
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Excuse{}, err
	}
	if today := s.today(); sess.Date.After(today) {
		return Excuse{}, apperr.ErrFutureSession.
			With("session_date", sess.Date.Format("2006-01-02")).
			With("today", today.Format("2006-01-02"))
	}
	if err := s.requireEnrolled(ctx, sess.CourseID, studentID); err != nil {
		return Excuse{}, err
	}

	e := Excuse{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		StudentID: studentID,
		Reason:    reason,
		Status:    ExcusePending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateExcuse(ctx, e); err != nil {
		return Excuse{}, err
	}
	return e, nil
}

// Review is an instructor's decision on an excuse.
type Review struct {
	ExcuseID string
	Decision ExcuseStatus
	Reviewer string
	Comment  string
}

// ReviewExcuse settles a pending excuse. Approval forces the pair's record to
// excused in the same store transaction, creating it when missing. The
// returned record is nil for rejections.
func (s *Service) ReviewExcuse(ctx context.Context, rv Review) (Excuse, *Record, error) {
	if rv.Decision != ExcuseApproved && rv.Decision != ExcuseRejected {
		return Excuse{}, nil, apperr.Invalid("decision must be approved or rejected, got %q", rv.Decision)
	}
	if strings.TrimSpace(rv.Reviewer) == "" {
		return Excuse{}, nil, apperr.Invalid("reviewer required")
	}

	now := s.now()
	reviewer := rv.Reviewer
	e, rec, err := s.store.ReviewExcuse(ctx, rv.ExcuseID,
		func(e *Excuse) error {
			if e.Status != ExcusePending {
				return apperr.ErrAlreadyReviewed.With("excuse_id", e.ID).With("status", e.Status)
			}
			e.Status = rv.Decision
			e.ReviewedBy = &reviewer
			e.ReviewedAt = &now
			e.ReviewComment = strings.TrimSpace(rv.Comment)
			return nil
		},
		func(r *Record) error {
			r.Status = StatusExcused
			r.Source = SourceExcuse
			r.clearCheckIn()
			r.ModifiedBy = &reviewer
			touch(r, now)
			return nil
		},
	)
	if err != nil {
		return Excuse{}, nil, err
	}
	s.obs.ExcuseReviewed(e.Status)
	if rec != nil {
		s.obs.RecordWritten(SourceExcuse, rec.Status)
	}
	return e, rec, nil
}

// GetExcuse returns an excuse by id.
func (s *Service) GetExcuse(ctx context.Context, id string) (Excuse, error) {
	return s.store.GetExcuse(ctx, id)
}

// ListExcuses returns excuses matching f, newest first.
func (s *Service) ListExcuses(ctx context.Context, f ExcuseFilter) ([]Excuse, error) {
	return s.store.ListExcuses(ctx, f)
}

// UpdateExcuseReason lets the filing student edit a pending excuse.
func (s *Service) UpdateExcuseReason(ctx context.Context, id, studentID, reason string) (Excuse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Excuse{}, apperr.Invalid("reason required")
	}
	return s.store.UpdateExcuse(ctx, id, func(e *Excuse) error {
		if err := ownPending(*e, studentID); err != nil {
			return err
		}
		e.Reason = reason
		return nil
	})
}

// WithdrawExcuse deletes a pending excuse on behalf of the filing student.
func (s *Service) WithdrawExcuse(ctx context.Context, id, studentID string) error {
	e, err := s.store.GetExcuse(ctx, id)
	if err != nil {
		return err
	}
	if err := ownPending(e, studentID); err != nil {
		return err
	}
	return s.store.DeleteExcuse(ctx, id)
}

// ownPending hides excuses of other students behind not-found.
func ownPending(e Excuse, studentID string) error {
	if e.StudentID != studentID {
		return apperr.NotFound("excuse", e.ID)
	}
	if e.Status != ExcusePending {
		return apperr.ErrAlreadyReviewed.With("excuse_id", e.ID).With("status", e.Status)
	}
	return nil
}
