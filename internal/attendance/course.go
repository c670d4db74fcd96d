package attendance

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"classattend/internal/apperr"
)

// NewCourse is the input to CreateCourse.
type NewCourse struct {
	Code         string
	Name         string
	InstructorID string
}

// CreateCourse registers a course.
func (s *Service) CreateCourse(ctx context.Context, in NewCourse) (Course, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return Course{}, apperr.Invalid("course code and name required")
	}
	c := Course{
		ID:           uuid.NewString(),
		Code:         in.Code,
		Name:         in.Name,
		InstructorID: in.InstructorID,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateCourse(ctx, c); err != nil {
		return Course{}, err
	}
	return c, nil
}

// Enroll adds students to a course. Re-enrolling is a no-op.
func (s *Service) Enroll(ctx context.Context, courseID string, studentIDs ...string) error {
	for _, id := range studentIDs {
		if strings.TrimSpace(id) == "" {
			return apperr.Invalid("student id required")
		}
		if err := s.store.Enroll(ctx, courseID, id); err != nil {
			return err
		}
	}
	return nil
}

// ListEnrolled returns the course's student ids in ascending order.
func (s *Service) ListEnrolled(ctx context.Context, courseID string) ([]string, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ListEnrolled(ctx, courseID)
}

// GetCourse returns a course by id.
func (s *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return s.store.GetCourse(ctx, id)
}
