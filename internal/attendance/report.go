package attendance

import (
	"context"
	"sort"
	"time"

	"classattend/internal/apperr"
)

// Report is the ledger of one session with its tallies.
type Report struct {
	Session   Session   `json:"session"`
	Records   []Record  `json:"records"`
	Summary   Summary   `json:"summary"`
	LateAfter time.Time `json:"late_after"`
}

// Report returns every record of the session, including default absent views
// for enrolled students that have no stored record.
func (s *Service) Report(ctx context.Context, sessionID string) (Report, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}
	records, err := s.store.ListRecords(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}
	students, err := s.store.ListEnrolled(ctx, sess.CourseID)
	if err != nil {
		return Report{}, err
	}
	have := make(map[string]bool, len(records))
	for _, r := range records {
		have[r.StudentID] = true
	}
	for _, id := range students {
		if !have[id] {
			records = append(records, newRecord(RecordKey{SessionID: sessionID, StudentID: id}))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StudentID < records[j].StudentID })

	return Report{
		Session:   sess,
		Records:   records,
		Summary:   Summarize(records),
		LateAfter: sess.LateAfter(s.loc),
	}, nil
}

// StudentStats aggregates one student's records, optionally within a course.
type StudentStats struct {
	StudentID string   `json:"student_id"`
	CourseID  string   `json:"course_id,omitempty"`
	Summary   Summary  `json:"summary"`
	Records   []Record `json:"records"`
}

// StudentStats returns the student's stored records, newest session first.
func (s *Service) StudentStats(ctx context.Context, studentID, courseID string) (StudentStats, error) {
	if studentID == "" {
		return StudentStats{}, apperr.Invalid("student id required")
	}
	records, err := s.store.ListStudentRecords(ctx, studentID, courseID)
	if err != nil {
		return StudentStats{}, err
	}
	return StudentStats{
		StudentID: studentID,
		CourseID:  courseID,
		Summary:   Summarize(records),
		Records:   records,
	}, nil
}
