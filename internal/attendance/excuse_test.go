package attendance

import (
	"context"
	"testing"

	"classattend/internal/apperr"
)

func TestFileExcuseForFutureSession(t *testing.T) {
	f := newFixture(t)
	tomorrow := f.session(t, classDay.AddDate(0, 0, 1), "09:00", "10:00")
	_, err := f.svc.FileExcuse(context.Background(), tomorrow.ID, "a", "travel")
	expectErr(t, err, apperr.ErrFutureSession)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("future session should be a validation error, got %s", apperr.KindOf(err))
	}

	today := f.session(t, classDay, "09:00", "10:00")
	if _, err := f.svc.FileExcuse(context.Background(), today.ID, "a", "travel"); err != nil {
		t.Fatalf("excuse for today should be accepted: %v", err)
	}
}

func TestFileExcuseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, classDay, "09:00", "10:00")

	_, err := f.svc.FileExcuse(ctx, s.ID, "a", "   ")
	expectErr(t, err, apperr.ErrInvalidInput)
	_, err = f.svc.FileExcuse(ctx, s.ID, "stranger", "sick")
	expectErr(t, err, apperr.ErrNotEnrolled)
	_, err = f.svc.FileExcuse(ctx, "missing", "a", "sick")
	expectErr(t, err, apperr.ErrNotFound)

	if _, err := f.svc.FileExcuse(ctx, s.ID, "a", "sick"); err != nil {
		t.Fatalf("file: %v", err)
	}
	_, err = f.svc.FileExcuse(ctx, s.ID, "a", "still sick")
	expectErr(t, err, apperr.ErrDuplicateExcuse)
}

func TestReviewExcuseTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	ex, err := f.svc.FileExcuse(ctx, s.ID, "a", "sick")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	approved, _, err := f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseApproved, Reviewer: "prof", Comment: "ok"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if approved.Status != ExcuseApproved || approved.ReviewedBy == nil || approved.ReviewedAt == nil || approved.ReviewComment != "ok" {
		t.Fatalf("unexpected reviewed excuse %+v", approved)
	}

	_, _, err = f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseRejected, Reviewer: "prof"})
	expectErr(t, err, apperr.ErrAlreadyReviewed)

	got, _ := f.svc.GetExcuse(ctx, ex.ID)
	if got.Status != ExcuseApproved {
		t.Fatalf("excuse changed after second review: %+v", got)
	}
}

func TestReviewExcuseValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	ex, _ := f.svc.FileExcuse(ctx, s.ID, "a", "sick")

	_, _, err := f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcusePending, Reviewer: "prof"})
	expectErr(t, err, apperr.ErrInvalidInput)
	_, _, err = f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseApproved})
	expectErr(t, err, apperr.ErrInvalidInput)
	_, _, err = f.svc.ReviewExcuse(ctx, Review{ExcuseID: "missing", Decision: ExcuseApproved, Reviewer: "prof"})
	expectErr(t, err, apperr.ErrNotFound)
}

func TestRejectedExcuseKeepsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	if _, err := f.svc.RecordManual(ctx, ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusLate, Actor: "prof"}); err != nil {
		t.Fatalf("manual: %v", err)
	}
	ex, _ := f.svc.FileExcuse(ctx, s.ID, "a", "bus")
	_, rec, err := f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseRejected, Reviewer: "prof"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if rec != nil {
		t.Fatalf("rejection must not write a record, got %+v", rec)
	}
	got, _ := f.svc.GetRecord(ctx, s.ID, "a")
	if got.Status != StatusLate {
		t.Fatalf("Status = %s, want late", got.Status)
	}
}

func TestApprovedExcuseOverridesCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	if _, err := f.svc.RecordManual(ctx, ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusPresent, Actor: "prof"}); err != nil {
		t.Fatalf("manual: %v", err)
	}
	ex, _ := f.svc.FileExcuse(ctx, s.ID, "a", "left early")
	_, rec, err := f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseApproved, Reviewer: "dean"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if rec.Status != StatusExcused || rec.CheckInAt != nil || rec.VerifiedByBiometric {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.ModifiedBy == nil || *rec.ModifiedBy != "dean" {
		t.Fatalf("ModifiedBy = %v, want dean", rec.ModifiedBy)
	}
}

func TestApprovedExcuseCreatesMissingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Never started, so nothing was seeded.
	s := f.session(t, classDay.AddDate(0, 0, -2), "09:00", "10:00")
	ex, err := f.svc.FileExcuse(ctx, s.ID, "b", "funeral")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	_, rec, err := f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseApproved, Reviewer: "prof"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if rec == nil || rec.Status != StatusExcused || !rec.Persisted {
		t.Fatalf("expected persisted excused record, got %+v", rec)
	}
	records, _ := f.store.ListRecords(ctx, s.ID)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
}

func TestExcuseOwnerEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	ex, _ := f.svc.FileExcuse(ctx, s.ID, "a", "sick")

	_, err := f.svc.UpdateExcuseReason(ctx, ex.ID, "b", "hijack")
	expectErr(t, err, apperr.ErrNotFound)

	updated, err := f.svc.UpdateExcuseReason(ctx, ex.ID, "a", "flu")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Reason != "flu" {
		t.Fatalf("Reason = %q, want flu", updated.Reason)
	}

	err = f.svc.WithdrawExcuse(ctx, ex.ID, "b")
	expectErr(t, err, apperr.ErrNotFound)
	if err := f.svc.WithdrawExcuse(ctx, ex.ID, "a"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := f.svc.FileExcuse(ctx, s.ID, "a", "flu"); err != nil {
		t.Fatalf("refile after withdraw: %v", err)
	}
}

func TestReviewedExcuseIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	ex, _ := f.svc.FileExcuse(ctx, s.ID, "a", "sick")
	if _, _, err := f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseRejected, Reviewer: "prof"}); err != nil {
		t.Fatalf("review: %v", err)
	}
	_, err := f.svc.UpdateExcuseReason(ctx, ex.ID, "a", "really sick")
	expectErr(t, err, apperr.ErrAlreadyReviewed)
	err = f.svc.WithdrawExcuse(ctx, ex.ID, "a")
	expectErr(t, err, apperr.ErrAlreadyReviewed)
}

func TestListExcusesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	exA, _ := f.svc.FileExcuse(ctx, s.ID, "a", "sick")
	f.svc.FileExcuse(ctx, s.ID, "b", "sick")
	f.svc.ReviewExcuse(ctx, Review{ExcuseID: exA.ID, Decision: ExcuseApproved, Reviewer: "prof"})

	tests := []struct {
		name   string
		filter ExcuseFilter
		want   int
	}{
		{name: "all", filter: ExcuseFilter{}, want: 2},
		{name: "by student", filter: ExcuseFilter{StudentID: "a"}, want: 1},
		{name: "pending", filter: ExcuseFilter{Status: ExcusePending}, want: 1},
		{name: "by course", filter: ExcuseFilter{CourseID: f.course.ID}, want: 2},
		{name: "other course", filter: ExcuseFilter{CourseID: "other"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListExcuses(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d excuses, want %d", len(got), tt.want)
			}
		})
	}
}
