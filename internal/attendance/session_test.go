package attendance

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"classattend/internal/apperr"
)

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		in   NewSession
		want *apperr.Error
	}{
		{name: "start equals end", in: NewSession{CourseID: f.course.ID, Date: classDay, Start: 540, End: 540}, want: apperr.ErrInvalidInput},
		{name: "start after end", in: NewSession{CourseID: f.course.ID, Date: classDay, Start: 600, End: 540}, want: apperr.ErrInvalidInput},
		{name: "negative tolerance", in: NewSession{CourseID: f.course.ID, Date: classDay, Start: 540, End: 600, LateTolerance: -time.Minute}, want: apperr.ErrInvalidInput},
		{name: "missing date", in: NewSession{CourseID: f.course.ID, Start: 540, End: 600}, want: apperr.ErrInvalidInput},
		{name: "past midnight", in: NewSession{CourseID: f.course.ID, Date: classDay, Start: 540, End: 24 * 60}, want: apperr.ErrInvalidInput},
		{name: "unknown course", in: NewSession{CourseID: "nope", Date: classDay, Start: 540, End: 600}, want: apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSession(ctx, tt.in)
			expectErr(t, err, tt.want)
		})
	}
}

func TestCreateSessionDefaultsTolerance(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, classDay.Add(15*time.Hour), "09:00", "10:00")
	if s.LateTolerance != DefaultLateTolerance {
		t.Errorf("LateTolerance = %v, want %v", s.LateTolerance, DefaultLateTolerance)
	}
	if !s.Date.Equal(classDay) {
		t.Errorf("Date = %v, want %v", s.Date, classDay)
	}
	if s.State() != StateScheduled {
		t.Errorf("State = %s, want scheduled", s.State())
	}
	want := classDay.Add(9*time.Hour + 10*time.Minute)
	if got := s.LateAfter(time.UTC); !got.Equal(want) {
		t.Errorf("LateAfter = %v, want %v", got, want)
	}
}

func TestCreateSessionRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.session(t, classDay, "09:00", "10:00")

	_, err := f.svc.CreateSession(ctx, NewSession{CourseID: f.course.ID, Date: classDay, Start: mustTime(t, "09:30"), End: mustTime(t, "10:30")})
	expectErr(t, err, apperr.ErrScheduleConflict)
	e, _ := apperr.As(err)
	if e.Details["existing_session_id"] != existing.ID {
		t.Errorf("conflict should name %s, got %v", existing.ID, e.Details)
	}

	f.session(t, classDay, "10:00", "11:00")
	f.session(t, classDay.AddDate(0, 0, 1), "09:30", "10:30")

	other, err := f.svc.CreateCourse(ctx, NewCourse{Code: "C102", Name: "Other"})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	if _, err := f.svc.CreateSession(ctx, NewSession{CourseID: other.ID, Date: classDay, Start: mustTime(t, "09:30"), End: mustTime(t, "10:30")}); err != nil {
		t.Fatalf("other course should not conflict: %v", err)
	}
}

func TestStartSessionTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, classDay, "09:00", "10:00")
	first, err := f.svc.StartSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clock.Advance(time.Minute)
	_, err = f.svc.StartSession(ctx, s.ID)
	expectErr(t, err, apperr.ErrAlreadyStarted)

	got, err := f.svc.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.StartedAt.Equal(*first.Session.StartedAt) {
		t.Errorf("StartedAt changed from %v to %v", *first.Session.StartedAt, *got.StartedAt)
	}
}

func TestStartSessionConcurrentStartsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, classDay, "09:00", "10:00")

	errs := make(chan error, 10)
	for i := 0; i < cap(errs); i++ {
		go func() {
			_, err := f.svc.StartSession(ctx, s.ID)
			errs <- err
		}()
	}
	ok := 0
	for i := 0; i < cap(errs); i++ {
		err := <-errs
		if err == nil {
			ok++
			continue
		}
		expectErr(t, err, apperr.ErrAlreadyStarted)
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful start, got %d", ok)
	}
	records, _ := f.store.ListRecords(ctx, s.ID)
	if len(records) != 3 {
		t.Fatalf("expected 3 seeded records, got %d", len(records))
	}
}

func TestCloseSessionTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, classDay, "09:00", "10:00")

	_, err := f.svc.CloseSession(ctx, s.ID)
	expectErr(t, err, apperr.ErrNotStarted)

	if _, err := f.svc.StartSession(ctx, s.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.RecordManual(ctx, ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusLate, Actor: "prof"}); err != nil {
		t.Fatalf("manual: %v", err)
	}
	closed, err := f.svc.CloseSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.State() != StateClosed {
		t.Fatalf("State = %s, want closed", closed.State())
	}
	got := *closed.Summary
	if got.Late != 1 || got.Absent != 2 || got.Total != 3 || math.Abs(got.AttendanceRate-100.0/3) > 1e-9 {
		t.Errorf("unexpected summary %+v", got)
	}

	_, err = f.svc.CloseSession(ctx, s.ID)
	expectErr(t, err, apperr.ErrAlreadyClosed)

	_, err = f.svc.StartSession(ctx, s.ID)
	expectErr(t, err, apperr.ErrAlreadyStarted)
}

func TestCheckInRequiresOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, classDay, "09:00", "10:00")
	entry := ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusPresent, Actor: "prof"}

	_, err := f.svc.RecordManual(ctx, entry)
	expectErr(t, err, apperr.ErrSessionNotOpen)

	if _, err := f.svc.StartSession(ctx, s.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.CloseSession(ctx, s.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = f.svc.RecordManual(ctx, entry)
	expectErr(t, err, apperr.ErrSessionNotOpen)
	_, _, err = f.svc.CheckInBiometric(ctx, s.ID, "a", []float32{0})
	expectErr(t, err, apperr.ErrSessionNotOpen)
}

// closeBeforeWrite closes the session just before the first record write
// reaches the store.
type closeBeforeWrite struct {
	Store
	t    *testing.T
	svc  *Service
	once sync.Once
}

func (c *closeBeforeWrite) UpsertRecord(ctx context.Context, key RecordKey, fn func(*Record) error) (Record, error) {
	c.once.Do(func() {
		if _, err := c.svc.CloseSession(ctx, key.SessionID); err != nil {
			c.t.Errorf("close: %v", err)
		}
	})
	return c.Store.UpsertRecord(ctx, key, fn)
}

func TestCloseBetweenCheckAndWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	wrapped := &closeBeforeWrite{Store: f.store, t: t}
	svc := NewService(wrapped, WithClock(f.clock))
	wrapped.svc = svc

	_, err := svc.RecordManual(ctx, ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusPresent, Actor: "prof"})
	expectErr(t, err, apperr.ErrSessionNotOpen)

	rec, _ := svc.GetRecord(ctx, s.ID, "a")
	if rec.Status != StatusAbsent {
		t.Fatalf("record written after close: %+v", rec)
	}
	got, _ := svc.GetSession(ctx, s.ID)
	if got.State() != StateClosed || got.Summary == nil {
		t.Fatalf("expected closed session with summary, got %+v", got)
	}
	if got.Summary.Present != 0 || got.Summary.Absent != 3 {
		t.Errorf("summary disagrees with ledger: %+v", *got.Summary)
	}
}

func TestStoreRefusesWritesToClosedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	if _, err := f.svc.CloseSession(ctx, s.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := f.store.UpsertRecord(ctx, RecordKey{SessionID: s.ID, StudentID: "a"}, func(r *Record) error {
		r.Status = StatusLate
		return nil
	})
	expectErr(t, err, apperr.ErrSessionNotOpen)

	ex, err := f.svc.FileExcuse(ctx, s.ID, "a", "sick")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	_, rec, err := f.svc.ReviewExcuse(ctx, Review{ExcuseID: ex.ID, Decision: ExcuseApproved, Reviewer: "prof"})
	if err != nil {
		t.Fatalf("approval after close should still write: %v", err)
	}
	if rec == nil || rec.Status != StatusExcused {
		t.Fatalf("expected excused record, got %+v", rec)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	if _, err := f.svc.FileExcuse(ctx, s.ID, "a", "sick"); err != nil {
		t.Fatalf("file: %v", err)
	}
	if err := f.svc.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetSession(ctx, s.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if recs, _ := f.store.ListRecords(ctx, s.ID); len(recs) != 0 {
		t.Errorf("expected records removed, got %d", len(recs))
	}
	if ex, _ := f.svc.ListExcuses(ctx, ExcuseFilter{StudentID: "a"}); len(ex) != 0 {
		t.Errorf("expected excuses removed, got %d", len(ex))
	}
	// The pair is free again once the session is gone.
	s2 := f.startedSession(t)
	if _, err := f.svc.FileExcuse(ctx, s2.ID, "a", "sick"); err != nil {
		t.Fatalf("file on new session: %v", err)
	}
}
