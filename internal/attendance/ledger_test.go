package attendance

import (
	"context"
	"testing"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/facematch"
	"classattend/internal/identity"
)

func TestManualRoundTripClearsCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)

	var rec Record
	for _, st := range []Status{StatusAbsent, StatusPresent, StatusAbsent} {
		var err error
		rec, err = f.svc.RecordManual(ctx, ManualEntry{SessionID: s.ID, StudentID: "a", Status: st, Actor: "prof"})
		if err != nil {
			t.Fatalf("manual %s: %v", st, err)
		}
		f.clock.Advance(time.Minute)
	}
	if rec.CheckInAt != nil || rec.VerifiedByBiometric || rec.MatchConfidence != nil {
		t.Fatalf("absent record carries check-in data: %+v", rec)
	}
	if !rec.ManualOverride || rec.ModifiedBy == nil || *rec.ModifiedBy != "prof" || rec.Source != SourceManual {
		t.Fatalf("audit fields not set: %+v", rec)
	}
}

func TestManualOverrideClearsBiometric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	if _, err := f.svc.RecordBiometric(ctx, s.ID, "a", facematch.Decision{Accepted: true, Distance: 0.2, Confidence: 0.8, Threshold: 0.6}); err != nil {
		t.Fatalf("biometric: %v", err)
	}
	rec, err := f.svc.RecordManual(ctx, ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusExcused, Actor: "prof", Reason: "  field trip "})
	if err != nil {
		t.Fatalf("manual: %v", err)
	}
	if rec.CheckInAt != nil || rec.VerifiedByBiometric || rec.MatchConfidence != nil {
		t.Fatalf("expected check-in data cleared, got %+v", rec)
	}
	if rec.OverrideReason == nil || *rec.OverrideReason != "field trip" {
		t.Fatalf("OverrideReason = %v", rec.OverrideReason)
	}
}

func TestManualIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	entry := ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusPresent, Actor: "prof", Reason: "arrived"}

	first, err := f.svc.RecordManual(ctx, entry)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	f.clock.Advance(5 * time.Minute)
	second, err := f.svc.RecordManual(ctx, entry)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if !second.CheckInAt.Equal(*first.CheckInAt) {
		t.Errorf("CheckInAt moved from %v to %v", *first.CheckInAt, *second.CheckInAt)
	}
	second.UpdatedAt = first.UpdatedAt
	if second.Status != first.Status || second.Source != first.Source || *second.OverrideReason != *first.OverrideReason || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("record changed: %+v -> %+v", first, second)
	}
}

func TestManualValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	tests := []struct {
		name  string
		entry ManualEntry
		want  *apperr.Error
	}{
		{name: "unknown status", entry: ManualEntry{SessionID: s.ID, StudentID: "a", Status: "asleep", Actor: "prof"}, want: apperr.ErrInvalidInput},
		{name: "missing actor", entry: ManualEntry{SessionID: s.ID, StudentID: "a", Status: StatusPresent}, want: apperr.ErrInvalidInput},
		{name: "not enrolled", entry: ManualEntry{SessionID: s.ID, StudentID: "z", Status: StatusPresent, Actor: "prof"}, want: apperr.ErrNotEnrolled},
		{name: "unknown session", entry: ManualEntry{SessionID: "missing", StudentID: "a", Status: StatusPresent, Actor: "prof"}, want: apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordManual(ctx, tt.entry)
			expectErr(t, err, tt.want)
		})
	}
}

func TestBiometricRejectLeavesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	if err := identity.Register(ctx, f.vectors, identity.Vector{PersonID: "a", Embedding: []float32{0, 0}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	before, _ := f.svc.GetRecord(ctx, s.ID, "a")

	_, d, err := f.svc.CheckInBiometric(ctx, s.ID, "a", []float32{0.8, 0})
	expectErr(t, err, apperr.ErrVerificationFailed)
	if d.Accepted {
		t.Fatal("decision should be rejected")
	}
	e, _ := apperr.As(err)
	if _, ok := e.Details["confidence"]; !ok {
		t.Errorf("error should carry confidence, got %v", e.Details)
	}

	after, _ := f.svc.GetRecord(ctx, s.ID, "a")
	if after != before {
		t.Errorf("ledger changed on reject: %+v -> %+v", before, after)
	}
	if len(f.attempts.list) != 1 || f.attempts.list[0].Accepted {
		t.Errorf("expected one rejected attempt logged, got %+v", f.attempts.list)
	}
}

func TestBiometricWithoutReference(t *testing.T) {
	f := newFixture(t)
	s := f.startedSession(t)
	_, _, err := f.svc.CheckInBiometric(context.Background(), s.ID, "a", []float32{0, 0})
	expectErr(t, err, apperr.ErrNoReference)
	if len(f.attempts.list) != 0 {
		t.Errorf("no attempt should be logged without a reference")
	}
}

func TestGetRecordDefaultDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, classDay, "09:00", "10:00")

	rec, err := f.svc.GetRecord(ctx, s.ID, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusAbsent || rec.Persisted {
		t.Fatalf("expected default absent view, got %+v", rec)
	}
	if _, ok, _ := f.store.GetRecord(ctx, rec.Key()); ok {
		t.Fatal("default view must not be written")
	}

	_, err = f.svc.GetRecord(ctx, "missing", "a")
	expectErr(t, err, apperr.ErrNotFound)
}

func TestStoreRejectsBrokenRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.startedSession(t)
	key := RecordKey{SessionID: s.ID, StudentID: "a"}
	now := time.Now()

	tests := []struct {
		name string
		fn   func(*Record) error
	}{
		{name: "absent with check-in", fn: func(r *Record) error { r.CheckInAt = &now; return nil }},
		{name: "verified without confidence", fn: func(r *Record) error {
			r.Status = StatusPresent
			r.VerifiedByBiometric = true
			return nil
		}},
		{name: "key change", fn: func(r *Record) error { r.StudentID = "b"; return nil }},
		{name: "unknown status", fn: func(r *Record) error { r.Status = "gone"; return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.UpsertRecord(ctx, key, tt.fn)
			expectErr(t, err, apperr.ErrInvariant)
		})
	}
	rec, _, _ := f.store.GetRecord(ctx, key)
	if err := rec.Check(); err != nil || rec.Status != StatusAbsent {
		t.Fatalf("stored record should be untouched, got %+v (%v)", rec, err)
	}
}
