package attempts

import (
	"context"
	"testing"

	"classattend/internal/attendance"
)

func TestMemoryLogNewestFirstAndCapped(t *testing.T) {
	l := NewMemoryLog(3)
	ctx := context.Background()
	for _, student := range []string{"a", "b", "c", "d"} {
		if err := l.Append(ctx, attendance.Attempt{SessionID: "s1", StudentID: student}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	l.Append(ctx, attendance.Attempt{SessionID: "s2", StudentID: "z"})

	got, err := l.List(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"d", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %d attempts, want %d", len(got), len(want))
	}
	for i, a := range got {
		if a.StudentID != want[i] {
			t.Errorf("attempt %d = %s, want %s", i, a.StudentID, want[i])
		}
	}

	limited, _ := l.List(ctx, "s1", 1)
	if len(limited) != 1 || limited[0].StudentID != "d" {
		t.Fatalf("limit 1 = %+v", limited)
	}
	if none, _ := l.List(ctx, "unknown", 10); len(none) != 0 {
		t.Fatalf("expected no attempts, got %d", len(none))
	}
}
