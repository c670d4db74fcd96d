//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/identity"
	"classattend/internal/store"
)

func setupPostgres(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "attendance",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	db, err := store.NewDB(ctx, fmt.Sprintf("postgres://test:test@%s:%s/attendance?sslmode=disable", host, port.Port()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupPostgres(t)
	n, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no pending migrations, applied %d", n)
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := attendance.NewRepository(db.Client)
	vectors := identity.NewPostgresStore(db.Client)
	svc := attendance.NewService(repo)

	course, err := svc.CreateCourse(ctx, attendance.NewCourse{Code: "C101", Name: "Intro"})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	if err := svc.Enroll(ctx, course.ID, "a", "b", "c"); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	today := attendance.CivilDate(time.Now().UTC())
	sess, err := svc.CreateSession(ctx, attendance.NewSession{CourseID: course.ID, Date: today, Start: 540, End: 600})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, err = svc.CreateSession(ctx, attendance.NewSession{CourseID: course.ID, Date: today, Start: 570, End: 630})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	res, err := svc.StartSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Seeded != 3 {
		t.Fatalf("seeded %d, want 3", res.Seeded)
	}
	if _, err := svc.StartSession(ctx, sess.ID); apperr.KindOf(err) != apperr.KindState {
		t.Fatalf("expected state error on second start, got %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := attendance.StatusPresent
			if i%2 == 1 {
				status = attendance.StatusLate
			}
			if _, err := svc.RecordManual(ctx, attendance.ManualEntry{SessionID: sess.ID, StudentID: "a", Status: status, Actor: "prof"}); err != nil {
				t.Errorf("manual %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if err := identity.Register(ctx, vectors, identity.Vector{PersonID: "b", Embedding: []float32{0, 0, 0}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	ref, ok, err := vectors.Get(ctx, "b")
	if err != nil || !ok || len(ref.Embedding) != 3 {
		t.Fatalf("vector round trip: %+v %v %v", ref, ok, err)
	}

	ex, err := svc.FileExcuse(ctx, sess.ID, "c", "sick")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if _, err := svc.FileExcuse(ctx, sess.ID, "c", "again"); apperr.KindOf(err) != apperr.KindDuplicate {
		t.Fatalf("expected duplicate, got %v", err)
	}
	_, rec, err := svc.ReviewExcuse(ctx, attendance.Review{ExcuseID: ex.ID, Decision: attendance.ExcuseApproved, Reviewer: "prof"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if rec == nil || rec.Status != attendance.StatusExcused {
		t.Fatalf("expected excused record, got %+v", rec)
	}

	closed, err := svc.CloseSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Summary == nil || closed.Summary.Total != 3 || closed.Summary.Excused != 1 || closed.Summary.Absent != 1 {
		t.Fatalf("unexpected summary %+v", closed.Summary)
	}

	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Summary == nil || *got.Summary != *closed.Summary {
		t.Fatalf("summary not persisted: %+v", got.Summary)
	}

	_, err = repo.UpsertRecord(ctx, attendance.RecordKey{SessionID: sess.ID, StudentID: "a"}, func(r *attendance.Record) error {
		r.Status = attendance.StatusAbsent
		return nil
	})
	if !errors.Is(err, apperr.ErrSessionNotOpen) {
		t.Fatalf("expected session_not_open after close, got %v", err)
	}

	if err := svc.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if recs, _ := repo.ListRecords(ctx, sess.ID); len(recs) != 0 {
		t.Fatalf("records should cascade, got %d", len(recs))
	}
}
