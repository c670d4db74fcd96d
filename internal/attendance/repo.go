package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"classattend/internal/apperr"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository persists courses, sessions, records and excuses in Postgres.
// Mutator methods run in a transaction holding a row lock on the target row.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// CreateCourse inserts a course; codes are unique.
func (r *Repository) CreateCourse(ctx context.Context, c Course) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (id, code, name, instructor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Code, c.Name, c.InstructorID, c.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return apperr.Invalid("course code %s already in use", c.Code)
	}
	return err
}

// GetCourse returns a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, instructor_id, created_at FROM courses WHERE id = $1
	`, id).Scan(&c.ID, &c.Code, &c.Name, &c.InstructorID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, apperr.NotFound("course", id)
	}
	return c, err
}

// Enroll adds a student to a course.
func (r *Repository) Enroll(ctx context.Context, courseID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO course_students (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, courseID, studentID)
	if pgCode(err) == pgForeignKeyViolation {
		return apperr.NotFound("course", courseID)
	}
	return err
}

// ListEnrolled returns student ids in ascending order.
func (r *Repository) ListEnrolled(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM course_students WHERE course_id = $1 ORDER BY student_id
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsEnrolled reports course membership.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM course_students WHERE course_id = $1 AND student_id = $2)
	`, courseID, studentID).Scan(&ok)
	return ok, err
}

const sessionColumns = `id, course_id, session_date, start_minute, end_minute, late_tolerance_seconds, started_at, closed_at, summary, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s       Session
		start   int
		end     int
		tolSecs int64
		summary []byte
	)
	if err := row.Scan(&s.ID, &s.CourseID, &s.Date, &start, &end, &tolSecs, &s.StartedAt, &s.ClosedAt, &summary, &s.CreatedAt); err != nil {
		return Session{}, err
	}
	s.Date = CivilDate(s.Date)
	s.Start, s.End = TimeOfDay(start), TimeOfDay(end)
	s.LateTolerance = time.Duration(tolSecs) * time.Second
	if len(summary) > 0 {
		var sum Summary
		if err := json.Unmarshal(summary, &sum); err != nil {
			return Session{}, fmt.Errorf("decode summary of session %s: %w", s.ID, err)
		}
		s.Summary = &sum
	}
	return s, nil
}

type querier interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

func querySessions(ctx context.Context, q querier, query string, args ...any) ([]Session, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CreateSession runs guard and the insert under a transaction-scoped advisory
// lock keyed on course and date, so concurrent proposals for the same day
// are checked one at a time.
func (r *Repository) CreateSession(ctx context.Context, s Session, guard func(existing []Session) error) error {
	day := s.Date.Format(time.DateOnly)
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.CourseID+"/"+day); err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}
		if guard != nil {
			existing, err := querySessions(ctx, tx, `
				SELECT `+sessionColumns+` FROM sessions
				WHERE course_id = $1 AND session_date = $2
				ORDER BY start_minute
			`, s.CourseID, day)
			if err != nil {
				return err
			}
			if err := guard(existing); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, course_id, session_date, start_minute, end_minute, late_tolerance_seconds, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, s.ID, s.CourseID, day, int(s.Start), int(s.End), int64(s.LateTolerance/time.Second), s.CreatedAt)
		switch pgCode(err) {
		case pgUniqueViolation:
			return apperr.Invariant("session %s already exists", s.ID)
		case pgForeignKeyViolation:
			return apperr.NotFound("course", s.CourseID)
		}
		return err
	})
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.NotFound("session", id)
	}
	return s, err
}

// UpdateSession applies fn to the session under a row lock.
func (r *Repository) UpdateSession(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	var out Session
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := lockSession(ctx, tx, id, "FOR NO KEY UPDATE")
		if err != nil {
			return err
		}
		next := cur
		if err := fn(&next); err != nil {
			return err
		}
		out = next
		return writeSessionTx(ctx, tx, id, next)
	})
	return out, err
}

// CloseSession locks the session row, reads its records in the same
// transaction and applies fn. UpsertRecord holds a share lock on the row, so
// no record write can commit between the read and the update.
func (r *Repository) CloseSession(ctx context.Context, id string, fn func(*Session, []Record) error) (Session, error) {
	var out Session
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := lockSession(ctx, tx, id, "FOR NO KEY UPDATE")
		if err != nil {
			return err
		}
		records, err := queryRecords(ctx, tx, `
			SELECT `+recordColumns+` FROM attendance_records
			WHERE session_id = $1
			ORDER BY student_id
		`, id)
		if err != nil {
			return err
		}
		next := cur
		if err := fn(&next, records); err != nil {
			return err
		}
		out = next
		return writeSessionTx(ctx, tx, id, next)
	})
	return out, err
}

// lockSession reads a session row with the given locking clause.
func lockSession(ctx context.Context, tx *sql.Tx, id, lock string) (Session, error) {
	s, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 `+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.NotFound("session", id)
	}
	return s, err
}

func writeSessionTx(ctx context.Context, tx *sql.Tx, id string, s Session) error {
	if s.ID != id {
		return apperr.Invariant("session id changed from %s to %s", id, s.ID)
	}
	var summary any
	if s.Summary != nil {
		b, err := json.Marshal(s.Summary)
		if err != nil {
			return err
		}
		summary = string(b)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE sessions SET started_at = $2, closed_at = $3, summary = $4
		WHERE id = $1
	`, id, s.StartedAt, s.ClosedAt, summary)
	return err
}

// ListSessions returns sessions with basic filters, newest first.
func (r *Repository) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	var (
		args    []any
		clauses []string
	)
	if f.CourseID != "" {
		args = append(args, f.CourseID)
		clauses = append(clauses, "course_id = $"+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From.Format(time.DateOnly))
		clauses = append(clauses, "session_date >= $"+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.Format(time.DateOnly))
		clauses = append(clauses, "session_date <= $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY session_date DESC, start_minute DESC"
	return querySessions(ctx, r.db, query, args...)
}

// DeleteSession removes a session; records and excuses cascade.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("session", id)
	}
	return nil
}

// SeedRecords inserts absent records for students without one.
func (r *Repository) SeedRecords(ctx context.Context, sessionID string, studentIDs []string, at time.Time) (int, error) {
	created := 0
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, sid := range studentIDs {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO attendance_records (session_id, student_id, status, source, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $5)
				ON CONFLICT (session_id, student_id) DO NOTHING
			`, sessionID, sid, StatusAbsent, SourceSeed, at)
			if pgCode(err) == pgForeignKeyViolation {
				return apperr.NotFound("session", sessionID)
			}
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			created += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

const recordColumns = `session_id, student_id, status, source, check_in_at, verified_by_biometric, match_confidence, manual_override, override_reason, modified_by, created_at, updated_at`

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(&rec.SessionID, &rec.StudentID, &rec.Status, &rec.Source, &rec.CheckInAt, &rec.VerifiedByBiometric,
		&rec.MatchConfidence, &rec.ManualOverride, &rec.OverrideReason, &rec.ModifiedBy, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Persisted = err == nil
	return rec, err
}

// UpsertRecord share-locks the session and requires it open, then creates the
// default row if missing, locks it and applies fn.
func (r *Repository) UpsertRecord(ctx context.Context, key RecordKey, fn func(*Record) error) (Record, error) {
	var out Record
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		sess, err := lockSession(ctx, tx, key.SessionID, "FOR SHARE")
		if err != nil {
			return err
		}
		if !sess.Open() {
			return errNotOpen(sess)
		}
		out, err = upsertRecordTx(ctx, tx, key, fn)
		return err
	})
	return out, err
}

func upsertRecordTx(ctx context.Context, tx *sql.Tx, key RecordKey, fn func(*Record) error) (Record, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, key.SessionID, key.StudentID, StatusAbsent, SourceSeed)
	if pgCode(err) == pgForeignKeyViolation {
		return Record{}, apperr.NotFound("session", key.SessionID)
	}
	if err != nil {
		return Record{}, err
	}
	inserted, _ := res.RowsAffected()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
		FOR UPDATE
	`, key.SessionID, key.StudentID)
	if err != nil {
		return Record{}, err
	}
	var matches []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return Record{}, err
		}
		matches = append(matches, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Record{}, err
	}
	if len(matches) != 1 {
		return Record{}, apperr.Invariant("expected one record for %s/%s, found %d", key.SessionID, key.StudentID, len(matches))
	}
	cur := matches[0]
	cur.Persisted = inserted == 0

	next, err := mutateRecord(cur, fn)
	if err != nil {
		return Record{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE attendance_records SET
			status = $3, source = $4, check_in_at = $5, verified_by_biometric = $6,
			match_confidence = $7, manual_override = $8, override_reason = $9,
			modified_by = $10, created_at = $11, updated_at = $12
		WHERE session_id = $1 AND student_id = $2
	`, key.SessionID, key.StudentID, next.Status, next.Source, next.CheckInAt, next.VerifiedByBiometric,
		next.MatchConfidence, next.ManualOverride, next.OverrideReason, next.ModifiedBy, next.CreatedAt, next.UpdatedAt)
	if pgCode(err) == pgUniqueViolation {
		return Record{}, apperr.Invariant("duplicate record for %s/%s", key.SessionID, key.StudentID).Wrap(err)
	}
	if err != nil {
		return Record{}, err
	}
	return next, nil
}

// GetRecord returns the stored record; ok is false when none exists.
func (r *Repository) GetRecord(ctx context.Context, key RecordKey) (Record, bool, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE session_id = $1 AND student_id = $2
	`, key.SessionID, key.StudentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ListRecords returns a session's records ordered by student.
func (r *Repository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	return queryRecords(ctx, r.db, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1
		ORDER BY student_id
	`, sessionID)
}

// ListStudentRecords returns a student's records, newest session first.
func (r *Repository) ListStudentRecords(ctx context.Context, studentID, courseID string) ([]Record, error) {
	query := `
		SELECT ` + prefixed("r.", recordColumns) + `
		FROM attendance_records r
		JOIN sessions s ON s.id = r.session_id
		WHERE r.student_id = $1`
	args := []any{studentID}
	if courseID != "" {
		args = append(args, courseID)
		query += " AND s.course_id = $2"
	}
	query += " ORDER BY s.session_date DESC, s.start_minute DESC"
	return queryRecords(ctx, r.db, query, args...)
}

func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

const excuseColumns = `id, session_id, student_id, reason, status, reviewed_by, reviewed_at, review_comment, created_at`

func scanExcuse(row rowScanner) (Excuse, error) {
	var e Excuse
	err := row.Scan(&e.ID, &e.SessionID, &e.StudentID, &e.Reason, &e.Status, &e.ReviewedBy, &e.ReviewedAt, &e.ReviewComment, &e.CreatedAt)
	return e, err
}

// CreateExcuse inserts a pending excuse; one per session and student.
func (r *Repository) CreateExcuse(ctx context.Context, e Excuse) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO excuses (id, session_id, student_id, reason, status, review_comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.SessionID, e.StudentID, e.Reason, e.Status, e.ReviewComment, e.CreatedAt)
	switch pgCode(err) {
	case pgUniqueViolation:
		return apperr.ErrDuplicateExcuse.With("session_id", e.SessionID).With("student_id", e.StudentID)
	case pgForeignKeyViolation:
		return apperr.NotFound("session", e.SessionID)
	}
	return err
}

// GetExcuse returns an excuse by id.
func (r *Repository) GetExcuse(ctx context.Context, id string) (Excuse, error) {
	e, err := scanExcuse(r.db.QueryRowContext(ctx, `SELECT `+excuseColumns+` FROM excuses WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Excuse{}, apperr.NotFound("excuse", id)
	}
	return e, err
}

func updateExcuseTx(ctx context.Context, tx *sql.Tx, id string, fn func(*Excuse) error) (Excuse, error) {
	cur, err := scanExcuse(tx.QueryRowContext(ctx, `SELECT `+excuseColumns+` FROM excuses WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Excuse{}, apperr.NotFound("excuse", id)
	}
	if err != nil {
		return Excuse{}, err
	}
	next := cur
	if err := fn(&next); err != nil {
		return Excuse{}, err
	}
	if next.ID != cur.ID || next.SessionID != cur.SessionID || next.StudentID != cur.StudentID {
		return Excuse{}, apperr.Invariant("excuse %s identity changed", id)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE excuses SET reason = $2, status = $3, reviewed_by = $4, reviewed_at = $5, review_comment = $6
		WHERE id = $1
	`, id, next.Reason, next.Status, next.ReviewedBy, next.ReviewedAt, next.ReviewComment)
	if err != nil {
		return Excuse{}, err
	}
	return next, nil
}

// UpdateExcuse applies fn to the excuse under a row lock.
func (r *Repository) UpdateExcuse(ctx context.Context, id string, fn func(*Excuse) error) (Excuse, error) {
	var out Excuse
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = updateExcuseTx(ctx, tx, id, fn)
		return err
	})
	return out, err
}

// ReviewExcuse updates the excuse and, on approval, the pair's record in one
// transaction.
func (r *Repository) ReviewExcuse(ctx context.Context, id string, review func(*Excuse) error, onApprove func(*Record) error) (Excuse, *Record, error) {
	var (
		e   Excuse
		rec *Record
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		e, err = updateExcuseTx(ctx, tx, id, review)
		if err != nil {
			return err
		}
		if e.Status != ExcuseApproved || onApprove == nil {
			return nil
		}
		updated, err := upsertRecordTx(ctx, tx, RecordKey{SessionID: e.SessionID, StudentID: e.StudentID}, onApprove)
		if err != nil {
			return err
		}
		rec = &updated
		return nil
	})
	if err != nil {
		return Excuse{}, nil, err
	}
	return e, rec, nil
}

// DeleteExcuse removes an excuse.
func (r *Repository) DeleteExcuse(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM excuses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("excuse", id)
	}
	return nil
}

// ListExcuses returns excuses with basic filters, newest first.
func (r *Repository) ListExcuses(ctx context.Context, f ExcuseFilter) ([]Excuse, error) {
	var (
		args    []any
		clauses []string
	)
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, "e.student_id = $"+strconv.Itoa(len(args)))
	}
	if f.CourseID != "" {
		args = append(args, f.CourseID)
		clauses = append(clauses, "s.course_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, "e.status = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + prefixed("e.", excuseColumns) + ` FROM excuses e JOIN sessions s ON s.id = e.session_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Excuse
	for rows.Next() {
		e, err := scanExcuse(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
