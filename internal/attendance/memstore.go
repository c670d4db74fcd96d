package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"classattend/internal/apperr"
)

// MemoryStore is an in-process Store for dev mode and tests. A single mutex
// serializes all writes, which trivially satisfies the atomicity contract.
type MemoryStore struct {
	mu       sync.RWMutex
	courses  map[string]Course
	enrolled map[string]map[string]struct{}
	sessions map[string]Session
	records  map[RecordKey]Record
	excuses  map[string]Excuse
	byPair   map[RecordKey]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:  make(map[string]Course),
		enrolled: make(map[string]map[string]struct{}),
		sessions: make(map[string]Session),
		records:  make(map[RecordKey]Record),
		excuses:  make(map[string]Excuse),
		byPair:   make(map[RecordKey]string),
	}
}

func (m *MemoryStore) CreateCourse(ctx context.Context, c Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.ID]; ok {
		return apperr.Invalid("course %s already exists", c.ID)
	}
	for _, existing := range m.courses {
		if existing.Code == c.Code {
			return apperr.Invalid("course code %s already in use", c.Code)
		}
	}
	m.courses[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCourse(ctx context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, apperr.NotFound("course", id)
	}
	return c, nil
}

func (m *MemoryStore) Enroll(ctx context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[courseID]; !ok {
		return apperr.NotFound("course", courseID)
	}
	set, ok := m.enrolled[courseID]
	if !ok {
		set = make(map[string]struct{})
		m.enrolled[courseID] = set
	}
	set[studentID] = struct{}{}
	return nil
}

func (m *MemoryStore) ListEnrolled(ctx context.Context, courseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.enrolled[courseID]))
	for id := range m.enrolled[courseID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.enrolled[courseID][studentID]
	return ok, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, s Session, guard func(existing []Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return apperr.Invariant("session %s already exists", s.ID)
	}
	if guard != nil {
		if err := guard(m.sessionsOn(s.CourseID, s.Date)); err != nil {
			return err
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, apperr.NotFound("session", id)
	}
	return s, nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, id string, fn func(*Session) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[id]
	if !ok {
		return Session{}, apperr.NotFound("session", id)
	}
	next := cur
	if err := fn(&next); err != nil {
		return Session{}, err
	}
	if next.ID != id {
		return Session{}, apperr.Invariant("session id changed from %s to %s", id, next.ID)
	}
	m.sessions[id] = next
	return next, nil
}

func (m *MemoryStore) CloseSession(ctx context.Context, id string, fn func(*Session, []Record) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[id]
	if !ok {
		return Session{}, apperr.NotFound("session", id)
	}
	next := cur
	if err := fn(&next, m.recordsOf(id)); err != nil {
		return Session{}, err
	}
	if next.ID != id {
		return Session{}, apperr.Invariant("session id changed from %s to %s", id, next.ID)
	}
	m.sessions[id] = next
	return next, nil
}

func (m *MemoryStore) sessionsOn(courseID string, date time.Time) []Session {
	var out []Session
	for _, s := range m.sessions {
		if s.CourseID == courseID && s.Date.Equal(date) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (m *MemoryStore) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if f.CourseID != "" && s.CourseID != f.CourseID {
			continue
		}
		if !f.From.IsZero() && s.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && s.Date.After(f.To) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Start > out[j].Start
	})
	return out, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return apperr.NotFound("session", id)
	}
	delete(m.sessions, id)
	for k := range m.records {
		if k.SessionID == id {
			delete(m.records, k)
		}
	}
	for eid, e := range m.excuses {
		if e.SessionID == id {
			delete(m.excuses, eid)
			delete(m.byPair, RecordKey{SessionID: e.SessionID, StudentID: e.StudentID})
		}
	}
	return nil
}

func (m *MemoryStore) SeedRecords(ctx context.Context, sessionID string, studentIDs []string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return 0, apperr.NotFound("session", sessionID)
	}
	created := 0
	for _, sid := range studentIDs {
		key := RecordKey{SessionID: sessionID, StudentID: sid}
		if _, ok := m.records[key]; ok {
			continue
		}
		r := newRecord(key)
		r.CreatedAt, r.UpdatedAt = at, at
		r.Persisted = true
		m.records[key] = r
		created++
	}
	return created, nil
}

func (m *MemoryStore) UpsertRecord(ctx context.Context, key RecordKey, fn func(*Record) error) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key.SessionID]
	if !ok {
		return Record{}, apperr.NotFound("session", key.SessionID)
	}
	if !sess.Open() {
		return Record{}, errNotOpen(sess)
	}
	return m.upsertLocked(key, fn)
}

func (m *MemoryStore) upsertLocked(key RecordKey, fn func(*Record) error) (Record, error) {
	cur, ok := m.records[key]
	if !ok {
		cur = newRecord(key)
	}
	next, err := mutateRecord(cur, fn)
	if err != nil {
		return Record{}, err
	}
	m.records[key] = next
	return next, nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, key RecordKey) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[key]
	return r, ok, nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordsOf(sessionID), nil
}

func (m *MemoryStore) recordsOf(sessionID string) []Record {
	var out []Record
	for k, r := range m.records {
		if k.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func (m *MemoryStore) ListStudentRecords(ctx context.Context, studentID, courseID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for k, r := range m.records {
		if k.StudentID != studentID {
			continue
		}
		if courseID != "" && m.sessions[k.SessionID].CourseID != courseID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.sessions[out[i].SessionID].Date.After(m.sessions[out[j].SessionID].Date)
	})
	return out, nil
}

func (m *MemoryStore) CreateExcuse(ctx context.Context, e Excuse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := RecordKey{SessionID: e.SessionID, StudentID: e.StudentID}
	if existing, ok := m.byPair[key]; ok {
		return apperr.ErrDuplicateExcuse.With("excuse_id", existing)
	}
	m.excuses[e.ID] = e
	m.byPair[key] = e.ID
	return nil
}

func (m *MemoryStore) GetExcuse(ctx context.Context, id string) (Excuse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.excuses[id]
	if !ok {
		return Excuse{}, apperr.NotFound("excuse", id)
	}
	return e, nil
}

func (m *MemoryStore) UpdateExcuse(ctx context.Context, id string, fn func(*Excuse) error) (Excuse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateExcuseLocked(id, fn)
}

func (m *MemoryStore) updateExcuseLocked(id string, fn func(*Excuse) error) (Excuse, error) {
	cur, ok := m.excuses[id]
	if !ok {
		return Excuse{}, apperr.NotFound("excuse", id)
	}
	next := cur
	if err := fn(&next); err != nil {
		return Excuse{}, err
	}
	if next.ID != cur.ID || next.SessionID != cur.SessionID || next.StudentID != cur.StudentID {
		return Excuse{}, apperr.Invariant("excuse %s identity changed", id)
	}
	m.excuses[id] = next
	return next, nil
}

func (m *MemoryStore) ReviewExcuse(ctx context.Context, id string, review func(*Excuse) error, onApprove func(*Record) error) (Excuse, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.excuses[id]
	if !ok {
		return Excuse{}, nil, apperr.NotFound("excuse", id)
	}
	e, err := m.updateExcuseLocked(id, review)
	if err != nil {
		return Excuse{}, nil, err
	}
	if e.Status != ExcuseApproved || onApprove == nil {
		return e, nil, nil
	}
	r, err := m.upsertLocked(RecordKey{SessionID: e.SessionID, StudentID: e.StudentID}, onApprove)
	if err != nil {
		m.excuses[id] = prev
		return Excuse{}, nil, err
	}
	return e, &r, nil
}

func (m *MemoryStore) DeleteExcuse(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.excuses[id]
	if !ok {
		return apperr.NotFound("excuse", id)
	}
	delete(m.excuses, id)
	delete(m.byPair, RecordKey{SessionID: e.SessionID, StudentID: e.StudentID})
	return nil
}

func (m *MemoryStore) ListExcuses(ctx context.Context, f ExcuseFilter) ([]Excuse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Excuse
	for _, e := range m.excuses {
		if f.StudentID != "" && e.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.CourseID != "" && m.sessions[e.SessionID].CourseID != f.CourseID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
