// Package identity holds the reference face embedding registered for each person.
package identity

import (
	"context"
	"sync"
	"time"

	"classattend/internal/apperr"
)

// Vector is a person's reference embedding. Re-registration replaces it.
type Vector struct {
	PersonID  string
	Embedding []float32
	ImageRef  string
	UpdatedAt time.Time
}

// Store reads and writes reference vectors.
type Store interface {
	// Get returns the vector for personID; ok is false when none is registered.
	Get(ctx context.Context, personID string) (v Vector, ok bool, err error)
	Put(ctx context.Context, v Vector) error
}

// Register validates and stores v, overwriting any previous registration.
func Register(ctx context.Context, s Store, v Vector) error {
	if v.PersonID == "" {
		return apperr.Invalid("person id required")
	}
	if len(v.Embedding) == 0 {
		return apperr.Invalid("embedding required")
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	return s.Put(ctx, v)
}

// MemoryStore is a map-backed Store for dev mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string]Vector
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vectors: make(map[string]Vector)}
}

// Get returns a copy of the stored vector.
func (m *MemoryStore) Get(ctx context.Context, personID string) (Vector, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vectors[personID]
	if !ok {
		return Vector{}, false, nil
	}
	v.Embedding = append([]float32(nil), v.Embedding...)
	return v, true, nil
}

// Put stores a copy of v.
func (m *MemoryStore) Put(ctx context.Context, v Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Embedding = append([]float32(nil), v.Embedding...)
	m.vectors[v.PersonID] = v
	return nil
}
