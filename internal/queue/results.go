package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobStatus is the lifecycle of an asynchronous verification.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Result is what a client polls for after enqueueing a VerifyJob.
type Result struct {
	JobID      string    `json:"job_id"`
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	Status     JobStatus `json:"status"`
	Accepted   bool      `json:"accepted"`
	Distance   float64   `json:"distance,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Code       string    `json:"code,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Results stores job outcomes for a limited time.
type Results interface {
	Put(ctx context.Context, r Result) error
	// Get returns ok=false for unknown or expired jobs.
	Get(ctx context.Context, jobID string) (Result, bool, error)
}

// RedisResults keeps results as JSON strings with a TTL.
type RedisResults struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisResults creates a result store; ttl bounds how long clients can poll.
func NewRedisResults(client *redis.Client, ttl time.Duration) *RedisResults {
	return &RedisResults{client: client, prefix: "attendance:verify:result:", ttl: ttl}
}

func (s *RedisResults) Put(ctx context.Context, r Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+r.JobID, b, s.ttl).Err()
}

func (s *RedisResults) Get(ctx context.Context, jobID string) (Result, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+jobID).Bytes()
	if err == redis.Nil {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("get result %s: %w", jobID, err)
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, false, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return r, true, nil
}

// MemoryResults is the in-process Results used with the memory queue.
type MemoryResults struct {
	mu      sync.Mutex
	ttl     time.Duration
	results map[string]memoryResult
	now     func() time.Time
}

type memoryResult struct {
	r       Result
	expires time.Time
}

// NewMemoryResults creates an empty store.
func NewMemoryResults(ttl time.Duration) *MemoryResults {
	return &MemoryResults{ttl: ttl, results: make(map[string]memoryResult), now: time.Now}
}

func (s *MemoryResults) Put(ctx context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.results {
		if now.After(e.expires) {
			delete(s.results, id)
		}
	}
	s.results[r.JobID] = memoryResult{r: r, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryResults) Get(ctx context.Context, jobID string) (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.results[jobID]
	if !ok || s.now().After(e.expires) {
		return Result{}, false, nil
	}
	return e.r, true, nil
}
