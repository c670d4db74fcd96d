// Package attempts keeps a capped per-session history of biometric
// verification attempts for instructors to review.
package attempts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"classattend/internal/attendance"
)

// DefaultSize is how many attempts are kept per session.
const DefaultSize = 500

// Log appends attempts and lists the most recent ones first.
type Log interface {
	attendance.AttemptLog
	List(ctx context.Context, sessionID string, limit int) ([]attendance.Attempt, error)
}

// RedisLog stores attempts in one list per session, trimmed to size.
type RedisLog struct {
	client *redis.Client
	prefix string
	size   int64
}

// NewRedisLog creates a log keeping at most size attempts per session.
func NewRedisLog(client *redis.Client, size int) *RedisLog {
	if size <= 0 {
		size = DefaultSize
	}
	return &RedisLog{client: client, prefix: "attendance:attempts:", size: int64(size)}
}

func (l *RedisLog) Append(ctx context.Context, a attendance.Attempt) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	key := l.prefix + a.SessionID
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, l.size-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append attempt for %s: %w", a.SessionID, err)
	}
	return nil
}

func (l *RedisLog) List(ctx context.Context, sessionID string, limit int) ([]attendance.Attempt, error) {
	if limit <= 0 || int64(limit) > l.size {
		limit = int(l.size)
	}
	raw, err := l.client.LRange(ctx, l.prefix+sessionID, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts for %s: %w", sessionID, err)
	}
	out := make([]attendance.Attempt, 0, len(raw))
	for _, s := range raw {
		var a attendance.Attempt
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// MemoryLog is the in-process equivalent of RedisLog.
type MemoryLog struct {
	mu       sync.Mutex
	size     int
	sessions map[string][]attendance.Attempt
}

// NewMemoryLog creates an empty log.
func NewMemoryLog(size int) *MemoryLog {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryLog{size: size, sessions: make(map[string][]attendance.Attempt)}
}

func (l *MemoryLog) Append(ctx context.Context, a attendance.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append(l.sessions[a.SessionID], a)
	if len(list) > l.size {
		list = list[len(list)-l.size:]
	}
	l.sessions[a.SessionID] = list
	return nil
}

func (l *MemoryLog) List(ctx context.Context, sessionID string, limit int) ([]attendance.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.sessions[sessionID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]attendance.Attempt, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
