package release

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"varreg/pkg/sentinel"
)

// State tracks how far a report run has progressed. The header state guards
// the write-once header: a resumed run that already wrote it must only append
// body rows.
type State string

const (
	StateNotStarted    State = "NOT_STARTED"
	StateHeaderWritten State = "HEADER_WRITTEN"
	StateComplete      State = "COMPLETE"
)

// JobStateStore persists per-job step state across process restarts. Keys are
// "<job id>:<step>".
type JobStateStore interface {
	Get(ctx context.Context, key string) (State, error)
	Set(ctx context.Context, key string, state State) error
}

// InMemoryJobStateStore is for tests and single-shot CLI runs where
// resumption across processes is not needed.
type InMemoryJobStateStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewInMemoryJobStateStore() *InMemoryJobStateStore {
	return &InMemoryJobStateStore{states: make(map[string]State)}
}

func (s *InMemoryJobStateStore) Get(_ context.Context, key string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.states[key]; ok {
		return state, nil
	}
	return StateNotStarted, nil
}

func (s *InMemoryJobStateStore) Set(_ context.Context, key string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

// jobStateTTL keeps abandoned run state from accumulating in Redis forever.
const jobStateTTL = 14 * 24 * time.Hour

// RedisJobStateStore persists state in Redis so an interrupted release job
// can resume on another host.
type RedisJobStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisJobStateStore(client *redis.Client) *RedisJobStateStore {
	return &RedisJobStateStore{client: client, prefix: "varreg:jobstate:"}
}

func (s *RedisJobStateStore) Get(ctx context.Context, key string) (State, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return StateNotStarted, nil
	}
	if err != nil {
		return StateNotStarted, fmt.Errorf("get job state %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return State(val), nil
}

func (s *RedisJobStateStore) Set(ctx context.Context, key string, state State) error {
	if err := s.client.Set(ctx, s.prefix+key, string(state), jobStateTTL).Err(); err != nil {
		return fmt.Errorf("set job state %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}
