package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStateStore is a StateStore persisted in Redis, so dialog positions
// survive process restarts. Keys are namespaced per transport; entries expire
// after ttl so abandoned dialogs eventually fall back to idle.
type RedisStateStore struct {
	redis     *redis.Client
	namespace string
	ttl       time.Duration
	tracer    trace.Tracer
}

// NewRedisStateStore creates a Redis-backed state store for one transport
// namespace.
func NewRedisStateStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStateStore {
	if client == nil {
		panic("dialog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStateStore{
		redis:     client,
		namespace: namespace,
		ttl:       ttl,
		tracer:    otel.Tracer("clinic.internal.dialog.state"),
	}
}

var _ StateStore = (*RedisStateStore)(nil)

// Get returns the identity's state, or the idle state when no key exists.
func (s *RedisStateStore) Get(ctx context.Context, identity string) (State, error) {
	ctx, span := s.tracer.Start(ctx, "dialog.state_get")
	defer span.End()

	data, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return State{}, nil
		}
		span.RecordError(err)
		return State{}, fmt.Errorf("dialog: load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return State{}, fmt.Errorf("dialog: decode state: %w", err)
	}
	return state, nil
}

// Set stores the identity's state with the configured TTL.
func (s *RedisStateStore) Set(ctx context.Context, identity string, state State) error {
	ctx, span := s.tracer.Start(ctx, "dialog.state_set")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(identity), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: persist state: %w", err)
	}
	return nil
}

// Clear resets the identity to idle.
func (s *RedisStateStore) Clear(ctx context.Context, identity string) error {
	ctx, span := s.tracer.Start(ctx, "dialog.state_clear")
	defer span.End()

	if err := s.redis.Del(ctx, s.key(identity)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: clear state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) key(identity string) string {
	return fmt.Sprintf("dialog:%s:%s", s.namespace, identity)
}
