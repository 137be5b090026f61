package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

const (
	stateKeyPrefix = "mushaf:state:"
	dataKeyPrefix  = "mushaf:data:"
	defaultTTL     = 30 * 24 * time.Hour
)

// Connect parses a redis URI and checks the server answers
func Connect(uri string) (*redis.Client, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// SessionStore keeps per-user state and preferences in redis
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SessionStore{client: client, ttl: ttl}
}

func dataKey(userID, key string) string {
	return fmt.Sprintf("%s%s:%s", dataKeyPrefix, userID, key)
}

// SetState sets the current state for a user
func (s *SessionStore) SetState(ctx context.Context, userID string, state domain.State) error {
	return s.client.Set(ctx, stateKeyPrefix+userID, string(state), s.ttl).Err()
}

// GetState gets the current state for a user
func (s *SessionStore) GetState(ctx context.Context, userID string) (domain.State, error) {
	val, err := s.client.Get(ctx, stateKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StateStart, nil
	}
	if err != nil {
		return "", fmt.Errorf("get state: %w", err)
	}
	return domain.State(val), nil
}

// DeleteState deletes the state for a user
func (s *SessionStore) DeleteState(ctx context.Context, userID string) error {
	return s.client.Del(ctx, stateKeyPrefix+userID).Err()
}

// SetData stores one preference and refreshes its TTL
func (s *SessionStore) SetData(ctx context.Context, userID, key, value string) error {
	return s.client.Set(ctx, dataKey(userID, key), value, s.ttl).Err()
}

// GetData reads one preference; a missing key yields domain.ErrNotFound
func (s *SessionStore) GetData(ctx context.Context, userID, key string) (string, error) {
	val, err := s.client.Get(ctx, dataKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("get %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get data: %w", err)
	}
	return val, nil
}

// DeleteData deletes one preference
func (s *SessionStore) DeleteData(ctx context.Context, userID, key string) error {
	return s.client.Del(ctx, dataKey(userID, key)).Err()
}
