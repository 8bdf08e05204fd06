package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// RedisStateStore implements StateStore on Redis. Each hysteresis record is
// a JSON value written with a TTL, so records for rules that stop being
// evaluated expire on their own.
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a Redis-backed alert state store.
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func stateKey(projectID, ruleID, serviceID string) string {
	return fmt.Sprintf("alertstate:%s:%s:%s", projectID, ruleID, serviceID)
}

// Load returns the alert state for a key, or ErrStateNotFound when no
// record exists (or it expired).
func (s *RedisStateStore) Load(ctx context.Context, projectID, ruleID, serviceID string) (models.AlertState, error) {
	var state models.AlertState

	data, err := s.client.Get(ctx, stateKey(projectID, ruleID, serviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, ErrStateNotFound
	}
	if err != nil {
		return state, fmt.Errorf("load alert state: %w", err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("unmarshal alert state: %w", err)
	}
	return state, nil
}

// Save writes the alert state with the given TTL.
func (s *RedisStateStore) Save(ctx context.Context, state models.AlertState, ttlSeconds int) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal alert state: %w", err)
	}

	key := stateKey(state.ProjectID, state.RuleID, state.ServiceID)
	ttl := time.Duration(ttlSeconds) * time.Second
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}
	return nil
}
