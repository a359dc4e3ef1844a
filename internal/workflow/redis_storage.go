package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userStateKeyPattern = "workflow:state:%d"
	stateTTL            = 24 * time.Hour
)

// RedisStorage persists workflow states in Redis.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client *redis.Client, log *slog.Logger) Storage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{
		client: client,
		log:    log,
	}
}

// GetState returns the stored user state or ErrStateNotFound when absent.
func (s *RedisStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	key := redisStateKey(userID)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}

		s.log.Error("failed to get workflow state", "user_id", userID, "error", err)
		return nil, err
	}

	var state UserState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		s.log.Error("failed to decode workflow state", "user_id", userID, "error", err)
		return nil, err
	}

	return &state, nil
}

// SetState saves the provided user state with a TTL. Expiry is harmless:
// the registry record is the source of truth and the machine treats a
// missing state as the unknown state.
func (s *RedisStorage) SetState(ctx context.Context, userID int64, state *UserState) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		s.log.Error("failed to encode workflow state", "user_id", userID, "error", err)
		return err
	}

	key := redisStateKey(userID)
	if err := s.client.Set(ctx, key, data, stateTTL).Err(); err != nil {
		s.log.Error("failed to save workflow state", "user_id", userID, "error", err)
		return err
	}

	return nil
}

// ClearState removes the stored state for the given user.
func (s *RedisStorage) ClearState(ctx context.Context, userID int64) error {
	key := redisStateKey(userID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.log.Error("failed to clear workflow state", "user_id", userID, "error", err)
		return err
	}

	return nil
}

// ListStates scans all state keys. The key space is bounded by the
// 24-hour TTL, so a full scan stays cheap.
func (s *RedisStorage) ListStates(ctx context.Context) ([]*UserState, error) {
	var states []*UserState

	iter := s.client.Scan(ctx, 0, "workflow:state:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}

		var state UserState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			s.log.Error("failed to decode workflow state", "key", iter.Val(), "error", err)
			continue
		}

		states = append(states, &state)
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return states, nil
}

func redisStateKey(userID int64) string {
	return fmt.Sprintf(userStateKeyPattern, userID)
}
