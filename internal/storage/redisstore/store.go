// Package redisstore implements the storage contract on Redis.
//
// Layout: one hash per user (user:{id}), a ZSET (users:by_join) ordering
// identities by an INCR-driven join sequence, and plain keys for settings.
// Giveaway numbers come from the giveaway:seq counter: INCR is atomic on
// the server, so two concurrent registrations can never receive the same
// number. Init re-syncs the counter to the observed max so a lost counter
// key cannot move the watermark backwards.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/storage"
)

const (
	userKeyPattern = "user:%d"
	joinSetKey     = "users:by_join"
	joinSeqKey     = "users:join_seq"
	numberSeqKey   = "giveaway:seq"
	settingPattern = "setting:%s"
)

// addUserScript registers a user atomically: bail out if the hash exists,
// otherwise draw a join sequence and a giveaway number and write both.
var addUserScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local seq = redis.call('INCR', KEYS[2])
local num = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1],
	'telegram_id', ARGV[1],
	'username', ARGV[2],
	'first_name', ARGV[3],
	'last_name', ARGV[4],
	'phone', '',
	'joined_at', ARGV[5],
	'giveaway_number', num)
redis.call('ZADD', KEYS[4], seq, ARGV[1])
return num
`)

// backfillScript assigns a number to a single user only if it still lacks
// one, so repeated sweeps stay idempotent.
var backfillScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local cur = redis.call('HGET', KEYS[1], 'giveaway_number')
if cur and tonumber(cur) and tonumber(cur) > 0 then
	return 0
end
local num = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'giveaway_number', num)
return num
`)

// syncSeqScript raises the sequence counter to floor without ever
// lowering it, and always replies with an integer: a GET on a missing
// counter key would surface as a nil reply on the client.
var syncSeqScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if floor > cur then
	redis.call('SET', KEYS[1], floor)
	cur = floor
end
return cur
`)

// Store is a Redis-backed storage adapter.
type Store struct {
	client *redis.Client
	log    *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New wraps an existing Redis client.
func New(client *redis.Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{client: client, log: log}
}

// Init re-syncs the giveaway counter against the stored records.
func (s *Store) Init(ctx context.Context) error {
	users, err := s.ExportUsers(ctx)
	if err != nil {
		return fmt.Errorf("scan users for counter sync: %w", err)
	}

	max := 0
	for _, user := range users {
		if user.GiveawayNumber > max {
			max = user.GiveawayNumber
		}
	}

	if err := syncSeqScript.Run(ctx, s.client, []string{numberSeqKey}, max).Err(); err != nil {
		return fmt.Errorf("sync giveaway counter: %w", err)
	}

	return nil
}

// UserExists reports whether a record with the identity is present.
func (s *Store) UserExists(ctx context.Context, telegramID int64) (bool, error) {
	n, err := s.client.Exists(ctx, userKey(telegramID)).Result()
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}

	return n == 1, nil
}

// AddUser registers the user atomically via a server-side script.
func (s *Store) AddUser(ctx context.Context, user *domain.User) error {
	joined := user.JoinedAt
	if joined.IsZero() {
		joined = time.Now().UTC()
	}

	keys := []string{userKey(user.TelegramID), joinSeqKey, numberSeqKey, joinSetKey}
	err := addUserScript.Run(ctx, s.client, keys,
		strconv.FormatInt(user.TelegramID, 10),
		user.Username,
		user.FirstName,
		user.LastName,
		joined.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		s.log.Error("failed to register user",
			slog.Int64("telegram_id", user.TelegramID), slog.Any("error", err))
		return fmt.Errorf("register user: %w", err)
	}

	return nil
}

// SavePhone sets the phone field on an existing record.
func (s *Store) SavePhone(ctx context.Context, telegramID int64, phone string) error {
	key := userKey(telegramID)

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check user existence: %w", err)
	}
	if n == 0 {
		return storage.ErrUserNotFound
	}

	if err := s.client.HSet(ctx, key, "phone", phone).Err(); err != nil {
		return fmt.Errorf("save phone: %w", err)
	}

	return nil
}

// AllUserIDs returns every known identity.
func (s *Store) AllUserIDs(ctx context.Context) ([]int64, error) {
	members, err := s.client.ZRange(ctx, joinSetKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("range join set: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse member %q: %w", member, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// GiveawayNumber returns the assigned number for the identity.
func (s *Store) GiveawayNumber(ctx context.Context, telegramID int64) (int, error) {
	value, err := s.client.HGet(ctx, userKey(telegramID), "giveaway_number").Result()
	if errors.Is(err, redis.Nil) {
		n, existsErr := s.client.Exists(ctx, userKey(telegramID)).Result()
		if existsErr != nil {
			return 0, fmt.Errorf("check user existence: %w", existsErr)
		}
		if n == 0 {
			return 0, storage.ErrUserNotFound
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get giveaway number: %w", err)
	}

	number, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse giveaway number %q: %w", value, err)
	}

	return number, nil
}

// Stats returns the total count and the five newest records.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	total, err := s.client.ZCard(ctx, joinSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	members, err := s.client.ZRevRange(ctx, joinSetKey, 0, 4).Result()
	if err != nil {
		return nil, fmt.Errorf("range recent users: %w", err)
	}

	stats := &domain.Stats{Total: int(total)}
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse member %q: %w", member, err)
		}

		user, err := s.loadUser(ctx, id)
		if err != nil {
			return nil, err
		}
		stats.Recent = append(stats.Recent, *user)
	}

	return stats, nil
}

// ExportUsers returns every record in creation order.
func (s *Store) ExportUsers(ctx context.Context) ([]domain.User, error) {
	ids, err := s.AllUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		user, err := s.loadUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	return users, nil
}

// Setting returns the stored value for key.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, settingKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}

	return value, nil
}

// SetSetting upserts the value for key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, settingKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}

	return nil
}

// AssignMissingNumbers numbers unnumbered records in join order.
func (s *Store) AssignMissingNumbers(ctx context.Context) (int, error) {
	if err := s.Init(ctx); err != nil {
		return 0, err
	}

	ids, err := s.AllUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	healed := 0
	for _, id := range ids {
		assigned, err := backfillScript.Run(ctx, s.client,
			[]string{userKey(id), numberSeqKey}).Int()
		if err != nil {
			return healed, fmt.Errorf("backfill user %d: %w", id, err)
		}
		if assigned > 0 {
			healed++
		}
	}

	return healed, nil
}

// HealthCheck pings the Redis server.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close shuts down the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) loadUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	fields, err := s.client.HGetAll(ctx, userKey(telegramID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", telegramID, err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrUserNotFound
	}

	user := &domain.User{
		TelegramID: telegramID,
		Username:   fields["username"],
		FirstName:  fields["first_name"],
		LastName:   fields["last_name"],
		Phone:      fields["phone"],
	}

	if raw := fields["joined_at"]; raw != "" {
		joined, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse joined_at for user %d: %w", telegramID, err)
		}
		user.JoinedAt = joined
	}

	if raw := fields["giveaway_number"]; raw != "" {
		number, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse giveaway number for user %d: %w", telegramID, err)
		}
		user.GiveawayNumber = number
	}

	return user, nil
}

func userKey(telegramID int64) string {
	return fmt.Sprintf(userKeyPattern, telegramID)
}

func settingKey(key string) string {
	return fmt.Sprintf(settingPattern, key)
}
