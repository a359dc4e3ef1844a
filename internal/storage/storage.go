// Package storage defines the persistence contract the bot runs on.
//
// All durable state (users, giveaway numbers, settings) lives behind the
// Store interface. Adapters are interchangeable: postgres, sqlite, redis
// and an in-memory store all satisfy the same contract, and the workflow
// logic never knows which one is active.
package storage

import (
	"context"
	"errors"

	"github.com/arthall/onboard-bot/internal/domain"
)

var (
	// ErrUserNotFound indicates that no user record exists for the identity.
	ErrUserNotFound = errors.New("user not found")
	// ErrSettingNotFound indicates that the settings key has never been written.
	ErrSettingNotFound = errors.New("setting not found")
	// ErrNumberConflict indicates that a concurrent registration claimed the
	// same giveaway number. Adapters that rely on a unique index surface it
	// so callers can retry the whole read-max/write-number step.
	ErrNumberConflict = errors.New("giveaway number already taken")
)

// Store is the swappable persistence boundary.
//
// Giveaway number invariants every implementation must uphold:
//   - no two users ever hold the same number;
//   - every assignment is max(existing)+1 at the moment of assignment,
//     so the watermark is monotonically non-decreasing;
//   - an empty registry starts at 1.
type Store interface {
	// Init creates the schema if missing. Idempotent.
	Init(ctx context.Context) error

	// UserExists reports whether a record with the identity is present.
	UserExists(ctx context.Context, telegramID int64) (bool, error)

	// AddUser creates the record and assigns the next giveaway number in the
	// same logical operation. Registering an existing identity is a silent
	// no-op: the record and its number are left untouched.
	AddUser(ctx context.Context, user *domain.User) error

	// SavePhone sets the phone field on an existing record.
	SavePhone(ctx context.Context, telegramID int64, phone string) error

	// AllUserIDs returns every known identity. Order is undefined.
	AllUserIDs(ctx context.Context) ([]int64, error)

	// GiveawayNumber returns the assigned number, or ErrUserNotFound.
	GiveawayNumber(ctx context.Context, telegramID int64) (int, error)

	// Stats returns the total count and the 5 most recent records,
	// newest first.
	Stats(ctx context.Context) (*domain.Stats, error)

	// ExportUsers returns every record in creation order, oldest first.
	ExportUsers(ctx context.Context) ([]domain.User, error)

	// Setting returns the value for key, or ErrSettingNotFound.
	Setting(ctx context.Context, key string) (string, error)

	// SetSetting upserts the value for key.
	SetSetting(ctx context.Context, key, value string) error

	// AssignMissingNumbers walks records without a giveaway number in
	// creation order and numbers them one at a time, recomputing the max
	// before each assignment. Returns how many records were healed.
	// Running it again with no new records is a no-op.
	AssignMissingNumbers(ctx context.Context) (int, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// Well-known settings keys. Values are opaque strings, in practice
// Telegram file IDs or plain text uploaded by admins.
const (
	SettingAnnouncementImage = "announcement_image"
	SettingGiveawayMedia     = "giveaway_media"
	SettingDiscountsText     = "discounts_text"
	SettingExhibitionText    = "exhibition_text"
)
