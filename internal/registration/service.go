// Package registration orchestrates the onboarding workflow: registry
// writes, giveaway numbering, and workflow state transitions. Handlers
// talk to this service, never to the store directly.
package registration

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/errors"
	"github.com/arthall/onboard-bot/internal/exporter"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/internal/usercache"
	"github.com/arthall/onboard-bot/internal/workflow"
)

// ErrContactMismatch indicates a contact-shared event whose embedded
// owner identity does not match the interacting user. Relayed contacts
// are rejected with no side effect for either identity.
var ErrContactMismatch = stderrors.New("shared contact belongs to another user")

// FirstContactResult reports what happened on a first-contact event.
type FirstContactResult struct {
	AlreadyRegistered bool
	GiveawayNumber    int
}

// Service provides the registration business operations.
type Service struct {
	store storage.Store
	fsm   workflow.Machine
	cache *usercache.Cache
	log   *slog.Logger
}

// NewService constructs a Service. cache may be nil.
func NewService(store storage.Store, fsm workflow.Machine, cache *usercache.Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store: store,
		fsm:   fsm,
		cache: cache,
		log:   log,
	}
}

// FirstContact registers the user on their first /start. Re-entry by a
// registered user is reported, not re-registered. A store failure is a
// hard failure of the event: the caller must not confirm registration.
func (s *Service) FirstContact(ctx context.Context, user *domain.User) (*FirstContactResult, error) {
	exists, err := s.store.UserExists(ctx, user.TelegramID)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Errorf("check registration: %w", err))
	}

	if exists {
		number, err := s.store.GiveawayNumber(ctx, user.TelegramID)
		if err != nil && !stderrors.Is(err, storage.ErrUserNotFound) {
			return nil, errors.NewStorageError(fmt.Errorf("load giveaway number: %w", err))
		}
		return &FirstContactResult{AlreadyRegistered: true, GiveawayNumber: number}, nil
	}

	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now().UTC()
	}

	if err := s.store.AddUser(ctx, user); err != nil {
		return nil, errors.NewStorageError(fmt.Errorf("register user: %w", err))
	}

	number, err := s.store.GiveawayNumber(ctx, user.TelegramID)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Errorf("load giveaway number: %w", err))
	}

	if err := s.fsm.SetState(ctx, user.TelegramID, workflow.StateAwaitingPhone); err != nil {
		// The registration itself is durable; a lost workflow write only
		// costs the phone prompt, so log and continue.
		s.log.Warn("failed to set workflow state after registration",
			slog.Int64("telegram_id", user.TelegramID), slog.Any("error", err))
	}

	s.log.Info("new user registered",
		slog.Int64("telegram_id", user.TelegramID),
		slog.Int("giveaway_number", number))

	return &FirstContactResult{GiveawayNumber: number}, nil
}

// SharePhone records a phone number shared by its owner. A contact whose
// embedded identity differs from the sender is rejected.
func (s *Service) SharePhone(ctx context.Context, senderID, contactOwnerID int64, phone string) error {
	if senderID != contactOwnerID {
		s.log.Warn("rejected relayed contact",
			slog.Int64("sender_id", senderID),
			slog.Int64("contact_owner_id", contactOwnerID))
		return ErrContactMismatch
	}

	if err := s.store.SavePhone(ctx, senderID, phone); err != nil {
		if stderrors.Is(err, storage.ErrUserNotFound) {
			return errors.NewWorkflowError("phone shared before registration")
		}
		return errors.NewStorageError(fmt.Errorf("save phone: %w", err))
	}

	if err := s.cache.Invalidate(ctx, senderID); err != nil {
		s.log.Warn("failed to invalidate user cache",
			slog.Int64("telegram_id", senderID), slog.Any("error", err))
	}

	if err := s.fsm.TransitionTo(ctx, senderID, workflow.StateComplete); err != nil {
		s.log.Warn("failed to complete workflow after phone share",
			slog.Int64("telegram_id", senderID), slog.Any("error", err))
	}

	s.log.Info("phone recorded", slog.Int64("telegram_id", senderID))

	return nil
}

// Skip completes the workflow without recording a phone number.
func (s *Service) Skip(ctx context.Context, userID int64) error {
	if err := s.fsm.TransitionTo(ctx, userID, workflow.StateComplete); err != nil {
		if stderrors.Is(err, workflow.ErrInvalidTransition) {
			return errors.NewWorkflowError("skip is not possible in the current state")
		}
		return err
	}

	return nil
}

// GiveawayNumber returns the user's participation number, via the cache
// when possible. Numbers are immutable, so a cache hit is always valid.
func (s *Service) GiveawayNumber(ctx context.Context, userID int64) (int, error) {
	if cached, err := s.cache.Get(ctx, userID); err == nil && cached.HasGiveawayNumber() {
		return cached.GiveawayNumber, nil
	} else if err != nil {
		s.log.Warn("user cache read failed", slog.Int64("telegram_id", userID), slog.Any("error", err))
	}

	number, err := s.store.GiveawayNumber(ctx, userID)
	if err != nil {
		return 0, err
	}

	if number > 0 {
		user := &domain.User{TelegramID: userID, GiveawayNumber: number}
		if err := s.cache.Set(ctx, user); err != nil {
			s.log.Warn("user cache write failed", slog.Int64("telegram_id", userID), slog.Any("error", err))
		}
	}

	return number, nil
}

// Content returns a stored content setting (menu texts, media file
// references). Absence is reported as an empty string, not an error.
func (s *Service) Content(ctx context.Context, key string) (string, error) {
	value, err := s.store.Setting(ctx, key)
	if err != nil {
		if stderrors.Is(err, storage.ErrSettingNotFound) {
			return "", nil
		}
		return "", errors.NewStorageError(fmt.Errorf("load setting %s: %w", key, err))
	}

	return value, nil
}

// SetContent upserts a content setting.
func (s *Service) SetContent(ctx context.Context, key, value string) error {
	if err := s.store.SetSetting(ctx, key, value); err != nil {
		return errors.NewStorageError(fmt.Errorf("save setting %s: %w", key, err))
	}

	s.log.Info("content setting updated", slog.String("key", key))

	return nil
}

// Stats returns the admin aggregate.
func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Errorf("load stats: %w", err))
	}

	return stats, nil
}

// ExportCSV renders the full registry as CSV, creation order ascending.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	users, err := s.store.ExportUsers(ctx)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Errorf("export users: %w", err))
	}

	return exporter.CSV(users)
}
