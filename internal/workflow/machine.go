package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userLockKeyPattern = "workflow:lock:%d"
	lockTTL            = 5 * time.Second
)

var (
	// ErrInvalidTransition indicates that a requested transition is not allowed.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrStateNotFound indicates that a user state record does not exist.
	ErrStateNotFound = errors.New("workflow state not found")
	// ErrStateLocked indicates that a concurrent operation already holds the lock.
	ErrStateLocked = errors.New("workflow state is locked, try again later")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// Machine describes the operations supported by the workflow controller.
type Machine interface {
	GetState(ctx context.Context, userID int64) (*UserState, error)
	SetState(ctx context.Context, userID int64, state State) error
	TransitionTo(ctx context.Context, userID int64, newState State) error
	ClearState(ctx context.Context, userID int64) error
	GetAllStates(ctx context.Context) ([]*UserState, error)
}

// machine is a concrete Machine backed by Storage and optional Redis locking.
type machine struct {
	storage     Storage
	log         *slog.Logger
	redisClient *redis.Client
}

// NewMachine creates a workflow controller using the provided storage
// backend. When redisClient is non-nil, per-user distributed locks guard
// each mutation against concurrent handlers on other instances.
func NewMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) Machine {
	if log == nil {
		log = slog.Default()
	}

	return &machine{
		storage:     storage,
		log:         log,
		redisClient: redisClient,
	}
}

// GetState proxies to the underlying storage implementation.
func (m *machine) GetState(ctx context.Context, userID int64) (*UserState, error) {
	return m.storage.GetState(ctx, userID)
}

// SetState persists the state unconditionally under the user lock. Used
// for the first-contact entry into StateAwaitingPhone.
func (m *machine) SetState(ctx context.Context, userID int64, state State) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	return m.saveState(ctx, userID, state)
}

// TransitionTo changes the state if the transition is allowed.
func (m *machine) TransitionTo(ctx context.Context, userID int64, newState State) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	var current State

	storedState, err := m.storage.GetState(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			return err
		}
	} else if storedState != nil {
		current = storedState.CurrentState
	}

	if !IsTransitionAllowed(current, newState) {
		m.log.Warn("invalid workflow transition",
			slog.Int64("user_id", userID),
			slog.String("from", string(current)),
			slog.String("to", string(newState)))
		return ErrInvalidTransition
	}

	transitionRecorder(string(current), string(newState))

	return m.saveState(ctx, userID, newState)
}

// ClearState removes the stored state while holding the lock.
func (m *machine) ClearState(ctx context.Context, userID int64) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	return m.storage.ClearState(ctx, userID)
}

// GetAllStates returns every stored workflow state.
func (m *machine) GetAllStates(ctx context.Context) ([]*UserState, error) {
	return m.storage.ListStates(ctx)
}

func (m *machine) saveState(ctx context.Context, userID int64, state State) error {
	return m.storage.SetState(ctx, userID, &UserState{
		UserID:       userID,
		CurrentState: state,
	})
}

func (m *machine) lock(ctx context.Context, userID int64) error {
	if m.redisClient == nil {
		return nil
	}

	key := fmt.Sprintf(userLockKeyPattern, userID)
	acquired, err := m.redisClient.SetNX(ctx, key, 1, lockTTL).Result()
	if err != nil {
		m.log.Error("failed to acquire workflow lock",
			slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	if !acquired {
		m.log.Warn("workflow lock already held", slog.Int64("user_id", userID))
		return ErrStateLocked
	}

	return nil
}

func (m *machine) unlock(ctx context.Context, userID int64) {
	if m.redisClient == nil {
		return
	}

	key := fmt.Sprintf(userLockKeyPattern, userID)
	if err := m.redisClient.Del(ctx, key).Err(); err != nil {
		m.log.Error("failed to release workflow lock",
			slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
