// Package workflow manages registration workflow state for the bot.
package workflow

import "context"

// Storage defines the persistence contract for workflow state.
type Storage interface {
	// GetState returns the current state for the specified user.
	GetState(ctx context.Context, userID int64) (*UserState, error)
	// SetState saves the provided state for the specified user.
	SetState(ctx context.Context, userID int64, state *UserState) error
	// ClearState removes the state for the specified user.
	ClearState(ctx context.Context, userID int64) error
	// ListStates returns all stored states. Used by the metrics collector.
	ListStates(ctx context.Context) ([]*UserState, error)
}
