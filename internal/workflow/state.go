package workflow

import "time"

// State represents a participant's progress through registration.
type State string

const (
	// StateAwaitingPhone indicates the user is registered but has not yet
	// shared a phone number or skipped that step.
	StateAwaitingPhone State = "awaiting_phone"
	// StateComplete indicates registration is finished, with or without a
	// phone number.
	StateComplete State = "complete"
)

// A user with no stored state and no registry record is in the implicit
// "unknown" state; first contact moves them to StateAwaitingPhone.

// UserState captures the current workflow position for a Telegram user.
type UserState struct {
	UserID       int64     `json:"user_id"`
	CurrentState State     `json:"current_state"`
	UpdatedAt    time.Time `json:"updated_at"`
}
