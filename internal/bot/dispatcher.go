package bot

import (
	"errors"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/handlers"
	"github.com/arthall/onboard-bot/internal/workflow"
)

// Dispatcher resolves a handler from the sender's workflow state. It
// covers free-form text during onboarding: a user mid-registration who
// types something other than a button press gets the phone prompt again.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[workflow.State]handlers.Handler
	fsm      workflow.Machine
	log      *slog.Logger
}

// NewDispatcher builds a Dispatcher bound to the workflow machine.
func NewDispatcher(fsm workflow.Machine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		handlers: make(map[workflow.State]handlers.Handler),
		fsm:      fsm,
		log:      log,
	}
}

// RegisterStateHandler wires a workflow state to its fallback handler.
func (d *Dispatcher) RegisterStateHandler(state workflow.State, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[state] = h
}

// Resolve returns the handler for the sender's current state, or nil.
func (d *Dispatcher) Resolve(c telebot.Context) handlers.Handler {
	if d.fsm == nil || c == nil || c.Sender() == nil {
		return nil
	}

	state, err := d.fsm.GetState(updateContext(c), c.Sender().ID)
	if err != nil {
		if !errors.Is(err, workflow.ErrStateNotFound) {
			d.log.Error("failed to resolve workflow state",
				slog.Int64("user_id", c.Sender().ID), slog.Any("error", err))
		}
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[state.CurrentState]
}
