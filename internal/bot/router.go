package bot

import (
	"strings"
	"sync"

	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/arthall/onboard-bot/internal/bot/handlers"
)

// Router dispatches commands, menu button presses, contact shares, and
// state-aware fallbacks.
type Router struct {
	mu             sync.RWMutex
	commands       map[string]handlers.Handler
	texts          map[string]handlers.Handler
	contactHandler handlers.Handler
	dispatcher     *Dispatcher
	defaultHandler handlers.Handler
	middlewares    []handlers.Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(dispatcher *Dispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:    make(map[string]handlers.Handler),
		texts:       make(map[string]handlers.Handler),
		dispatcher:  dispatcher,
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// RegisterCommand registers a handler for a bot command.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// RegisterText registers a handler for an exact menu button label.
func (r *Router) RegisterText(label string, h handlers.Handler) {
	if label == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts[label] = h
}

// RegisterContact registers the handler for shared contacts.
func (r *Router) RegisterContact(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contactHandler = h
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the fallback handler for unmatched updates.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if msg := c.Message(); msg != nil && msg.Contact != nil {
		if handler := r.getContactHandler(); handler != nil {
			return r.executeHandler(handler, c)
		}
		return nil
	}

	text := c.Text()

	if strings.HasPrefix(text, "/") {
		if handler := r.getCommandHandler(commandName(text)); handler != nil {
			return r.executeHandler(handler, c)
		}
	}

	if handler := r.getTextHandler(text); handler != nil {
		return r.executeHandler(handler, c)
	}

	if r.dispatcher != nil {
		if handler := r.dispatcher.Resolve(c); handler != nil {
			return r.executeHandler(handler, c)
		}
	}

	if handler := r.getDefaultHandler(); handler != nil {
		return r.executeHandler(handler, c)
	}

	return nil
}

// commandName strips the payload and an optional @botname suffix.
func commandName(text string) string {
	cmd := text
	if idx := strings.IndexByte(cmd, ' '); idx >= 0 {
		cmd = cmd[:idx]
	}
	if idx := strings.IndexByte(cmd, '@'); idx >= 0 {
		cmd = cmd[:idx]
	}
	return cmd
}

func (r *Router) executeHandler(h handlers.Handler, c telebot.Context) error {
	wrapped := r.applyMiddlewares(h)
	if wrapped == nil {
		return nil
	}
	return wrapped(c)
}

func (r *Router) getCommandHandler(cmd string) handlers.Handler {
	r.mu.RLock()
	handler := r.commands[cmd]
	r.mu.RUnlock()
	return handler
}

func (r *Router) getTextHandler(text string) handlers.Handler {
	r.mu.RLock()
	handler := r.texts[text]
	r.mu.RUnlock()
	return handler
}

func (r *Router) getContactHandler() handlers.Handler {
	r.mu.RLock()
	handler := r.contactHandler
	r.mu.RUnlock()
	return handler
}

func (r *Router) getDefaultHandler() handlers.Handler {
	r.mu.RLock()
	handler := r.defaultHandler
	r.mu.RUnlock()
	return handler
}

// applyMiddlewares wraps the handler with all registered middlewares.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	if h == nil {
		return nil
	}

	middlewares := r.middlewaresSnapshot()
	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}

func (r *Router) middlewaresSnapshot() []handlers.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.middlewares) == 0 {
		return nil
	}

	snapshot := make([]handlers.Middleware, len(r.middlewares))
	copy(snapshot, r.middlewares)
	return snapshot
}
