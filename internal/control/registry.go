// Package control exposes the harness to the service under test: a
// JSON-RPC HTTP endpoint for commands, a WebSocket event stream for
// lifecycle notifications, and a TCP tap that bridges a transport's
// peer data-plane endpoint to an external consumer.
package control

import "context"

// CommandHandler defines the interface for control command handlers
type CommandHandler interface {
	// Handle processes a command and returns the response
	Handle(ctx context.Context, params []string) (interface{}, error)

	// Name returns the command name
	Name() string

	// Description returns a human-readable description
	Description() string

	// ReadOnly returns true if the command only reads data
	ReadOnly() bool
}

// CommandRegistry manages available commands
type CommandRegistry struct {
	handlers map[string]CommandHandler
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		handlers: make(map[string]CommandHandler),
	}
}

// Register adds a command handler to the registry
func (r *CommandRegistry) Register(handler CommandHandler) {
	r.handlers[handler.Name()] = handler
}

// Get returns a command handler by name
func (r *CommandRegistry) Get(name string) (CommandHandler, bool) {
	handler, exists := r.handlers[name]
	return handler, exists
}

// List returns all registered command names
func (r *CommandRegistry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// CommandError represents a command-specific error
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *CommandError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrNotSupported  = "NOT_SUPPORTED"
	ErrNotFound      = "NOT_FOUND"
	ErrBusy          = "BUSY"
	ErrUnavailable   = "UNAVAILABLE"
	ErrInternal      = "INTERNAL"
	ErrInvalidParams = "INVALID_PARAMS"
)
