package control

import (
	"context"

	"github.com/bluemock/internal/config"
)

// RegisterCoreMethods wires the harness command set into the registry.
func RegisterCoreMethods(registry *CommandRegistry, hub *Hub, cfg *config.Config) {
	registry.Register(&StatusHandler{hub: hub, config: cfg})
	registry.Register(&ListTransportsHandler{hub: hub})
	registry.Register(&AcquireHandler{hub: hub})
	registry.Register(&ReleaseHandler{hub: hub})
	registry.Register(&SetConfigurationHandler{})
}

// StatusHandler reports the harness status
type StatusHandler struct {
	hub    *Hub
	config *config.Config
}

// Handle returns the service name and transport counts
func (h *StatusHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	descs := h.hub.Transports()
	acquired := 0
	devices := map[string]struct{}{}
	for _, d := range descs {
		if d.Acquired {
			acquired++
		}
		devices[d.Device] = struct{}{}
	}

	return map[string]interface{}{
		"service":    h.hub.ServiceName(),
		"fuzzing":    h.config.Fuzzing(),
		"devices":    len(devices),
		"transports": len(descs),
		"acquired":   acquired,
	}, nil
}

func (h *StatusHandler) Name() string        { return "status" }
func (h *StatusHandler) Description() string { return "Report harness status" }
func (h *StatusHandler) ReadOnly() bool      { return true }

// ListTransportsHandler lists transport descriptors
type ListTransportsHandler struct {
	hub *Hub
}

// Handle returns every known transport descriptor, ordered by path
func (h *ListTransportsHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	return h.hub.Transports(), nil
}

func (h *ListTransportsHandler) Name() string        { return "list_transports" }
func (h *ListTransportsHandler) Description() string { return "List emulated transports" }
func (h *ListTransportsHandler) ReadOnly() bool      { return true }

// AcquireHandler binds a transport's data plane on request
type AcquireHandler struct {
	hub *Hub
}

// Handle acquires the transport named by params[0]
func (h *AcquireHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) != 1 {
		return nil, &CommandError{Code: ErrInvalidParams, Message: "expected one transport path"}
	}

	t, ok := h.hub.Transport(params[0])
	if !ok {
		return nil, &CommandError{Code: ErrNotFound, Message: "no such transport"}
	}

	if err := t.Acquire(); err != nil {
		return nil, &CommandError{Code: ErrInternal, Message: err.Error()}
	}
	return []string{""}, nil
}

func (h *AcquireHandler) Name() string        { return "transport_acquire" }
func (h *AcquireHandler) Description() string { return "Acquire a transport's data plane" }
func (h *AcquireHandler) ReadOnly() bool      { return false }

// ReleaseHandler releases a transport's data plane on request
type ReleaseHandler struct {
	hub *Hub
}

// Handle releases the transport named by params[0]; releasing an
// already-released transport succeeds
func (h *ReleaseHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	if len(params) != 1 {
		return nil, &CommandError{Code: ErrInvalidParams, Message: "expected one transport path"}
	}

	t, ok := h.hub.Transport(params[0])
	if !ok {
		return nil, &CommandError{Code: ErrNotFound, Message: "no such transport"}
	}

	if err := t.Release(); err != nil {
		return nil, &CommandError{Code: ErrInternal, Message: err.Error()}
	}
	return []string{""}, nil
}

func (h *ReleaseHandler) Name() string        { return "transport_release" }
func (h *ReleaseHandler) Description() string { return "Release a transport's data plane" }
func (h *ReleaseHandler) ReadOnly() bool      { return false }

// SetConfigurationHandler rejects codec renegotiation requests. The
// harness never implements configuration negotiation; requesters get
// a structured failure instead of a crash.
type SetConfigurationHandler struct{}

// Handle always fails with NOT_SUPPORTED
func (h *SetConfigurationHandler) Handle(ctx context.Context, params []string) (interface{}, error) {
	return nil, &CommandError{Code: ErrNotSupported, Message: "Not supported"}
}

func (h *SetConfigurationHandler) Name() string        { return "set_configuration" }
func (h *SetConfigurationHandler) Description() string { return "Codec configuration negotiation" }
func (h *SetConfigurationHandler) ReadOnly() bool      { return false }
