// Package harness orchestrates a bluemock run: service registration,
// topology construction, the session wait, and ordered teardown.
package harness

import (
	"context"
	"log"
	"time"

	"github.com/bluemock/internal/config"
	"github.com/bluemock/internal/control"
	"github.com/bluemock/internal/topology"
	"github.com/bluemock/internal/transport"
)

// Harness ties the control surface to the emulated topology. Its Run
// method is the control goroutine: nothing else mutates the adapter or
// device containers.
type Harness struct {
	cfg    *config.Config
	hub    *control.Hub
	server *control.Server
	tap    *control.TapServer

	streamCtx context.Context
	voiceCtx  context.Context

	adapter *transport.Adapter
	topo    *topology.Topology
}

// New creates a harness. streamCtx and voiceCtx are the test-control
// cancellation tokens observed by streaming and voice delivery
// workers respectively; either may be nil.
func New(cfg *config.Config, streamCtx, voiceCtx context.Context) *Harness {
	if streamCtx == nil {
		streamCtx = context.Background()
	}
	if voiceCtx == nil {
		voiceCtx = context.Background()
	}

	hub := control.NewHub()
	return &Harness{
		cfg:       cfg,
		hub:       hub,
		server:    control.NewServer(cfg, hub),
		tap:       control.NewTapServer(cfg, hub),
		streamCtx: streamCtx,
		voiceCtx:  voiceCtx,
	}
}

// Hub returns the control-plane hub, for event subscription in tests.
func (h *Harness) Hub() *control.Hub {
	return h.hub
}

// ControlAddr returns the bound control server address.
func (h *Harness) ControlAddr() string {
	return h.server.Addr()
}

// TapAddr returns the bound PCM tap address.
func (h *Harness) TapAddr() string {
	return h.tap.Addr()
}

// Topology returns the built topology, nil before Start.
func (h *Harness) Topology() *topology.Topology {
	return h.topo
}

// Start registers the service and builds the topology. The control
// listeners are bound before any topology work begins, so "service
// registered" happens-before the builder runs.
func (h *Harness) Start() error {
	if err := h.server.Start(); err != nil {
		return err
	}
	if err := h.tap.Start(); err != nil {
		return err
	}

	h.hub.ServiceRegistered(h.cfg.Service.Name)
	log.Printf("BLUEMOCK_SERVICE_NAME=%s", h.cfg.Service.Name)

	h.adapter = transport.NewAdapter(0)

	topo, err := topology.Build(h.cfg, h.adapter, h.hub, h.streamCtx, h.voiceCtx)
	h.topo = topo
	return err
}

// Run starts the harness, waits for the session-idle timeout or for
// ctx cancellation (graceful termination), then shuts everything down
// in order.
func (h *Harness) Run(ctx context.Context) error {
	if err := h.Start(); err != nil {
		h.Shutdown()
		return err
	}

	timeout := time.Duration(h.cfg.Timing.TimeoutSec) * time.Second
	if timeout > 0 {
		select {
		case <-ctx.Done():
			log.Printf("termination requested")
		case <-time.After(timeout):
			log.Printf("session timeout (%v) elapsed", timeout)
		}
	} else {
		<-ctx.Done()
		log.Printf("termination requested")
	}

	return h.Shutdown()
}

// Shutdown tears down the topology (joining every delivery worker),
// releases the adapter and stops the control listeners.
func (h *Harness) Shutdown() error {
	if h.topo != nil {
		h.topo.Teardown()
		h.topo = nil
		h.adapter = nil
	} else if h.adapter != nil {
		h.adapter.Release()
		h.adapter = nil
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(shCtx); err != nil {
		log.Printf("control server shutdown error: %v", err)
	}
	if err := h.tap.Close(); err != nil {
		log.Printf("tap server shutdown error: %v", err)
	}

	return nil
}
