package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bluemock/internal/config"
)

// Server is the JSON-RPC 2.0 control surface plus the WebSocket event
// stream. Binding its listener is what makes the harness the provider
// of the configured service name.
type Server struct {
	config   *config.Config
	hub      *Hub
	registry *CommandRegistry

	listener   net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// NewServer creates the control server with the core command set
// registered.
func NewServer(cfg *config.Config, hub *Hub) *Server {
	registry := NewCommandRegistry()
	RegisterCoreMethods(registry, hub, cfg)

	s := &Server{
		config:   cfg,
		hub:      hub,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bluemock_api", s.HandleRequest)
	mux.HandleFunc("/events", s.handleEvents)
	s.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	return s
}

// Start binds the listener and begins serving. Registration of the
// service name is considered complete once Start returns.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Network.HTTP.Port))
	if err != nil {
		return fmt.Errorf("control listener: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("control server failed: %v", err)
		}
	}()

	log.Printf("control server listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound listener address, for tests using port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// HandleRequest handles HTTP POST requests to /bluemock_api
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	w.Header().Set("Content-Type", "application/json")
	if s.config.Network.HTTP.ServerHeader != "" {
		w.Header().Set("Server", s.config.Network.HTTP.ServerHeader)
	}

	// Only accept POST requests
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, -32600, "Invalid Request", nil)
		return
	}

	// Parse JSON-RPC request
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, -32700, "Parse error", nil)
		return
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		s.writeErrorResponse(w, -32600, "Invalid Request", req.ID)
		return
	}

	response := s.processRequest(r.Context(), &req)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("failed to encode response: %v", err)
		return
	}

	log.Printf("control request processed: method=%s, duration=%v", req.Method, time.Since(start))
}

// processRequest processes a JSON-RPC request using the command registry
func (s *Server) processRequest(ctx context.Context, req *Request) *Response {
	handler, exists := s.registry.Get(req.Method)
	if !exists {
		return &Response{
			JSONRPC: "2.0",
			Error: map[string]interface{}{
				"code":    -32601, // Method not found
				"message": "Method not found",
			},
			ID: req.ID,
		}
	}

	result, err := handler.Handle(ctx, req.Params)
	if err != nil {
		if cmdErr, ok := err.(*CommandError); ok {
			return &Response{
				JSONRPC: "2.0",
				Error: map[string]interface{}{
					"code":    -32602,
					"message": cmdErr.Code,
					"data":    cmdErr.Message,
				},
				ID: req.ID,
			}
		}

		return &Response{
			JSONRPC: "2.0",
			Error: map[string]interface{}{
				"code":    -32603, // Internal error
				"message": ErrInternal,
			},
			ID: req.ID,
		}
	}

	return &Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, code int, message string, id interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}

	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(response)
}

// handleEvents upgrades to a WebSocket and streams lifecycle events
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("event stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	log.Printf("event subscriber %s connected from %s", id, conn.RemoteAddr())

	// Read pump: detect client disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("event subscriber %s write failed: %v", id, err)
				return
			}
		case <-closed:
			return
		}
	}
}
