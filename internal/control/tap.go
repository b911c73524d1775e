package control

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluemock/internal/config"
	"github.com/bluemock/internal/transport"
)

// TapServer bridges a transport's peer data-plane endpoint to external
// TCP clients. A client sends one JSON-RPC `pcm_open` request naming a
// transport path; on success the connection switches to raw S16LE
// bytes flowing both ways. One tap per transport at a time.
type TapServer struct {
	config   *config.Config
	hub      *Hub
	listener net.Listener
	stopChan chan struct{}

	mu     sync.Mutex
	active map[string]string // transport path -> tap session id
}

// NewTapServer creates a new PCM tap server
func NewTapServer(cfg *config.Config, hub *Hub) *TapServer {
	return &TapServer{
		config:   cfg,
		hub:      hub,
		stopChan: make(chan struct{}),
		active:   make(map[string]string),
	}
}

// Start binds the tap listener and begins accepting connections.
func (s *TapServer) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Network.Tap.Port))
	if err != nil {
		return fmt.Errorf("tap listener: %w", err)
	}
	s.listener = listener

	log.Printf("pcm tap server listening on %s", listener.Addr())

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.stopChan:
					return
				default:
				}
				if strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("tap accept failed: %v", err)
				continue
			}

			if !s.isAllowedConnection(conn) {
				log.Printf("rejected tap connection from %s (not in allowed CIDRs)", conn.RemoteAddr())
				conn.Close()
				continue
			}

			go s.handleConnection(conn)
		}
	}()

	return nil
}

// Addr returns the bound listener address, for tests using port 0.
func (s *TapServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleConnection serves one tap client.
func (s *TapServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var req Request
	if err := json.NewDecoder(io.LimitReader(conn, 4096)).Decode(&req); err != nil {
		log.Printf("failed to decode tap request: %v", err)
		s.writeErrorResponse(conn, -32700, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeErrorResponse(conn, -32600, "Invalid Request", req.ID)
		return
	}

	if req.Method != "pcm_open" {
		s.writeErrorResponse(conn, -32601, "Method not found", req.ID)
		return
	}

	if len(req.Params) != 1 {
		s.writeErrorResponse(conn, -32602, ErrInvalidParams, req.ID)
		return
	}
	path := req.Params[0]

	t, ok := s.hub.Transport(path)
	if !ok {
		s.writeErrorResponse(conn, -32602, ErrNotFound, req.ID)
		return
	}

	peer := t.Peer()
	if peer == nil {
		s.writeErrorResponse(conn, -32602, ErrUnavailable, req.ID)
		return
	}

	session := uuid.NewString()
	s.mu.Lock()
	if _, busy := s.active[path]; busy {
		s.mu.Unlock()
		s.writeErrorResponse(conn, -32602, ErrBusy, req.ID)
		return
	}
	s.active[path] = session
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.active[path] == session {
			delete(s.active, path)
		}
		s.mu.Unlock()
	}()

	resp := &Response{JSONRPC: "2.0", Result: []string{session}, ID: req.ID}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Printf("failed to encode tap response: %v", err)
		return
	}

	conn.SetReadDeadline(time.Time{})
	log.Printf("pcm tap %s opened for %s by %s", session, path, conn.RemoteAddr())
	s.bridge(conn, t)
	log.Printf("pcm tap %s for %s closed", session, path)
}

// bridge copies bytes between the tap client and the transport's peer
// endpoint until either side goes away. The peer end stays open across
// taps; only the TCP connection is torn down here. Both copiers are
// joined before returning, so no reader from this session survives
// into the next one and steals its audio.
func (s *TapServer) bridge(conn net.Conn, t *transport.Transport) {
	peer := t.Peer()
	done := make(chan struct{}, 2)

	// Outbound: synthesized audio toward the tap client.
	go func() {
		io.Copy(conn, peer)
		done <- struct{}{}
	}()

	// Inbound: client audio toward the transport (sink and voice
	// microphone testing).
	go func() {
		io.Copy(peer, conn)
		done <- struct{}{}
	}()

	finished := 0
	select {
	case <-done:
		finished++
	case <-s.stopChan:
	}

	// Unblock whatever the other copier is stuck on, then join it.
	conn.SetDeadline(time.Now())
	peer.SetDeadline(time.Now())
	for ; finished < 2; finished++ {
		<-done
	}
	peer.SetDeadline(time.Time{})
}

// isAllowedConnection checks if the connection is from an allowed CIDR
func (s *TapServer) isAllowedConnection(conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}

	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	for _, cidrStr := range s.config.Network.Tap.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			log.Printf("invalid CIDR in config: %s", cidrStr)
			continue
		}
		if network.Contains(clientIP) {
			return true
		}
	}

	return false
}

// writeErrorResponse writes an error response
func (s *TapServer) writeErrorResponse(conn net.Conn, code int, message string, id interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}

	json.NewEncoder(conn).Encode(response)
}

// Close shuts down the tap server
func (s *TapServer) Close() error {
	select {
	case <-s.stopChan:
		// Already closed
		return nil
	default:
		close(s.stopChan)
	}

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
