package contracttests

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bluemock/internal/config"
	"github.com/bluemock/internal/harness"
)

// startHarness runs a full harness with every role enabled on
// ephemeral ports and returns loopback control and tap addresses.
func startHarness(t *testing.T) (h *harness.Harness, controlAddr, tapAddr string) {
	t.Helper()

	cfg := config.Default()
	cfg.Network.HTTP.Port = 0
	cfg.Network.Tap.Port = 0
	cfg.Roles.Source = true
	cfg.Roles.Sink = true
	cfg.Roles.Voice = true

	h = harness.New(cfg, nil, nil)
	if err := h.Start(); err != nil {
		t.Fatalf("failed to start harness: %v", err)
	}
	t.Cleanup(func() { h.Shutdown() })

	return h, loopback(t, h.ControlAddr()), loopback(t, h.TapAddr())
}

func loopback(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("bad listener address %q: %v", addr, err)
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func rpcCall(t *testing.T, addr, method string, params []string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	resp, err := http.Post(fmt.Sprintf("http://%s/bluemock_api", addr),
		"application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return raw
}

func TestControlSurfaceEnvelopeContract(t *testing.T) {
	_, controlAddr, _ := startHarness(t)

	// Every response, success or failure, is a valid JSON-RPC 2.0
	// envelope with known error codes.
	calls := []struct {
		name   string
		method string
		params []string
	}{
		{"status", "status", nil},
		{"list transports", "list_transports", nil},
		{"acquire", "transport_acquire", []string{"/source/1"}},
		{"release", "transport_release", []string{"/source/1"}},
		{"release unknown", "transport_release", []string{"/nope"}},
		{"acquire bad params", "transport_acquire", nil},
		{"set configuration", "set_configuration", []string{"/source/1"}},
		{"unknown method", "frobnicate", nil},
	}

	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			raw := rpcCall(t, controlAddr, c.method, c.params)
			if err := ValidateEnvelope(raw); err != nil {
				t.Errorf("envelope violation: %v\nresponse: %s", err, raw)
			}

			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("failed to decode envelope: %v", err)
			}
			if len(env.Error) > 0 {
				if err := ValidateError(env.Error); err != nil {
					t.Errorf("error object violation: %v\nresponse: %s", err, raw)
				}
			}
		})
	}
}

func TestDescriptorContract(t *testing.T) {
	_, controlAddr, _ := startHarness(t)

	raw := rpcCall(t, controlAddr, "list_transports", nil)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if len(env.Result) == 0 {
		t.Fatalf("list_transports failed: %s", raw)
	}

	var descs []map[string]interface{}
	if err := json.Unmarshal(env.Result, &descs); err != nil {
		t.Fatalf("failed to decode descriptors: %v", err)
	}
	if len(descs) != 6 {
		t.Fatalf("expected 6 descriptors with all roles enabled, got %d", len(descs))
	}

	for _, desc := range descs {
		if err := ValidateDescriptor(desc); err != nil {
			t.Errorf("descriptor violation: %v", err)
		}
	}
}

func TestEventStreamContract(t *testing.T) {
	h, controlAddr, _ := startHarness(t)

	url := fmt.Sprintf("ws://%s/events", controlAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial event stream: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	h.Hub().ServiceRegistered("org.bluemock")
	h.Hub().TransportRemoved("/gone")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		var ev map[string]interface{}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("failed to read event %d: %v", i, err)
		}
		if err := ValidateEvent(ev); err != nil {
			t.Errorf("event violation: %v\nevent: %v", err, ev)
		}
	}
}

func TestTapHandshakeContract(t *testing.T) {
	_, controlAddr, tapAddr := startHarness(t)

	// Acquire so the tap has a live data plane to bridge.
	raw := rpcCall(t, controlAddr, "transport_acquire", []string{"/source/1"})
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Error) > 0 {
		t.Fatalf("acquire failed: %s", raw)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"acquired transport", "/source/1", false},
		{"unknown transport", "/source/9", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := net.Dial("tcp", tapAddr)
			if err != nil {
				t.Fatalf("failed to dial tap: %v", err)
			}
			defer conn.Close()

			req := map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "pcm_open",
				"params":  []string{tt.path},
				"id":      1,
			}
			if err := json.NewEncoder(conn).Encode(req); err != nil {
				t.Fatalf("failed to send pcm_open: %v", err)
			}

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			line, err := bufio.NewReader(conn).ReadBytes('\n')
			if err != nil {
				t.Fatalf("failed to read handshake response: %v", err)
			}

			if err := ValidateEnvelope(line); err != nil {
				t.Errorf("handshake envelope violation: %v\nresponse: %s", err, line)
			}

			var resp Envelope
			if err := json.Unmarshal(line, &resp); err != nil {
				t.Fatalf("failed to decode handshake: %v", err)
			}
			gotErr := len(resp.Error) > 0
			if gotErr != tt.wantErr {
				t.Errorf("expected error=%v, got response %s", tt.wantErr, line)
			}
			if gotErr {
				if err := ValidateError(resp.Error); err != nil {
					t.Errorf("error object violation: %v", err)
				}
			}
		})
	}
}

