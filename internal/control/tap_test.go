package control

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/bluemock/internal/config"
	"github.com/bluemock/internal/transport"
)

// testTapServer builds a tap server on an ephemeral port with one
// source transport registered but not yet acquired.
func testTapServer(t *testing.T) (*TapServer, *Hub, *transport.Transport, func()) {
	t.Helper()

	cfg := config.Default()
	cfg.Network.Tap.Port = 0

	hub := NewHub()
	tap := NewTapServer(cfg, hub)
	if err := tap.Start(); err != nil {
		t.Fatalf("failed to start tap server: %v", err)
	}

	adapter := transport.NewAdapter(0)
	device, err := adapter.NewDevice("12:34:56:78:9A:BC")
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	src, err := transport.New(device, transport.A2DPSource, "/source/1", transport.Options{
		Owner:  ":test",
		SBC:    transport.DefaultSBC(),
		Audio:  cfg.Audio,
		Timing: cfg.Timing,
	})
	if err != nil {
		t.Fatalf("failed to create source transport: %v", err)
	}
	hub.TransportAdded(src)

	cleanup := func() {
		src.Destroy()
		tap.Close()
		adapter.Release()
	}
	return tap, hub, src, cleanup
}

// openTap dials the tap server and sends a pcm_open request for the
// given path, returning the connection, a buffered reader positioned
// after the response line, and the decoded response.
func openTap(t *testing.T, tap *TapServer, path string) (net.Conn, *bufio.Reader, rpcResponse) {
	t.Helper()

	conn, err := net.Dial("tcp", loopbackAddr(t, tap.Addr()))
	if err != nil {
		t.Fatalf("failed to dial tap server: %v", err)
	}

	req := Request{JSONRPC: "2.0", Method: "pcm_open", Params: []string{path}, ID: 1}
	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		conn.Close()
		t.Fatalf("failed to send pcm_open: %v", err)
	}

	// The response is newline-terminated JSON; raw PCM bytes may
	// follow immediately, so read exactly one line.
	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		conn.Close()
		t.Fatalf("failed to read pcm_open response: %v", err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		conn.Close()
		t.Fatalf("failed to decode pcm_open response: %v", err)
	}
	return conn, reader, resp
}

func TestTapUnknownTransport(t *testing.T) {
	tap, _, _, cleanup := testTapServer(t)
	defer cleanup()

	conn, _, resp := openTap(t, tap, "/source/9")
	defer conn.Close()

	if msg := errorField(t, resp, "message"); msg != ErrNotFound {
		t.Errorf("expected error %s, got %v", ErrNotFound, msg)
	}
}

func TestTapUnacquiredTransport(t *testing.T) {
	tap, _, _, cleanup := testTapServer(t)
	defer cleanup()

	conn, _, resp := openTap(t, tap, "/source/1")
	defer conn.Close()

	if msg := errorField(t, resp, "message"); msg != ErrUnavailable {
		t.Errorf("expected error %s, got %v", ErrUnavailable, msg)
	}
}

func TestTapUnknownMethod(t *testing.T) {
	tap, _, _, cleanup := testTapServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", loopbackAddr(t, tap.Addr()))
	if err != nil {
		t.Fatalf("failed to dial tap server: %v", err)
	}
	defer conn.Close()

	req := Request{JSONRPC: "2.0", Method: "status", Params: nil, ID: 1}
	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp rpcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if code := errorField(t, resp, "code"); code != float64(-32601) {
		t.Errorf("expected method not found -32601, got %v", code)
	}
}

func TestTapStreamsSynthesizedAudio(t *testing.T) {
	tap, _, src, cleanup := testTapServer(t)
	defer cleanup()

	if err := src.Acquire(); err != nil {
		t.Fatalf("failed to acquire transport: %v", err)
	}

	conn, reader, resp := openTap(t, tap, "/source/1")
	defer conn.Close()

	if resp.Error != nil {
		t.Fatalf("pcm_open failed: %v", resp.Error)
	}
	var session []string
	if err := json.Unmarshal(resp.Result, &session); err != nil {
		t.Fatalf("failed to decode session id: %v", err)
	}
	if len(session) != 1 || session[0] == "" {
		t.Fatalf("expected one session id, got %v", session)
	}

	// The delivery worker is streaming; raw S16LE bytes must arrive.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := reader.Read(buf)
	if err != nil {
		t.Fatalf("failed to read pcm bytes: %v", err)
	}
	if n == 0 {
		t.Error("expected pcm data on the tap connection")
	}
}

func TestTapBusyWhileSessionOpen(t *testing.T) {
	tap, _, src, cleanup := testTapServer(t)
	defer cleanup()

	if err := src.Acquire(); err != nil {
		t.Fatalf("failed to acquire transport: %v", err)
	}

	first, _, resp := openTap(t, tap, "/source/1")
	defer first.Close()
	if resp.Error != nil {
		t.Fatalf("first pcm_open failed: %v", resp.Error)
	}

	second, _, resp := openTap(t, tap, "/source/1")
	defer second.Close()
	if msg := errorField(t, resp, "message"); msg != ErrBusy {
		t.Errorf("expected error %s, got %v", ErrBusy, msg)
	}
}

func TestTapHandoverDeliversToNewSession(t *testing.T) {
	tap, _, src, cleanup := testTapServer(t)
	defer cleanup()

	if err := src.Acquire(); err != nil {
		t.Fatalf("failed to acquire transport: %v", err)
	}

	first, reader, resp := openTap(t, tap, "/source/1")
	if resp.Error != nil {
		t.Fatalf("first pcm_open failed: %v", resp.Error)
	}
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := reader.Read(make([]byte, 4096)); err != nil {
		t.Fatalf("first session received no pcm bytes: %v", err)
	}
	first.Close()

	// Once the slot frees, the new session owns the peer end outright:
	// its audio must arrive here, not in a leftover copier from the
	// first session.
	deadline := time.Now().Add(2 * time.Second)
	for {
		second, reader, resp := openTap(t, tap, "/source/1")
		if resp.Error == nil {
			second.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := reader.Read(make([]byte, 4096))
			second.Close()
			if err != nil {
				t.Fatalf("second session received no pcm bytes: %v", err)
			}
			if n == 0 {
				t.Error("expected pcm data on the second session")
			}
			return
		}
		second.Close()
		if time.Now().After(deadline) {
			t.Fatalf("tap still busy after client disconnect: %v", resp.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTapSessionReleasedOnDisconnect(t *testing.T) {
	tap, _, src, cleanup := testTapServer(t)
	defer cleanup()

	if err := src.Acquire(); err != nil {
		t.Fatalf("failed to acquire transport: %v", err)
	}

	first, _, resp := openTap(t, tap, "/source/1")
	if resp.Error != nil {
		t.Fatalf("first pcm_open failed: %v", resp.Error)
	}
	first.Close()

	// The session slot frees once the server observes the disconnect.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, resp := openTap(t, tap, "/source/1")
		conn.Close()
		if resp.Error == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("tap still busy after client disconnect: %v", resp.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
