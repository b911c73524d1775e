package transport

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bluemock/internal/config"
)

// Options carries the per-transport construction parameters.
type Options struct {
	// Owner is the identity of the collaborator that requested the
	// transport, recorded for listings only.
	Owner string
	// SBC is the negotiated configuration for streaming roles.
	SBC SBCConfig
	// Audio and Timing come from the harness configuration.
	Audio  config.Audio
	Timing config.Timing
	// Cancel is the shared test-control token observed by the
	// delivery worker alongside the per-transport stop request.
	Cancel context.Context
	// StartupDelay simulates slow hardware negotiation before the
	// transport becomes visible (fuzzing mode).
	StartupDelay time.Duration
}

// Transport represents one emulated audio link. The data-plane handle
// is valid exactly between Acquire and Release, and at most one
// delivery worker is bound to a transport at a time.
type Transport struct {
	path   string
	owner  string
	role   Role
	device *Device

	sbc    SBCConfig
	audio  config.Audio
	timing config.Timing
	cancel context.Context

	ops roleOps

	spk *PCMStream
	mic *PCMStream // voice role only

	mu       sync.Mutex
	voice    VoiceCodec
	handle   *os.File
	peer     *os.File
	mtuRead  int
	mtuWrite int

	workerMu sync.Mutex
	stopCh   chan struct{}
	done     chan struct{}
}

// roleOps is the role-specific acquire/release behavior, fixed at
// construction time.
type roleOps interface {
	acquire(t *Transport) error
	release(t *Transport) error
}

// releaseOps provides the release behavior shared by every role:
// close the handle if open and clear it, as a no-op when repeated.
type releaseOps struct{}

func (releaseOps) release(t *Transport) error {
	t.mu.Lock()
	handle := t.handle
	t.handle = nil
	t.mu.Unlock()

	if handle != nil {
		handle.Close()
		log.Printf("transport %s released", t.path)
	}
	return nil
}

// sourceOps acquires the data plane and starts the delivery worker.
type sourceOps struct{ releaseOps }

func (sourceOps) acquire(t *Transport) error {
	if err := t.openDataPlane(); err != nil {
		return err
	}
	t.ensureWorker()
	return nil
}

// sinkOps only establishes the handle; the harness is the consumer
// for sink-role testing, so no delivery worker starts.
type sinkOps struct{ releaseOps }

func (sinkOps) acquire(t *Transport) error {
	return t.openDataPlane()
}

// voiceOps acquires the data plane and starts the delivery worker on
// the speaker-direction stream.
type voiceOps struct{ releaseOps }

func (voiceOps) acquire(t *Transport) error {
	if err := t.openDataPlane(); err != nil {
		return err
	}
	t.ensureWorker()
	return nil
}

// New creates a transport on the given device. Sink-role transports
// are acquired eagerly so the service under test can begin writing
// immediately. The startup delay, if any, is served before the
// transport becomes visible.
func New(d *Device, role Role, path string, opts Options) (*Transport, error) {
	if opts.StartupDelay > 0 {
		time.Sleep(opts.StartupDelay)
	}

	cancel := opts.Cancel
	if cancel == nil {
		cancel = context.Background()
	}

	t := &Transport{
		path:   path,
		owner:  opts.Owner,
		role:   role,
		device: d,
		sbc:    opts.SBC,
		audio:  opts.Audio,
		timing: opts.Timing,
		cancel: cancel,
	}

	switch role {
	case A2DPSource:
		t.ops = sourceOps{}
		t.spk = newPCMStream(t, DirSpeaker, t.sbc.SampleRate, t.sbc.Channels())
	case A2DPSink:
		t.ops = sinkOps{}
		t.spk = newPCMStream(t, DirSpeaker, t.sbc.SampleRate, t.sbc.Channels())
	case HSPGateway:
		t.ops = voiceOps{}
		t.voice = CodecCVSD
	case HFPGateway:
		t.ops = voiceOps{}
		t.voice = CodecMSBC
	default:
		return nil, fmt.Errorf("unknown transport role %d", role)
	}

	if role.IsVoice() {
		rate := t.voice.SampleRate()
		t.spk = newPCMStream(t, DirSpeaker, rate, 1)
		t.mic = newPCMStream(t, DirMicrophone, rate, 1)
	}

	d.addTransport(t)
	log.Printf("transport %s created on %s (%s)", path, d.Addr(), role)

	if role == A2DPSink {
		if err := t.Acquire(); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Path returns the transport's identifier.
func (t *Transport) Path() string {
	return t.path
}

// Role returns the transport's profile role.
func (t *Transport) Role() Role {
	return t.role
}

// Device returns the owning device.
func (t *Transport) Device() *Device {
	return t.device
}

// Speaker returns the speaker-direction PCM stream.
func (t *Transport) Speaker() *PCMStream {
	return t.spk
}

// Microphone returns the microphone-direction stream, or nil for
// streaming roles.
func (t *Transport) Microphone() *PCMStream {
	return t.mic
}

// SBC returns the negotiated SBC configuration of a streaming
// transport.
func (t *Transport) SBC() SBCConfig {
	return t.sbc
}

// VoiceCodec returns the current voice codec of a voice transport.
func (t *Transport) VoiceCodec() VoiceCodec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.voice
}

// SetVoiceCodec switches the voice codec and repropagates the implied
// sampling rate to both PCM streams, the way a real renegotiation
// would.
func (t *Transport) SetVoiceCodec(c VoiceCodec) error {
	if !t.role.IsVoice() {
		return fmt.Errorf("transport %s has no voice codec", t.path)
	}

	t.mu.Lock()
	t.voice = c
	t.mu.Unlock()

	t.spk.setSampleRate(c.SampleRate())
	t.mic.setSampleRate(c.SampleRate())
	log.Printf("transport %s voice codec set to %s", t.path, c)
	return nil
}

// Acquire binds the transport to a live data-plane connection and,
// for producer roles, starts the delivery worker. Acquiring an
// already-acquired transport is a no-op.
func (t *Transport) Acquire() error {
	return t.ops.acquire(t)
}

// Release closes the data-plane handle if open and clears it. It is
// idempotent and does not stop a running delivery worker; the worker
// simply observes the missing handle and idles.
func (t *Transport) Release() error {
	return t.ops.release(t)
}

// Acquired reports whether the data-plane handle is set.
func (t *Transport) Acquired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != nil
}

// Peer returns the far end of the data-plane pair, handed to whatever
// external consumer opens the transport's exposed stream. It is nil
// until the first acquire.
func (t *Transport) Peer() *os.File {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peer
}

// MTU returns the read and write MTU fixed at acquire time.
func (t *Transport) MTU() (read, write int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mtuRead, t.mtuWrite
}

// openDataPlane constructs the connected endpoint pair, keeps one end
// as the transport handle and fixes the MTU for both directions.
func (t *Transport) openDataPlane() error {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socketpair for %s: %w", t.path, err)
	}

	// Non-blocking so the os.File poller honors write deadlines.
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	local := os.NewFile(uintptr(fds[0]), t.path+":local")
	peer := os.NewFile(uintptr(fds[1]), t.path+":peer")

	t.mu.Lock()
	if t.handle != nil {
		t.mu.Unlock()
		local.Close()
		peer.Close()
		return nil
	}
	if t.peer != nil {
		// Stale far end from a previous acquire cycle.
		t.peer.Close()
	}
	t.handle = local
	t.peer = peer
	t.mtuRead = t.audio.MTU
	t.mtuWrite = t.audio.MTU
	t.mu.Unlock()

	log.Printf("transport %s acquired (mtu %d)", t.path, t.audio.MTU)
	return nil
}

// Destroy tears the transport down: the delivery worker is stopped
// and joined, the data-plane ends are closed, and the transport is
// unregistered from its device.
func (t *Transport) Destroy() {
	t.StopWorker()
	t.Release()

	t.mu.Lock()
	peer := t.peer
	t.peer = nil
	t.mu.Unlock()
	if peer != nil {
		peer.Close()
	}

	t.device.removeTransport(t)
	log.Printf("transport %s destroyed", t.path)
}

// Describe returns the transport descriptor reported by the control
// surface.
func (t *Transport) Describe() Descriptor {
	desc := Descriptor{
		Path:     t.path,
		Owner:    t.owner,
		Device:   t.device.Addr(),
		Role:     t.role.String(),
		Acquired: t.Acquired(),
	}

	if t.role.IsVoice() {
		desc.Codec = t.VoiceCodec().String()
		desc.SampleRate = t.spk.SampleRate()
		desc.Channels = 1
	} else {
		desc.Codec = "SBC"
		desc.SampleRate = t.sbc.SampleRate
		desc.Channels = t.sbc.Channels()
		sbc := t.sbc
		desc.SBC = &sbc
	}

	return desc
}

// Descriptor is the wire representation of a transport.
type Descriptor struct {
	Path       string     `json:"path"`
	Owner      string     `json:"owner,omitempty"`
	Device     string     `json:"device"`
	Role       string     `json:"role"`
	Codec      string     `json:"codec"`
	SampleRate int        `json:"sampleRate"`
	Channels   int        `json:"channels"`
	Acquired   bool       `json:"acquired"`
	SBC        *SBCConfig `json:"sbc,omitempty"`
}
