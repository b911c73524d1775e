package transport

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned by PCM writes while the transport has no
// data-plane handle. Delivery workers treat it as an idle stream, not
// a failure.
var ErrNotAcquired = errors.New("transport not acquired")

// Direction tells the two raw-audio channels of a voice link apart.
type Direction int

const (
	// DirSpeaker carries audio toward the remote device.
	DirSpeaker Direction = iota
	// DirMicrophone carries audio from the remote device.
	DirMicrophone
)

// String returns the direction name used in events and listings.
func (d Direction) String() string {
	if d == DirMicrophone {
		return "microphone"
	}
	return "speaker"
}

// PCMStream is one directional raw-audio channel of a transport. It
// carries the sampling parameters and funnels sample writes into the
// owning transport's data-plane handle.
type PCMStream struct {
	t   *Transport
	dir Direction

	mu         sync.Mutex
	sampleRate int
	channels   int
}

func newPCMStream(t *Transport, dir Direction, rate, channels int) *PCMStream {
	return &PCMStream{t: t, dir: dir, sampleRate: rate, channels: channels}
}

// Direction returns which way the stream flows.
func (s *PCMStream) Direction() Direction {
	return s.dir
}

// SampleRate returns the current sampling rate.
func (s *PCMStream) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

// Channels returns the channel count.
func (s *PCMStream) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels
}

func (s *PCMStream) setSampleRate(rate int) {
	s.mu.Lock()
	s.sampleRate = rate
	s.mu.Unlock()
}

// Write delivers interleaved S16LE samples to the data-plane handle in
// MTU-sized chunks. Each chunk write is bounded by the configured
// write limit; a slow or absent consumer causes an error, never an
// indefinite stall.
func (s *PCMStream) Write(samples []int16) (int, error) {
	t := s.t

	t.mu.Lock()
	handle := t.handle
	mtu := t.mtuWrite
	t.mu.Unlock()

	if handle == nil {
		return 0, ErrNotAcquired
	}

	buf := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}

	limit := time.Duration(t.timing.WriteLimitMs) * time.Millisecond
	written := 0
	for len(buf) > 0 {
		chunk := buf
		if len(chunk) > mtu {
			chunk = chunk[:mtu]
		}

		handle.SetWriteDeadline(time.Now().Add(limit))
		n, err := handle.Write(chunk)
		written += n
		if err != nil {
			return written / 2, err
		}
		buf = buf[len(chunk):]
	}

	return written / 2, nil
}
