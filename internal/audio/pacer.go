package audio

import "time"

// Pacer converts delivered frame counts into wall-clock waits so that
// audio leaves the harness no faster than a real link would carry it.
// Every wait is computed against the origin timestamp recorded when
// pacing (re)started, never against the previous call, so scheduling
// jitter does not accumulate into drift.
type Pacer struct {
	rate   int
	origin time.Time
	frames int64
}

// NewPacer returns a pacer for the given sample rate.
func NewPacer(rate int) *Pacer {
	return &Pacer{rate: rate}
}

// Sync accounts for frames just delivered and returns how long the
// caller should wait to stay aligned with real time. The first call
// after construction or Reset records the origin with a zero frame
// count and returns zero; the block delivered at that moment defines
// the epoch, so the following block waits one block interval, not two.
func (p *Pacer) Sync(frames int) time.Duration {
	if p.origin.IsZero() {
		p.origin = time.Now()
		p.frames = 0
		return 0
	}

	p.frames += int64(frames)
	deadline := p.origin.Add(time.Duration(p.frames) * time.Second / time.Duration(p.rate))
	wait := time.Until(deadline)
	if wait < 0 {
		return 0
	}
	return wait
}

// Reset forgets the origin. Must be called whenever delivery stalls
// (no data-plane handle), so resumption starts a fresh epoch instead
// of bursting to catch up.
func (p *Pacer) Reset() {
	p.origin = time.Time{}
	p.frames = 0
}

// Frames returns the frame count accounted against the current origin.
// The block that established the origin is not part of it.
func (p *Pacer) Frames() int64 {
	return p.frames
}
