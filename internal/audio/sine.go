// Package audio provides the synthesized payload and the real-time
// pacing used by delivery workers. The tone generator is deterministic
// with respect to its cursor so captured streams are reproducible.
package audio

import "math"

// Generator produces a continuous sine tone as interleaved signed
// 16-bit samples. The running cursor is carried across Fill calls, so
// consecutive buffers form one seamless waveform.
type Generator struct {
	rate      int
	channels  int
	toneHz    int
	amplitude float64
	cursor    int // frame position within the current one-second period
}

// NewGenerator returns a tone generator. volumeDiv scales the output
// down from full scale (a divisor of 128 keeps test payloads quiet).
func NewGenerator(rate, channels, toneHz, volumeDiv int) *Generator {
	if volumeDiv < 1 {
		volumeDiv = 1
	}
	return &Generator{
		rate:      rate,
		channels:  channels,
		toneHz:    toneHz,
		amplitude: 1.0 / float64(volumeDiv),
	}
}

// Fill writes interleaved frames into buf and advances the cursor.
// len(buf) must be a multiple of the channel count. It returns the
// number of frames written.
func (g *Generator) Fill(buf []int16) int {
	frames := len(buf) / g.channels
	step := 2 * math.Pi * float64(g.toneHz) / float64(g.rate)

	for i := 0; i < frames; i++ {
		sample := int16(g.amplitude * 32767 * math.Sin(step*float64(g.cursor)))
		for ch := 0; ch < g.channels; ch++ {
			buf[i*g.channels+ch] = sample
		}

		g.cursor++
		if g.cursor >= g.rate {
			// One full second is a whole number of tone periods, so
			// wrapping keeps the waveform continuous.
			g.cursor = 0
		}
	}

	return frames
}

// Cursor returns the current frame position. A generator created with
// SetCursor(n) continues exactly where another one left off at n.
func (g *Generator) Cursor() int {
	return g.cursor
}

// SetCursor positions the generator at an absolute frame offset.
func (g *Generator) SetCursor(n int) {
	if n < 0 {
		n = 0
	}
	g.cursor = n % g.rate
}

// Channels returns the interleaved channel count.
func (g *Generator) Channels() int {
	return g.channels
}
