package transport

import (
	"errors"
	"log"
	"time"

	"github.com/bluemock/internal/audio"
)

// startWorker launches the delivery worker for a producer-role
// transport. Starting a second worker while one is bound is a
// programming error and fails fast.
func (t *Transport) startWorker() {
	t.workerMu.Lock()
	defer t.workerMu.Unlock()

	if !t.startWorkerLocked() {
		panic("transport: delivery worker already running on " + t.path)
	}
}

// ensureWorker launches the delivery worker unless one is already
// bound. The check and the launch happen under one lock acquisition,
// so concurrent acquire requests end up with exactly one worker.
func (t *Transport) ensureWorker() {
	t.workerMu.Lock()
	defer t.workerMu.Unlock()

	t.startWorkerLocked()
}

// startWorkerLocked binds a new worker, reporting false when a live
// one is already bound. Callers hold workerMu.
func (t *Transport) startWorkerLocked() bool {
	if t.done != nil {
		select {
		case <-t.done:
			// Previous worker has exited; rebinding is allowed.
		default:
			return false
		}
	}

	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
	go t.deliveryLoop(t.stopCh, t.done)
	return true
}

// StopWorker requests the delivery worker to stop and joins it. It is
// a no-op when no worker is bound and safe to call repeatedly.
func (t *Transport) StopWorker() {
	t.workerMu.Lock()
	stop := t.stopCh
	done := t.done
	t.stopCh = nil
	t.workerMu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

// WorkerRunning reports whether a delivery worker is currently bound.
func (t *Transport) WorkerRunning() bool {
	t.workerMu.Lock()
	defer t.workerMu.Unlock()

	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// deliveryLoop is the per-transport worker: wait for the data-plane
// handle, then synthesize fixed-size blocks, write them to the PCM
// stream and pace them against wall-clock time. It exits on the stop
// request or the shared test-control token, releasing the handle on
// the way out no matter which one fired.
func (t *Transport) deliveryLoop(stop, done chan struct{}) {
	defer close(done)
	defer t.Release()

	stream := t.spk
	rate := stream.SampleRate()
	channels := stream.Channels()

	gen := audio.NewGenerator(rate, channels, t.audio.ToneHz, t.audio.VolumeDiv)
	pacer := audio.NewPacer(rate)
	buf := make([]int16, t.audio.BlockFrames*channels)

	idle := time.NewTicker(time.Duration(t.timing.IdlePollMs) * time.Millisecond)
	defer idle.Stop()

	for {
		if !t.Acquired() {
			// Idle: poll for the handle at a coarse interval. The
			// pacer is reset so resumption starts a fresh epoch
			// instead of bursting to catch up.
			pacer.Reset()
			select {
			case <-idle.C:
				continue
			case <-stop:
				return
			case <-t.cancel.Done():
				return
			}
		}

		frames := gen.Fill(buf)
		if _, err := stream.Write(buf); err != nil && !errors.Is(err, ErrNotAcquired) {
			// Transient consumer back-pressure: keep the timing loop
			// alive rather than propagate.
			log.Printf("transport %s: pcm write: %v", t.path, err)
		}

		if wait := pacer.Sync(frames); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-stop:
				timer.Stop()
				return
			case <-t.cancel.Done():
				timer.Stop()
				return
			}
		} else {
			select {
			case <-stop:
				return
			case <-t.cancel.Done():
				return
			default:
			}
		}
	}
}
