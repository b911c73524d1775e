package topology

import (
	"log"
	"time"
)

// Teardown drives the ordered shutdown: device 1's transports are
// stopped and destroyed (source, sink, voice), an optional fuzzing
// delay widens the window for teardown races, then device 2 follows in
// the same order and the adapter is released. Destroying a transport
// joins its delivery worker before any resources go away.
func (tp *Topology) Teardown() {
	delay := time.Duration(tp.cfg.Timing.FuzzDelayMs) * time.Millisecond

	for i, set := range tp.sets {
		if set == nil {
			continue
		}

		for _, t := range set.ordered() {
			path := t.Path()
			t.Destroy()
			if tp.notifier != nil {
				tp.notifier.TransportRemoved(path)
			}
		}
		set.source, set.sink, set.voice = nil, nil, nil

		if tp.cfg.Fuzzing() {
			log.Printf("fuzzing: delaying %v after device %d teardown", delay, i+1)
			time.Sleep(delay)
		}
	}

	tp.adapter.Release()
}
