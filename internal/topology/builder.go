// Package topology builds and tears down the virtual adapter, devices
// and transports the harness presents to the service under test.
package topology

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bluemock/internal/config"
	"github.com/bluemock/internal/transport"
)

// Fixed device addresses, one per virtual peer.
const (
	Device1Addr = "12:34:56:78:9A:BC"
	Device2Addr = "12:34:56:9A:BC:DE"
)

// Notifier receives lifecycle notifications as the control goroutine
// mutates the topology.
type Notifier interface {
	TransportAdded(t *transport.Transport)
	TransportRemoved(path string)
	PCMUpdated(t *transport.Transport, dir transport.Direction)
}

// deviceSet groups one device with its role transports in teardown
// order: source, then sink, then voice.
type deviceSet struct {
	device *transport.Device
	source *transport.Transport
	sink   *transport.Transport
	voice  *transport.Transport
}

func (s *deviceSet) ordered() []*transport.Transport {
	out := make([]*transport.Transport, 0, 3)
	for _, t := range []*transport.Transport{s.source, s.sink, s.voice} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Topology is the constructed virtual Bluetooth landscape. All
// mutation happens on the control goroutine; delivery workers never
// touch these containers.
type Topology struct {
	cfg      *config.Config
	notifier Notifier
	adapter  *transport.Adapter
	sets     [2]*deviceSet
}

// Build constructs the adapter's devices and the requested transports:
// two devices at fixed addresses and, per enabled role, one transport
// on each. Voice transports receive different gateway variants per
// device. In fuzzing mode each transport creation is preceded by the
// configured delay and the second device's voice transport renegotiates
// to CVSD, producing one parameter-update notification per direction.
//
// streamCtx is the test-control token handed to streaming delivery
// workers; voiceCtx is the second token, reserved for voice links.
func Build(cfg *config.Config, adapter *transport.Adapter, notifier Notifier, streamCtx, voiceCtx context.Context) (*Topology, error) {
	topo := &Topology{cfg: cfg, notifier: notifier, adapter: adapter}

	d1, err := adapter.NewDevice(Device1Addr)
	if err != nil {
		return nil, err
	}
	d2, err := adapter.NewDevice(Device2Addr)
	if err != nil {
		return nil, err
	}
	topo.sets[0] = &deviceSet{device: d1}
	topo.sets[1] = &deviceSet{device: d2}

	delay := time.Duration(0)
	if cfg.Fuzzing() {
		delay = time.Duration(cfg.Timing.FuzzDelayMs) * time.Millisecond
	}

	opts := func(cancel context.Context) transport.Options {
		return transport.Options{
			Owner:        ":mock",
			SBC:          transport.DefaultSBC(),
			Audio:        cfg.Audio,
			Timing:       cfg.Timing,
			Cancel:       cancel,
			StartupDelay: delay,
		}
	}

	if cfg.Roles.Source {
		for i, set := range topo.sets {
			t, err := transport.New(set.device, transport.A2DPSource, sourcePath(i), opts(streamCtx))
			if err != nil {
				return topo, err
			}
			set.source = t
			notifier.TransportAdded(t)
		}
	}

	if cfg.Roles.Sink {
		for i, set := range topo.sets {
			t, err := transport.New(set.device, transport.A2DPSink, sinkPath(i), opts(streamCtx))
			if err != nil {
				return topo, err
			}
			set.sink = t
			notifier.TransportAdded(t)
		}
	}

	if cfg.Roles.Voice {
		roles := [2]transport.Role{transport.HSPGateway, transport.HFPGateway}
		for i, set := range topo.sets {
			t, err := transport.New(set.device, roles[i], voicePath(i), opts(voiceCtx))
			if err != nil {
				return topo, err
			}
			set.voice = t
			notifier.TransportAdded(t)
		}

		if cfg.Fuzzing() {
			// Exercise parameter renegotiation on the second device.
			t := topo.sets[1].voice
			if err := t.SetVoiceCodec(transport.CodecCVSD); err != nil {
				return topo, err
			}
			notifier.PCMUpdated(t, transport.DirSpeaker)
			notifier.PCMUpdated(t, transport.DirMicrophone)
		}
	}

	// The builder holds no device references past this point; the
	// adapter and the transports own the devices for the rest of the
	// run.
	log.Printf("topology built: %d transports across %d devices", len(topo.Transports()), len(adapter.Devices()))
	return topo, nil
}

// Adapter returns the owning adapter.
func (tp *Topology) Adapter() *transport.Adapter {
	return tp.adapter
}

// Transports returns every created transport, device 1 first, in
// teardown order within each device.
func (tp *Topology) Transports() []*transport.Transport {
	var out []*transport.Transport
	for _, set := range tp.sets {
		if set != nil {
			out = append(out, set.ordered()...)
		}
	}
	return out
}

func sourcePath(i int) string { return fmt.Sprintf("/source/%d", i+1) }
func sinkPath(i int) string   { return fmt.Sprintf("/sink/%d", i+1) }
func voicePath(i int) string  { return fmt.Sprintf("/voice/%d", i+1) }
