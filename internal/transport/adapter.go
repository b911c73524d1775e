package transport

import (
	"fmt"
	"log"
)

// Adapter is the virtual controller that owns the emulated devices.
// Its device set is mutated only by the control goroutine (topology
// build and teardown), so no locking is needed on the container.
type Adapter struct {
	id      int
	devices []*Device
}

// NewAdapter creates the virtual controller. Exactly one adapter
// exists per harness run.
func NewAdapter(id int) *Adapter {
	a := &Adapter{id: id}
	log.Printf("adapter %s created", a.Name())
	return a
}

// ID returns the adapter index.
func (a *Adapter) ID() int {
	return a.id
}

// Name returns the hci-style adapter name.
func (a *Adapter) Name() string {
	return fmt.Sprintf("hci%d", a.id)
}

// NewDevice registers a virtual remote device. Device addresses are
// unique within the adapter for the process lifetime.
func (a *Adapter) NewDevice(addr string) (*Device, error) {
	for _, d := range a.devices {
		if d.addr == addr {
			return nil, fmt.Errorf("device %s already exists on %s", addr, a.Name())
		}
	}

	d := &Device{addr: addr, adapter: a}
	a.devices = append(a.devices, d)
	log.Printf("device %s registered on %s", addr, a.Name())
	return d, nil
}

// Devices returns a snapshot of the registered devices.
func (a *Adapter) Devices() []*Device {
	out := make([]*Device, len(a.devices))
	copy(out, a.devices)
	return out
}

// Release drops the adapter's device set. All transports must already
// be destroyed; a device still holding transports indicates a teardown
// ordering bug and is logged.
func (a *Adapter) Release() {
	for _, d := range a.devices {
		if n := len(d.transports); n != 0 {
			log.Printf("adapter %s released with %d live transports on %s", a.Name(), n, d.addr)
		}
	}
	a.devices = nil
	log.Printf("adapter %s released", a.Name())
}

// Device is a virtual remote peer identified by its hardware address.
// Ownership is shared between the adapter and the transports that
// reference it; the topology builder holds no reference once
// construction completes.
type Device struct {
	addr       string
	adapter    *Adapter
	transports []*Transport // mutated by the control goroutine only
}

// Addr returns the device hardware address.
func (d *Device) Addr() string {
	return d.addr
}

// Adapter returns the owning adapter.
func (d *Device) Adapter() *Adapter {
	return d.adapter
}

// Transports returns a snapshot of the device's transports.
func (d *Device) Transports() []*Transport {
	out := make([]*Transport, len(d.transports))
	copy(out, d.transports)
	return out
}

func (d *Device) addTransport(t *Transport) {
	d.transports = append(d.transports, t)
}

func (d *Device) removeTransport(t *Transport) {
	for i, cur := range d.transports {
		if cur == t {
			d.transports = append(d.transports[:i], d.transports[i+1:]...)
			return
		}
	}
}
