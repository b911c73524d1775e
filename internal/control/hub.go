package control

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluemock/internal/transport"
)

// Event types broadcast on the event stream.
const (
	EventServiceRegistered = "service_registered"
	EventTransportAdded    = "transport_added"
	EventTransportRemoved  = "transport_removed"
	EventPCMUpdated        = "pcm_updated"
)

// Event is one lifecycle notification. PCM parameter updates mirror
// the shape a real hardware renegotiation would produce.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Service    string    `json:"service,omitempty"`
	Path       string    `json:"path,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Codec      string    `json:"codec,omitempty"`
	SampleRate int       `json:"sampleRate,omitempty"`
	Time       time.Time `json:"time"`
}

// Hub is the control-plane view of the topology. The control goroutine
// feeds it lifecycle notifications; HTTP and tap handlers read from it
// concurrently, which keeps the adapter/device containers themselves
// free of locking.
type Hub struct {
	mu         sync.RWMutex
	service    string
	transports map[string]*transport.Transport
	subs       map[string]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		transports: make(map[string]*transport.Transport),
		subs:       make(map[string]chan Event),
	}
}

// ServiceRegistered records the acquired service name and announces it.
func (h *Hub) ServiceRegistered(name string) {
	h.mu.Lock()
	h.service = name
	h.mu.Unlock()

	h.publish(Event{Type: EventServiceRegistered, Service: name})
}

// ServiceName returns the registered service name, or empty before
// registration.
func (h *Hub) ServiceName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.service
}

// TransportAdded registers a transport with the control plane.
func (h *Hub) TransportAdded(t *transport.Transport) {
	h.mu.Lock()
	h.transports[t.Path()] = t
	h.mu.Unlock()

	h.publish(Event{Type: EventTransportAdded, Path: t.Path()})
}

// TransportRemoved drops a transport from the control plane.
func (h *Hub) TransportRemoved(path string) {
	h.mu.Lock()
	delete(h.transports, path)
	h.mu.Unlock()

	h.publish(Event{Type: EventTransportRemoved, Path: path})
}

// PCMUpdated announces changed codec/sampling parameters on one
// direction of a transport.
func (h *Hub) PCMUpdated(t *transport.Transport, dir transport.Direction) {
	stream := t.Speaker()
	if dir == transport.DirMicrophone {
		stream = t.Microphone()
	}

	ev := Event{
		Type:      EventPCMUpdated,
		Path:      t.Path(),
		Direction: dir.String(),
	}
	if t.Role().IsVoice() {
		ev.Codec = t.VoiceCodec().String()
	}
	if stream != nil {
		ev.SampleRate = stream.SampleRate()
	}
	h.publish(ev)
}

// Transport looks a transport up by path.
func (h *Hub) Transport(path string) (*transport.Transport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.transports[path]
	return t, ok
}

// Transports returns descriptors for every known transport, ordered
// by path.
func (h *Hub) Transports() []transport.Descriptor {
	h.mu.RLock()
	out := make([]transport.Descriptor, 0, len(h.transports))
	for _, t := range h.transports {
		out = append(out, t.Describe())
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Subscribe registers an event listener. The returned channel is
// buffered; a subscriber that stops draining loses events rather than
// blocking the control plane.
func (h *Hub) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 32)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe drops an event listener.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (h *Hub) publish(ev Event) {
	ev.ID = uuid.NewString()
	ev.Time = time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber, drop.
		}
	}
}
