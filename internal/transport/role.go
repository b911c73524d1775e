// Package transport implements the emulated Bluetooth audio links:
// adapter and device containers, transport records with role-specific
// acquire/release behavior, and the per-transport delivery worker that
// synthesizes and paces outbound audio.
package transport

// Role identifies the profile an emulated transport speaks.
type Role int

const (
	// A2DPSource streams encoded audio toward the remote device.
	A2DPSource Role = iota
	// A2DPSink receives audio; the harness acts as the consumer side.
	A2DPSink
	// HSPGateway is the voice gateway variant of the HSP profile.
	HSPGateway
	// HFPGateway is the voice gateway variant of the HFP profile.
	HFPGateway
)

// String returns the role name used in transport paths and listings.
func (r Role) String() string {
	switch r {
	case A2DPSource:
		return "a2dp-source"
	case A2DPSink:
		return "a2dp-sink"
	case HSPGateway:
		return "hsp-gateway"
	case HFPGateway:
		return "hfp-gateway"
	default:
		return "unknown"
	}
}

// IsProducer reports whether the harness synthesizes audio for this
// role. Sink transports are consumed by the harness, not fed by it.
func (r Role) IsProducer() bool {
	return r != A2DPSink
}

// IsVoice reports whether the role carries a bidirectional voice link.
func (r Role) IsVoice() bool {
	return r == HSPGateway || r == HFPGateway
}
