package transport

// SBCConfig is the negotiated SBC configuration carried by streaming
// transports. The harness never encodes with it; it only reports the
// parameters a real negotiation would have produced.
type SBCConfig struct {
	SampleRate  int    `json:"sampleRate"`
	ChannelMode string `json:"channelMode"`
	BlockLength int    `json:"blockLength"`
	Subbands    int    `json:"subbands"`
	Allocation  string `json:"allocation"`
	MinBitpool  int    `json:"minBitpool"`
	MaxBitpool  int    `json:"maxBitpool"`
}

// DefaultSBC returns the 44.1kHz joint-stereo configuration used for
// every streaming transport the topology builder creates.
func DefaultSBC() SBCConfig {
	return SBCConfig{
		SampleRate:  44100,
		ChannelMode: "joint-stereo",
		BlockLength: 16,
		Subbands:    8,
		Allocation:  "loudness",
		MinBitpool:  2,
		MaxBitpool:  53,
	}
}

// Channels returns the channel count implied by the channel mode.
func (c SBCConfig) Channels() int {
	if c.ChannelMode == "mono" {
		return 1
	}
	return 2
}

// VoiceCodec identifies the codec of a voice link.
type VoiceCodec int

const (
	// CodecCVSD is the mandatory 8kHz voice codec.
	CodecCVSD VoiceCodec = iota + 1
	// CodecMSBC is the wideband 16kHz voice codec.
	CodecMSBC
)

// String returns the codec name.
func (c VoiceCodec) String() string {
	switch c {
	case CodecCVSD:
		return "CVSD"
	case CodecMSBC:
		return "mSBC"
	default:
		return "unknown"
	}
}

// SampleRate returns the sampling rate the codec operates at.
func (c VoiceCodec) SampleRate() int {
	if c == CodecMSBC {
		return 16000
	}
	return 8000
}
