// Package contracttests validates the externally visible protocol of
// the harness: the JSON-RPC 2.0 envelope on the control surface and
// the tap handshake, the transport descriptor shape, and the event
// stream shape. These checks treat the harness as a black box so that
// clients written against the wire format keep working.
package contracttests

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON-RPC 2.0 message frame.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ValidateEnvelope checks JSON-RPC 2.0 response framing: version tag,
// and exactly one of result or error.
func ValidateEnvelope(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if env.JSONRPC != "2.0" {
		return fmt.Errorf("jsonrpc must be '2.0', got '%s'", env.JSONRPC)
	}

	hasResult := len(env.Result) > 0
	hasError := len(env.Error) > 0
	if hasResult && hasError {
		return fmt.Errorf("both result and error present")
	}
	if !hasResult && !hasError {
		return fmt.Errorf("neither result nor error present")
	}

	return nil
}

// knownErrorCodes are the JSON-RPC error codes the harness may emit.
var knownErrorCodes = map[float64]bool{
	-32700: true, // parse error
	-32600: true, // invalid request
	-32601: true, // method not found
	-32602: true, // command error
	-32603: true, // internal error
}

// ValidateError checks an error object: numeric code from the known
// set and a non-empty message.
func ValidateError(raw json.RawMessage) error {
	var errObj map[string]interface{}
	if err := json.Unmarshal(raw, &errObj); err != nil {
		return fmt.Errorf("error object is not an object: %w", err)
	}

	code, ok := errObj["code"].(float64)
	if !ok {
		return fmt.Errorf("error code must be a number, got %v", errObj["code"])
	}
	if !knownErrorCodes[code] {
		return fmt.Errorf("unknown error code %v", code)
	}

	msg, ok := errObj["message"].(string)
	if !ok || msg == "" {
		return fmt.Errorf("error message must be a non-empty string")
	}

	return nil
}

var knownRoles = map[string]bool{
	"a2dp-source": true,
	"a2dp-sink":   true,
	"hsp-gateway": true,
	"hfp-gateway": true,
}

var knownCodecs = map[string]bool{
	"SBC":  true,
	"CVSD": true,
	"mSBC": true,
}

// ValidateDescriptor checks one transport descriptor as listed by
// list_transports.
func ValidateDescriptor(desc map[string]interface{}) error {
	path, ok := desc["path"].(string)
	if !ok || path == "" {
		return fmt.Errorf("path must be a non-empty string")
	}

	device, ok := desc["device"].(string)
	if !ok || len(device) != 17 {
		return fmt.Errorf("%s: device must be a XX:XX:XX:XX:XX:XX address, got %v", path, desc["device"])
	}

	role, ok := desc["role"].(string)
	if !ok || !knownRoles[role] {
		return fmt.Errorf("%s: unknown role %v", path, desc["role"])
	}

	codec, ok := desc["codec"].(string)
	if !ok || !knownCodecs[codec] {
		return fmt.Errorf("%s: unknown codec %v", path, desc["codec"])
	}

	rate, ok := desc["sampleRate"].(float64)
	if !ok || rate <= 0 {
		return fmt.Errorf("%s: sampleRate must be positive, got %v", path, desc["sampleRate"])
	}

	channels, ok := desc["channels"].(float64)
	if !ok || (channels != 1 && channels != 2) {
		return fmt.Errorf("%s: channels must be 1 or 2, got %v", path, desc["channels"])
	}

	if _, ok := desc["acquired"].(bool); !ok {
		return fmt.Errorf("%s: acquired must be a boolean", path)
	}

	switch role {
	case "a2dp-source", "a2dp-sink":
		sbc, ok := desc["sbc"].(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s: streaming transport missing sbc configuration", path)
		}
		minBP, okMin := sbc["minBitpool"].(float64)
		maxBP, okMax := sbc["maxBitpool"].(float64)
		if !okMin || !okMax || minBP > maxBP {
			return fmt.Errorf("%s: invalid bitpool range %v..%v", path, sbc["minBitpool"], sbc["maxBitpool"])
		}
		if codec != "SBC" {
			return fmt.Errorf("%s: streaming transport must use SBC, got %s", path, codec)
		}
	case "hsp-gateway", "hfp-gateway":
		if codec == "SBC" {
			return fmt.Errorf("%s: voice transport must use a voice codec", path)
		}
		if channels != 1 {
			return fmt.Errorf("%s: voice transport must be mono", path)
		}
		if _, present := desc["sbc"]; present {
			return fmt.Errorf("%s: voice transport carries sbc configuration", path)
		}
	}

	return nil
}

var knownEventTypes = map[string]bool{
	"service_registered": true,
	"transport_added":    true,
	"transport_removed":  true,
	"pcm_updated":        true,
}

// ValidateEvent checks one event stream message.
func ValidateEvent(ev map[string]interface{}) error {
	id, ok := ev["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("event id must be a non-empty string")
	}

	evType, ok := ev["type"].(string)
	if !ok || !knownEventTypes[evType] {
		return fmt.Errorf("unknown event type %v", ev["type"])
	}

	if _, ok := ev["time"].(string); !ok {
		return fmt.Errorf("event time must be an RFC 3339 string")
	}

	switch evType {
	case "service_registered":
		if name, ok := ev["service"].(string); !ok || name == "" {
			return fmt.Errorf("service_registered must carry the service name")
		}
	case "transport_added", "transport_removed", "pcm_updated":
		if path, ok := ev["path"].(string); !ok || path == "" {
			return fmt.Errorf("%s must carry the transport path", evType)
		}
	}

	return nil
}
