package relay

import (
	"encoding/json"
	"fmt"

	"github.com/cosmwasgo/wasmvm/types"
)

// Acknowledgement is the standard envelope written to the counterparty
// chain. Exactly one of the fields is set: Result carries the application
// payload of a successful receive (base64 at the JSON level), Error the
// message of a failed one.
type Acknowledgement struct {
	Result []byte `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MarshalJSON always emits exactly one key. An empty success payload still
// gets a "result" key so the envelope never looks empty.
func (a Acknowledgement) MarshalJSON() ([]byte, error) {
	if a.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{a.Error})
	}
	result := a.Result
	if result == nil {
		result = []byte{}
	}
	return json.Marshal(struct {
		Result []byte `json:"result"`
	}{result})
}

// EncodeAcknowledgement renders the standard envelope for an application
// receive result.
func EncodeAcknowledgement(result types.IBCAckResult) ([]byte, error) {
	return json.Marshal(Acknowledgement{Result: result.Ok, Error: result.Err})
}

// DecodeAcknowledgement parses and validates an envelope: it must be valid
// JSON with exactly one of result and error set, and error must be
// non-empty.
func DecodeAcknowledgement(data []byte) (Acknowledgement, error) {
	var ack Acknowledgement
	if err := json.Unmarshal(data, &ack); err != nil {
		return Acknowledgement{}, fmt.Errorf("malformed acknowledgement: %w", err)
	}
	if ack.Result != nil && ack.Error != "" {
		return Acknowledgement{}, fmt.Errorf("acknowledgement sets both result and error")
	}
	if ack.Result == nil && ack.Error == "" {
		return Acknowledgement{}, fmt.Errorf("acknowledgement sets neither result nor error")
	}
	return ack, nil
}

// Success reports whether the acknowledgement carries a result.
func (a Acknowledgement) Success() bool {
	return a.Error == ""
}
