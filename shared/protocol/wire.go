// Package protocol defines every wire message exchanged by the multiplayer
// core: the signaling messages relayed over the reliable WebSocket channel
// and the peer messages sent over the unreliable data channels. Each message
// travels as a flat JSON object with a "type" discriminator; decoding happens
// exactly once at the transport boundary and produces a value of the
// corresponding concrete type.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingType is returned for messages without a "type" field.
	ErrMissingType = errors.New("message has no type field")

	// ErrUnknownType is returned for messages whose "type" is not part of
	// the protocol. Callers drop and log such messages, never crash.
	ErrUnknownType = errors.New("unknown message type")
)

type typed interface {
	wireType() string
}

// encode marshals m as a flat JSON object with its "type" discriminator
// injected alongside the message fields.
func encode(m typed) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.wireType(), err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s: %w", m.wireType(), err)
	}
	fields["type"], _ = json.Marshal(m.wireType())
	return json.Marshal(fields)
}

// envelope carries only the discriminator for the first decode pass.
type envelope struct {
	Type string `json:"type"`
}

func decodeEnvelope(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return "", ErrMissingType
	}
	return env.Type, nil
}
