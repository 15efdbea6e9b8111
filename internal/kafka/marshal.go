package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope parses an event envelope and rejects versions this build
// does not understand.
func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventVersion != orders.EnvelopeVersion {
		return env, fmt.Errorf("decode envelope: unsupported event version %d", env.EventVersion)
	}
	return env, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
