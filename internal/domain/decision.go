package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Decision is the server's definitive answer for a deferred schedule.
// Message is kept opaque; Raw retains the full body so fields this client
// does not model survive a round trip.
type Decision struct {
	AudienceMatch bool            `json:"audience_match"`
	Type          string          `json:"type,omitempty"`
	Message       json.RawMessage `json:"message,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// ParseDecision decodes a decision body. The body must be a JSON object.
// A missing audience_match means no match; one of the wrong type is rejected.
func ParseDecision(body []byte) (*Decision, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidDecision)
	}

	var wire struct {
		AudienceMatch bool            `json:"audience_match"`
		Type          string          `json:"type"`
		Message       json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDecision, err)
	}

	d := &Decision{
		AudienceMatch: wire.AudienceMatch,
		Type:          wire.Type,
		Raw:           slices.Clone(trimmed),
	}
	if len(wire.Message) > 0 && !bytes.Equal(wire.Message, []byte("null")) {
		d.Message = slices.Clone(wire.Message)
	}
	return d, nil
}

// MarshalJSON returns Raw when present so the server payload is reproduced
// byte for byte; otherwise the modelled fields are encoded.
func (d Decision) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return slices.Clone(d.Raw), nil
	}
	type plain Decision
	return json.Marshal(plain(d))
}

// UnmarshalJSON decodes with the same rules as ParseDecision and keeps the
// input in Raw.
func (d *Decision) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDecision(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
