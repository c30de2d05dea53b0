// Package events provides the envelope and sink used to publish resolution
// outcomes to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Envelope wraps an event payload with routing and deduplication metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing, e.g. "deferred.resolved".
	Type string `json:"type"`

	// Source identifies the emitting component.
	Source string `json:"source"`

	// Version of the payload schema.
	Version string `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is stable across redelivery of the same outcome.
	IdempotencyKey string `json:"idempotency_key"`

	// ChannelID is the channel the resolution was performed for.
	ChannelID string `json:"channel_id"`

	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// EventSink receives envelopes. Append should return quickly and treat a
// repeated IdempotencyKey as a no-op. Callers never fail their primary
// operation because of a sink error.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}

// MemorySink keeps events in memory, deduplicated by IdempotencyKey.
type MemorySink struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []Envelope
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink.
func (m *MemorySink) Append(_ context.Context, envelope Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if envelope.IdempotencyKey != "" {
		if _, ok := m.seen[envelope.IdempotencyKey]; ok {
			return nil
		}
		m.seen[envelope.IdempotencyKey] = struct{}{}
	}
	m.events = append(m.events, envelope)
	return nil
}

// Events returns a copy of the stored events in append order.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.events))
	copy(out, m.events)
	return out
}
