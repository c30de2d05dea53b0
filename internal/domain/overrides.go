package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// TagAction is the mutation applied to a tag group.
type TagAction string

const (
	// TagActionAdd adds the tags to the group.
	TagActionAdd TagAction = "add"

	// TagActionRemove removes the tags from the group.
	TagActionRemove TagAction = "remove"

	// TagActionSet replaces the group's tags.
	TagActionSet TagAction = "set"
)

// TagUpdate is a pending tag group mutation that has not yet reached the server.
// It is forwarded on the wire as-is; the resolver does not inspect it.
type TagUpdate struct {
	Group  string    `json:"group"`
	Tags   []string  `json:"tags"`
	Action TagAction `json:"action"`
}

// AttributeAction is the mutation applied to an attribute.
type AttributeAction string

const (
	// AttributeActionSet assigns a value to the attribute.
	AttributeActionSet AttributeAction = "set"

	// AttributeActionRemove clears the attribute.
	AttributeActionRemove AttributeAction = "remove"
)

// AttributeUpdate is a pending attribute mutation that has not yet reached the server.
// Value holds the JSON encoded attribute value and is empty for removals.
type AttributeUpdate struct {
	Attribute string          `json:"key"`
	Action    AttributeAction `json:"action"`
	Value     json.RawMessage `json:"value,omitempty"`
	Date      time.Time       `json:"timestamp"`
}

// cloneTagUpdates deep copies tag updates so callers cannot mutate a built request.
func cloneTagUpdates(in []TagUpdate) []TagUpdate {
	if in == nil {
		return nil
	}
	out := make([]TagUpdate, len(in))
	for i, u := range in {
		u.Tags = slices.Clone(u.Tags)
		out[i] = u
	}
	return out
}

// cloneAttributeUpdates deep copies attribute updates so callers cannot mutate a built request.
func cloneAttributeUpdates(in []AttributeUpdate) []AttributeUpdate {
	if in == nil {
		return nil
	}
	out := make([]AttributeUpdate, len(in))
	for i, u := range in {
		u.Value = slices.Clone(u.Value)
		out[i] = u
	}
	return out
}
