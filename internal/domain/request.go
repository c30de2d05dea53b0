package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
)

// TriggerContext describes the trigger and event that caused a deferred
// schedule to be evaluated.
type TriggerContext struct {
	// TriggerType names the trigger that fired (e.g. "app_foreground", "custom_event_count").
	TriggerType string `json:"type" validate:"required"`

	// Goal is the trigger goal that was reached.
	Goal float64 `json:"goal" validate:"min=0"`

	// Event is the opaque event payload that fired the trigger.
	Event json.RawMessage `json:"event,omitempty"`
}

// ResolutionParams carries the caller supplied fields of a resolution request.
// It is validated and copied by NewResolutionRequest, and is the serializable
// form used as workflow and activity input.
type ResolutionParams struct {
	// URL is the deferred schedule endpoint. Must be an absolute http or https URL.
	URL string `json:"url" validate:"required,http_url"`

	// ChannelID identifies the delivery destination being evaluated.
	ChannelID string `json:"channel_id" validate:"required"`

	// TriggerContext is optional.
	TriggerContext *TriggerContext `json:"trigger_context,omitempty"`

	// TagOverrides are forwarded unmodified, in order.
	TagOverrides []TagUpdate `json:"tag_overrides,omitempty"`

	// AttributeOverrides are forwarded unmodified, in order.
	AttributeOverrides []AttributeUpdate `json:"attribute_overrides,omitempty"`
}

// ResolutionRequest is an immutable request to resolve one deferred schedule.
// It is consumed by a single resolve call and holds no state across calls.
type ResolutionRequest struct {
	url                *url.URL
	channelID          string
	triggerContext     *TriggerContext
	tagOverrides       []TagUpdate
	attributeOverrides []AttributeUpdate
}

// NewResolutionRequest validates params and returns an immutable request.
// Slices and payloads are deep copied so later mutation by the caller has no effect.
func NewResolutionRequest(params ResolutionParams) (*ResolutionRequest, error) {
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	u, err := parseEndpoint(params.URL)
	if err != nil {
		return nil, err
	}

	return &ResolutionRequest{
		url:                u,
		channelID:          params.ChannelID,
		triggerContext:     cloneTriggerContext(params.TriggerContext),
		tagOverrides:       cloneTagUpdates(params.TagOverrides),
		attributeOverrides: cloneAttributeUpdates(params.AttributeOverrides),
	}, nil
}

// parseEndpoint parses raw and ensures it is an absolute http(s) URL.
func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, raw)
	}
	return u, nil
}

// URL returns a copy of the endpoint.
func (r *ResolutionRequest) URL() *url.URL {
	u := *r.url
	return &u
}

// ChannelID returns the channel identity.
func (r *ResolutionRequest) ChannelID() string { return r.channelID }

// TriggerContext returns a copy of the trigger context, or nil when absent.
func (r *ResolutionRequest) TriggerContext() *TriggerContext {
	return cloneTriggerContext(r.triggerContext)
}

// TagOverrides returns a copy of the tag overrides in their original order.
func (r *ResolutionRequest) TagOverrides() []TagUpdate { return cloneTagUpdates(r.tagOverrides) }

// AttributeOverrides returns a copy of the attribute overrides in their original order.
func (r *ResolutionRequest) AttributeOverrides() []AttributeUpdate {
	return cloneAttributeUpdates(r.attributeOverrides)
}

// WithLocation returns a copy of the request targeting location.
// A relative location is resolved against the current URL, matching how
// redirect Location headers are interpreted.
func (r *ResolutionRequest) WithLocation(location string) (*ResolutionRequest, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	next, err := parseEndpoint(r.url.ResolveReference(ref).String())
	if err != nil {
		return nil, err
	}

	clone := *r
	clone.url = next
	return &clone, nil
}

// Params returns the serializable form of the request.
func (r *ResolutionRequest) Params() ResolutionParams {
	return ResolutionParams{
		URL:                r.url.String(),
		ChannelID:          r.channelID,
		TriggerContext:     r.TriggerContext(),
		TagOverrides:       r.TagOverrides(),
		AttributeOverrides: r.AttributeOverrides(),
	}
}

func cloneTriggerContext(tc *TriggerContext) *TriggerContext {
	if tc == nil {
		return nil
	}
	c := *tc
	c.Event = slices.Clone(tc.Event)
	return &c
}
