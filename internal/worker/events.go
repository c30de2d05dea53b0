package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-deferred/internal/domain"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
	"github.com/ahrav/go-deferred/pkg/activity"
	"github.com/ahrav/go-deferred/pkg/events"
)

// Event types emitted by the resolution activity.
const (
	EventTypeResolved = "deferred.resolved"
	EventTypeFailed   = "deferred.failed"

	eventSource  = "deferred-activity"
	eventVersion = "1.0.0"
)

type resolvedEvent struct {
	AudienceMatch bool   `json:"audience_match"`
	DecisionType  string `json:"decision_type,omitempty"`
	Attempt       int32  `json:"attempt"`
}

type failedEvent struct {
	Kind              string  `json:"kind"`
	StatusCode        int     `json:"status_code,omitempty"`
	RetryAfterSeconds float64 `json:"retry_after_seconds,omitempty"`
	Location          string  `json:"location,omitempty"`
	Attempt           int32   `json:"attempt"`
}

// EventEmitter publishes resolution outcomes to an events.EventSink.
// Sink failures are logged and never surface to the activity.
type EventEmitter struct {
	sink events.EventSink
}

// NewEventEmitter creates an emitter. A nil sink discards events.
func NewEventEmitter(sink events.EventSink) *EventEmitter {
	if sink == nil {
		sink = events.NewNoOpEventSink()
	}
	return &EventEmitter{sink: sink}
}

// EmitResolved publishes a deferred.resolved event.
func (e *EventEmitter) EmitResolved(ctx context.Context, channelID string, decision *domain.Decision, wfCtx activity.WorkflowContext) {
	ev := resolvedEvent{Attempt: wfCtx.Attempt}
	if decision != nil {
		ev.AudienceMatch = decision.AudienceMatch
		ev.DecisionType = decision.Type
	}
	e.emit(ctx, EventTypeResolved, channelID, ev, wfCtx)
}

// EmitFailed publishes a deferred.failed event.
func (e *EventEmitter) EmitFailed(ctx context.Context, channelID string, resErr *reserrors.ResolutionError, wfCtx activity.WorkflowContext) {
	e.emit(ctx, EventTypeFailed, channelID, failedEvent{
		Kind:              string(resErr.Kind),
		StatusCode:        resErr.StatusCode,
		RetryAfterSeconds: resErr.RetryAfter.Seconds(),
		Location:          resErr.Location,
		Attempt:           wfCtx.Attempt,
	}, wfCtx)
}

func (e *EventEmitter) emit(ctx context.Context, eventType, channelID string, payload any, wfCtx activity.WorkflowContext) {
	data, err := json.Marshal(payload)
	if err != nil {
		activity.SafeLogError(ctx, "failed to marshal event", "type", eventType, "error", err)
		return
	}

	id := uuid.New().String()
	envelope := events.Envelope{
		ID:             id,
		Type:           eventType,
		Source:         eventSource,
		Version:        eventVersion,
		Timestamp:      time.Now(),
		IdempotencyKey: idempotencyKey(eventType, id, wfCtx),
		ChannelID:      channelID,
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		Payload:        data,
	}

	if err := e.sink.Append(ctx, envelope); err != nil {
		activity.SafeLogError(ctx, "failed to emit event", "type", eventType, "error", err)
	}
}

// idempotencyKey is stable for one activity attempt. Outside an activity
// there is nothing to deduplicate against, so the event ID is used.
func idempotencyKey(eventType, id string, wfCtx activity.WorkflowContext) string {
	if wfCtx.WorkflowID == "" {
		return id
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d", eventType, wfCtx.WorkflowID, wfCtx.RunID, wfCtx.ActivityID, wfCtx.Attempt)
}
