package worker

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-deferred/internal/domain"
	"github.com/ahrav/go-deferred/internal/resolver"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
	"github.com/ahrav/go-deferred/internal/workflow"
	"github.com/ahrav/go-deferred/pkg/activity"
	"github.com/ahrav/go-deferred/pkg/events"
)

// Awaiter performs a single resolution. *resolver.Resolver satisfies it.
type Awaiter interface {
	Await(ctx context.Context, req *domain.ResolutionRequest) resolver.Result
}

// Activities exposes deferred schedule resolution as Temporal activities.
type Activities struct {
	resolver Awaiter
	events   *EventEmitter
}

// NewActivities creates the activity set backed by r. Outcomes are published
// to sink, which may be nil.
func NewActivities(r Awaiter, sink events.EventSink) *Activities {
	return &Activities{resolver: r, events: NewEventEmitter(sink)}
}

// ResolveDeferredSchedule performs one resolution attempt. Failures are
// returned as temporal.ApplicationError typed by resolution error kind so the
// workflow retry policy can act on them.
func (a *Activities) ResolveDeferredSchedule(ctx context.Context, params domain.ResolutionParams) (*domain.Decision, error) {
	req, err := domain.NewResolutionRequest(params)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid resolution request", "Validation", err)
	}

	wfCtx := activity.GetWorkflowContext(ctx)
	res := a.resolver.Await(ctx, req)
	if res.Err != nil {
		activity.SafeLogError(ctx, "deferred resolution failed",
			"workflow_id", wfCtx.WorkflowID,
			"attempt", wfCtx.Attempt,
			"kind", res.Err.Kind,
			"status_code", res.Err.StatusCode)
		a.events.EmitFailed(ctx, params.ChannelID, res.Err, wfCtx)
		return nil, ToApplicationError(res.Err)
	}

	activity.SafeLog(ctx, "deferred resolution completed",
		"workflow_id", wfCtx.WorkflowID,
		"attempt", wfCtx.Attempt,
		"audience_match", res.Decision.AudienceMatch)
	a.events.EmitResolved(ctx, params.ChannelID, res.Decision, wfCtx)
	return res.Decision, nil
}

// ToApplicationError maps a resolution error onto a Temporal application error
// whose type is the error kind. RequestConflict and InvalidResponse are
// non-retryable. TemporaryRedirect is non-retryable at the activity level and
// carries workflow.RedirectDetails so the workflow can follow it. A server
// Retry-After becomes the next retry delay.
func ToApplicationError(err error) error {
	var resErr *reserrors.ResolutionError
	if !errors.As(err, &resErr) {
		resErr = reserrors.Classify(err)
	}
	if resErr == nil {
		return nil
	}

	opts := temporal.ApplicationErrorOptions{Cause: resErr.Cause}
	switch resErr.Kind {
	case reserrors.KindRequestConflict, reserrors.KindInvalidResponse:
		opts.NonRetryable = true
	case reserrors.KindTemporaryRedirect:
		opts.NonRetryable = true
		opts.Details = []any{workflow.RedirectDetails{
			Location:          resErr.Location,
			RetryAfterSeconds: resErr.RetryAfter.Seconds(),
		}}
	case reserrors.KindTooManyRequests:
		opts.NextRetryDelay = resErr.RetryAfter
	}

	return temporal.NewApplicationErrorWithOptions(resErr.Error(), string(resErr.Kind), opts)
}
