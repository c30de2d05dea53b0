package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-deferred/internal/domain"
	reserrors "github.com/ahrav/go-deferred/internal/resolver/errors"
)

// ActivityResolveDeferredSchedule is the registered name of the resolution activity.
const ActivityResolveDeferredSchedule = "ResolveDeferredSchedule"

// MaxRedirects bounds how many server redirects the workflow follows.
const MaxRedirects = 3

// RedirectDetails is attached to TemporaryRedirect activity errors.
type RedirectDetails struct {
	Location          string  `json:"location"`
	RetryAfterSeconds float64 `json:"retry_after_seconds,omitempty"`
}

// ResolveDeferredScheduleWorkflow resolves one deferred schedule. Transient
// failures are retried by the activity retry policy, which honors server
// Retry-After through the activity's next retry delay. Redirects are followed
// here by re-issuing the activity against the redirect Location.
func ResolveDeferredScheduleWorkflow(ctx workflow.Context, params domain.ResolutionParams) (*domain.Decision, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "resolve-deferred.v", workflow.DefaultVersion, currentVersion)

	req, err := domain.NewResolutionRequest(params)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid resolution request", "Validation", err)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 45 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
			NonRetryableErrorTypes: []string{
				string(reserrors.KindRequestConflict),
				string(reserrors.KindInvalidResponse),
				string(reserrors.KindTemporaryRedirect),
			},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	for redirects := 0; ; redirects++ {
		var decision *domain.Decision
		err := workflow.ExecuteActivity(ctx, ActivityResolveDeferredSchedule, req.Params()).Get(ctx, &decision)
		if err == nil {
			return decision, nil
		}

		var appErr *temporal.ApplicationError
		if !errors.As(err, &appErr) || appErr.Type() != string(reserrors.KindTemporaryRedirect) {
			return nil, err
		}
		if redirects >= MaxRedirects {
			return nil, temporal.NewNonRetryableApplicationError(
				"too many deferred schedule redirects", string(reserrors.KindTemporaryRedirect), err)
		}

		var details RedirectDetails
		if !appErr.HasDetails() || appErr.Details(&details) != nil || details.Location == "" {
			return nil, err
		}
		next, err := req.WithLocation(details.Location)
		if err != nil {
			return nil, temporal.NewNonRetryableApplicationError("invalid redirect location", "Validation", err)
		}

		if details.RetryAfterSeconds > 0 {
			if err := workflow.Sleep(ctx, time.Duration(details.RetryAfterSeconds*float64(time.Second))); err != nil {
				return nil, err
			}
		}
		logger.Info("following deferred schedule redirect", "host", next.URL().Host, "redirects", redirects+1)
		req = next
	}
}
