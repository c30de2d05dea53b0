// Package worker exposes helpers to register workflows and activities with a Temporal worker.
package worker

import (
	sdkactivity "go.temporal.io/sdk/activity"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-deferred/internal/workflow"
	"github.com/ahrav/go-deferred/pkg/events"
)

// RegisterAll registers the resolution workflow and activity with w.
// It must be called once during worker initialization, before the worker starts.
// sink receives resolution outcome events and may be nil.
func RegisterAll(w sdkworker.Registry, r Awaiter, sink events.EventSink) {
	acts := NewActivities(r, sink)

	w.RegisterWorkflow(workflow.ResolveDeferredScheduleWorkflow)
	w.RegisterActivityWithOptions(acts.ResolveDeferredSchedule,
		sdkactivity.RegisterOptions{Name: workflow.ActivityResolveDeferredSchedule})
}
