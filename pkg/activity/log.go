// Package activity provides helpers shared by Temporal activity implementations
// that must also run outside an activity context, such as in unit tests.
package activity

import (
	"context"

	"go.temporal.io/sdk/activity"
)

// WorkflowContext identifies the workflow execution an activity runs for.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

// GetWorkflowContext extracts execution details from ctx. Outside an activity
// context it returns the zero value.
func GetWorkflowContext(ctx context.Context) (wfCtx WorkflowContext) {
	defer func() {
		if recover() != nil {
			wfCtx = WorkflowContext{}
		}
	}()

	info := activity.GetInfo(ctx)
	return WorkflowContext{
		WorkflowID: info.WorkflowExecution.ID,
		RunID:      info.WorkflowExecution.RunID,
		ActivityID: info.ActivityID,
		Attempt:    info.Attempt,
	}
}

// SafeLog logs at info level through the activity logger, and is a no-op
// outside an activity context.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() {
		_ = recover()
	}()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() {
		_ = recover()
	}()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}
