// Package workflow implements the Temporal workflow that resolves a deferred
// schedule.
//
// The workflow validates its input, runs the resolution activity under a
// retry policy, and follows TemporaryRedirect outcomes itself so redirects
// never consume activity retry attempts. Activities are referenced by name,
// which keeps this package free of the resolver implementation.
//
// Workflow code must stay deterministic. Waits use workflow.Sleep and all
// network I/O happens in the activity.
package workflow
