package domain

import "context"

// Notifier receives the report of a finished live run. Implementations
// must tolerate partial results; notification failures never fail a run.
type Notifier interface {
	NotifyRunCompleted(ctx context.Context, result RunResult) error
}
