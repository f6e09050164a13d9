package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordAnalyzeDuration(ctx context.Context, ms float64)
	IncrementCheckCount(ctx context.Context)
	IncrementCheckFailures(ctx context.Context)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordAnalyzeDuration(context.Context, float64) {}
func (NoopInstrumentation) IncrementCheckCount(context.Context)           {}
func (NoopInstrumentation) IncrementCheckFailures(context.Context)        {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)   {}
