package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/sqlalign/sqlalign"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	CheckCount      metric.Int64Counter
	CheckFailures   metric.Int64Counter
	AnalyzeDuration metric.Float64Histogram
	ToolDuration    metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	checkCount, _ := meter.Int64Counter("sqlalign.check.count",
		metric.WithDescription("Total number of operations analyzed"),
	)
	checkFailures, _ := meter.Int64Counter("sqlalign.check.failures",
		metric.WithDescription("Total number of analyses with misalignments or errors"),
	)
	analyzeDuration, _ := meter.Float64Histogram("sqlalign.analyze.duration",
		metric.WithDescription("Statement analysis duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	toolDuration, _ := meter.Float64Histogram("sqlalign.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		CheckCount:      checkCount,
		CheckFailures:   checkFailures,
		AnalyzeDuration: analyzeDuration,
		ToolDuration:    toolDuration,
	}
}

func (i *Instruments) RecordAnalyzeDuration(ctx context.Context, ms float64) {
	i.AnalyzeDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementCheckCount(ctx context.Context) {
	i.CheckCount.Add(ctx, 1)
}

func (i *Instruments) IncrementCheckFailures(ctx context.Context) {
	i.CheckFailures.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
