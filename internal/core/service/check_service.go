package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sqlalign/sqlalign/internal/core/domain"
	"github.com/sqlalign/sqlalign/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type sourceKey struct{}

// WithSource returns a context carrying the caller surface ("cli", "mcp",
// "test") for audit logging.
func WithSource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, sourceKey{}, name)
}

func sourceFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(sourceKey{}).(string); ok {
		return v
	}
	return ""
}

// CheckService orchestrates statement validation (domain) and alignment
// analysis (infrastructure), with logging, tracing, metrics, and audit
// around each analysis. It implements port.Analyzer so checkers can compose
// it transparently.
type CheckService struct {
	validator port.Validator
	analyzer  port.Analyzer
	auditor   port.Auditor
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewCheckService(validator port.Validator, analyzer port.Analyzer, auditor port.Auditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *CheckService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &CheckService{
		validator: validator,
		analyzer:  analyzer,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
	}
}

// Analyze validates the operation's SQL and, if acceptable, delegates to
// the analyzer. Alignment errors come back inside the report; only
// validation and analysis failures come back as errors.
func (s *CheckService) Analyze(ctx context.Context, op *domain.Operation) (*domain.Report, error) {
	ctx, span := s.tracer.Start(ctx, "CheckService.Analyze",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", op.Name),
			attribute.String("db.statement", op.SQL),
		),
	)
	defer span.End()

	if err := s.validator.Validate(op.SQL, op.Kind); err != nil {
		s.logger.WarnContext(ctx, "statement rejected",
			slog.String("operation", op.Name),
			slog.String("db.statement", op.SQL),
			slog.String("error.type", "validation_error"),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementCheckFailures(ctx)
		return nil, fmt.Errorf("validation: %w", err)
	}

	start := time.Now()
	report, err := s.analyzer.Analyze(ctx, op)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordAnalyzeDuration(ctx, float64(durationMS))

	failures := 0
	if report != nil {
		failures = report.FailureCount()
	}
	operation := op.Name
	if src := sourceFromCtx(ctx); src != "" {
		operation = src + ":" + op.Name
	}
	s.auditor.Record(ctx, port.AuditEntry{
		Operation:  operation,
		SQL:        op.SQL,
		Failures:   failures,
		DurationMS: durationMS,
		Err:        err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementCheckFailures(ctx)
		return nil, err
	}

	s.inst.IncrementCheckCount(ctx)
	if failures > 0 {
		s.inst.IncrementCheckFailures(ctx)
	}
	span.SetAttributes(attribute.Int("check.failures", failures))

	s.logger.InfoContext(ctx, "analysis complete",
		slog.String("operation", op.Name),
		slog.Int("failures", failures),
		slog.Int64("duration_ms", durationMS),
	)

	return report, nil
}
