package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sqlalign/sqlalign/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// callRecorder correlates before/after hook invocations for one tool call
// and emits the log line, span, and duration metric when the call finishes.
type callRecorder struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation

	inflight sync.Map // request id -> inflightCall
}

type inflightCall struct {
	start time.Time
	span  trace.Span
}

// ToolCallHooks creates MCP server hooks that log every tool call and, when
// tracing and metrics are configured, record a span and a duration sample.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	rec := &callRecorder{logger: logger, tracer: tracer, inst: inst}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(rec.before)
	hooks.AddAfterCallTool(rec.after)
	hooks.AddOnError(rec.onError)
	return hooks
}

func (r *callRecorder) before(ctx context.Context, id any, req *mcp.CallToolRequest) {
	call := inflightCall{start: time.Now()}
	if r.tracer != nil {
		_, call.span = r.tracer.Start(ctx, "mcp.tool.call",
			trace.WithAttributes(attribute.String("mcp.tool", req.Params.Name)),
		)
	}
	r.inflight.Store(id, call)
}

func (r *callRecorder) after(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
	call, _ := r.take(id)

	isErr := false
	if res, ok := result.(*mcp.CallToolResult); ok && res.IsError {
		isErr = true
	}

	r.finish(ctx, req.Params.Name, call, isErr, nil)
}

func (r *callRecorder) onError(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
	call, _ := r.take(id)

	// Non-tool errors still end the span but produce no tool log line.
	req, ok := message.(*mcp.CallToolRequest)
	if !ok {
		if call.span != nil {
			call.span.RecordError(err)
			call.span.SetStatus(codes.Error, err.Error())
			call.span.End()
		}
		return
	}

	r.finish(ctx, req.Params.Name, call, true, err)
}

func (r *callRecorder) take(id any) (inflightCall, bool) {
	v, ok := r.inflight.LoadAndDelete(id)
	if !ok {
		return inflightCall{}, false
	}
	return v.(inflightCall), true
}

func (r *callRecorder) finish(ctx context.Context, tool string, call inflightCall, isErr bool, err error) {
	var duration time.Duration
	if !call.start.IsZero() {
		duration = time.Since(call.start)
	}

	attrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", tool),
		slog.Duration("duration", duration),
		slog.Bool("error", isErr),
	}
	level := slog.LevelInfo
	if isErr {
		level = slog.LevelError
	}
	if err != nil {
		attrs = append(attrs, slog.String("error.message", err.Error()))
	}
	r.logger.LogAttrs(ctx, level, "tool call", attrs...)

	if r.inst != nil {
		r.inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
	}

	if call.span != nil {
		if isErr {
			if err == nil {
				err = fmt.Errorf("tool %s returned error", tool)
			}
			call.span.RecordError(err)
			call.span.SetStatus(codes.Error, err.Error())
		}
		call.span.End()
	}
}
