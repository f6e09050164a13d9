package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sqlalign/sqlalign/internal/core/port"
	"github.com/sqlalign/sqlalign/internal/core/service"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, checks *service.CheckService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, checks)

	return s
}
