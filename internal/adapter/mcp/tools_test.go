package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sqlalign/sqlalign/internal/audit"
	"github.com/sqlalign/sqlalign/internal/core/domain"
	"github.com/sqlalign/sqlalign/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock Analyzer ---

type mockAnalyzer struct {
	report *domain.Report
	err    error
	lastOp *domain.Operation
}

func (m *mockAnalyzer) Analyze(_ context.Context, op *domain.Operation) (*domain.Report, error) {
	m.lastOp = op
	return m.report, m.err
}

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func setupServer(analyzer *mockAnalyzer) *server.MCPServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewCheckService(domain.NewStatementValidator(), analyzer, audit.NoopAuditor{}, logger, nil, nil)

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, svc)
	return s
}

// --- tests ---

func TestCheckQuery_Aligned(t *testing.T) {
	analyzer := &mockAnalyzer{report: &domain.Report{
		Parameters: []domain.FieldReport{{Label: "$1"}},
		Columns:    []domain.FieldReport{{Label: "name"}, {Label: "age"}},
	}}
	s := setupServer(analyzer)

	result := callTool(t, s, "check_query", map[string]any{
		"sql":     "SELECT name, age FROM person WHERE id = $1",
		"params":  "int8",
		"columns": "name:text, age:int4",
	})
	require.False(t, result.IsError)

	text := toolText(result)
	assert.Contains(t, text, "+ SQL Compiles and Typechecks")
	assert.Contains(t, text, "+ parameter $1")
	assert.Contains(t, text, `+ column "name"`)
	assert.Contains(t, text, `+ column "age"`)

	require.NotNil(t, analyzer.lastOp)
	assert.Equal(t, []domain.TypeDecl{{Type: "int8"}}, analyzer.lastOp.Params)
	assert.Equal(t, []domain.TypeDecl{
		{Name: "name", Type: "text"},
		{Name: "age", Type: "int4"},
	}, analyzer.lastOp.Columns)
}

func TestCheckQuery_Misaligned(t *testing.T) {
	analyzer := &mockAnalyzer{report: &domain.Report{
		Parameters: []domain.FieldReport{
			{Label: "$1", Errors: []string{"declared text but statement takes int8"}},
		},
	}}
	s := setupServer(analyzer)

	result := callTool(t, s, "check_query", map[string]any{
		"sql":    "SELECT name FROM person WHERE id = $1",
		"params": "text",
	})
	require.False(t, result.IsError)

	text := toolText(result)
	assert.Contains(t, text, "- parameter $1")
	assert.Contains(t, text, "declared text but statement takes int8")
}

func TestCheckQuery_AnalyzerFailure(t *testing.T) {
	analyzer := &mockAnalyzer{err: fmt.Errorf("connection refused")}
	s := setupServer(analyzer)

	result := callTool(t, s, "check_query", map[string]any{
		"sql": "SELECT 1",
	})
	require.False(t, result.IsError, "analysis failures render as a failing block, not a tool error")

	text := toolText(result)
	assert.Contains(t, text, "- SQL Compiles and Typechecks")
	assert.Contains(t, text, "connection refused")
}

func TestCheckQuery_MissingSQL(t *testing.T) {
	s := setupServer(&mockAnalyzer{})

	result := callTool(t, s, "check_query", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}

func TestCheckQuery_InvalidKind(t *testing.T) {
	s := setupServer(&mockAnalyzer{})

	result := callTool(t, s, "check_query", map[string]any{
		"sql":  "SELECT 1",
		"kind": "mutation",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "invalid kind")
}

func TestCheckQuery_ExecWithColumns(t *testing.T) {
	s := setupServer(&mockAnalyzer{})

	result := callTool(t, s, "check_query", map[string]any{
		"sql":     "DELETE FROM person",
		"kind":    "exec",
		"columns": "n:text",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "cannot declare columns")
}

func TestCheckQuery_BadColumnDeclaration(t *testing.T) {
	s := setupServer(&mockAnalyzer{})

	result := callTool(t, s, "check_query", map[string]any{
		"sql":     "SELECT n FROM t",
		"columns": "just-a-name",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "expected name:type")
}

func TestCheckQuery_ColumnsOnly(t *testing.T) {
	analyzer := &mockAnalyzer{report: &domain.Report{
		Columns: []domain.FieldReport{{Label: "name"}},
	}}
	s := setupServer(analyzer)

	result := callTool(t, s, "check_query", map[string]any{
		"sql":          "SELECT name FROM person WHERE id = $1",
		"columns":      "name:text",
		"columns_only": true,
	})
	require.False(t, result.IsError)
	require.NotNil(t, analyzer.lastOp)
	assert.True(t, analyzer.lastOp.SkipParams)
}

func TestOperationFromArgs_KindDefaultsToQuery(t *testing.T) {
	op, err := operationFromArgs("SELECT 1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, domain.KindQuery, op.Kind)
	assert.Empty(t, op.Params)
	assert.Empty(t, op.Columns)
}
