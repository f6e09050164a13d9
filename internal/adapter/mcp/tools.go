package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sqlalign/sqlalign/internal/checker"
	"github.com/sqlalign/sqlalign/internal/core/domain"
	"github.com/sqlalign/sqlalign/internal/core/service"
)

// Server metadata
const serverName = "sqlalign"

// Tool descriptions
const (
	descCheckQuery = "Verify a SQL statement against the live database without executing it: " +
		"the statement is prepared server-side and its actual parameter and column types are " +
		"compared with the declared ones. Returns a labeled pass/fail assertion block. " +
		"Use this before shipping a query to catch type and column misalignments early. " +
		"Declared types are PostgreSQL type names (int8, text, numeric, timestamptz, ...)."

	descCheckQuerySQL = "The SQL statement to check (single statement, $1-style placeholders)"

	descCheckQueryKind = "Statement kind: \"query\" for row-returning statements (default), " +
		"\"exec\" for mutations"

	descCheckQueryParams = "Comma-separated declared parameter types in placeholder order, " +
		"e.g. \"int8, text\". Omit for statements without parameters."

	descCheckQueryColumns = "Comma-separated declared output columns as name:type pairs, " +
		"e.g. \"name:text, age:int4\". Omit for mutations."

	descCheckQueryColumnsOnly = "Check only the output columns, skipping parameter alignment. " +
		"Defaults to false."
)

func RegisterTools(s *server.MCPServer, checks *service.CheckService) {
	s.AddTool(
		mcp.NewTool("check_query",
			mcp.WithDescription(descCheckQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descCheckQuerySQL),
			),
			mcp.WithString("kind",
				mcp.Description(descCheckQueryKind),
			),
			mcp.WithString("params",
				mcp.Description(descCheckQueryParams),
			),
			mcp.WithString("columns",
				mcp.Description(descCheckQueryColumns),
			),
			mcp.WithBoolean("columns_only",
				mcp.Description(descCheckQueryColumnsOnly),
			),
		),
		checkQueryHandler(checks),
	)
}

func checkQueryHandler(checks *service.CheckService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		op, err := operationFromArgs(sql, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithSource(ctx, "mcp")
		block := checker.New(checks).Check(op)

		var buf bytes.Buffer
		block.Render(ctx, &buf)
		return mcp.NewToolResultText(buf.String()), nil
	}
}

func operationFromArgs(sql string, args map[string]any) (*domain.Operation, error) {
	kind := domain.KindQuery
	if k, _ := args["kind"].(string); k != "" {
		switch k {
		case "query":
		case "exec":
			kind = domain.KindExec
		default:
			return nil, fmt.Errorf("invalid kind %q (allowed: query, exec)", k)
		}
	}

	op := &domain.Operation{
		Name: "check_query",
		SQL:  sql,
		Kind: kind,
	}

	if p, _ := args["params"].(string); p != "" {
		for _, typ := range strings.Split(p, ",") {
			op.Params = append(op.Params, domain.TypeDecl{Type: strings.TrimSpace(typ)})
		}
	}

	if c, _ := args["columns"].(string); c != "" {
		if kind == domain.KindExec {
			return nil, fmt.Errorf("exec statements cannot declare columns")
		}
		for _, pair := range strings.Split(c, ",") {
			name, typ, found := strings.Cut(strings.TrimSpace(pair), ":")
			if !found || name == "" || typ == "" {
				return nil, fmt.Errorf("invalid column declaration %q (expected name:type)", strings.TrimSpace(pair))
			}
			op.Columns = append(op.Columns, domain.TypeDecl{
				Name: strings.TrimSpace(name),
				Type: strings.TrimSpace(typ),
			})
		}
	}

	if skip, _ := args["columns_only"].(bool); skip {
		if kind == domain.KindExec {
			return nil, fmt.Errorf("exec statements cannot be columns_only")
		}
		op.SkipParams = true
	}

	return op, nil
}
