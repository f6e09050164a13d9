package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrEmptyStatement = errors.New("empty statement")
	ErrMultiStatement = errors.New("multiple statements are not allowed")
	ErrParseFailed    = errors.New("failed to parse SQL")
	ErrUnsupported    = errors.New("unsupported statement type")
	ErrKindMismatch   = errors.New("statement kind mismatch")
)

// StatementValidator classifies SQL statements using PostgreSQL's actual
// parser and rejects statements an Operation cannot describe.
type StatementValidator struct{}

func NewStatementValidator() *StatementValidator {
	return &StatementValidator{}
}

// Validate parses the SQL, rejects empty or multi-statement input, and
// checks that the statement class agrees with the operation's declared kind.
func (v *StatementValidator) Validate(sql string, kind Kind) error {
	actual, err := v.Classify(sql)
	if err != nil {
		return err
	}
	if actual != kind {
		return fmt.Errorf("%w: declared %s but statement is a %s", ErrKindMismatch, kind, actual)
	}
	return nil
}

// Classify returns the operation kind a single SQL statement corresponds to.
func (v *StatementValidator) Classify(sql string) (Kind, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return 0, ErrEmptyStatement
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	if len(tree.Stmts) == 0 {
		return 0, ErrEmptyStatement
	}
	if len(tree.Stmts) > 1 {
		return 0, ErrMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return 0, ErrEmptyStatement
	}

	switch stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return KindQuery, nil
	case *pg_query.Node_InsertStmt, *pg_query.Node_UpdateStmt,
		*pg_query.Node_DeleteStmt, *pg_query.Node_MergeStmt:
		return KindExec, nil
	default:
		return 0, ErrUnsupported
	}
}
