// Package checker turns SQL alignment analysis into labeled pass/fail
// assertion blocks for go test or a reporting front end.
package checker

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/sqlalign/sqlalign/internal/core/domain"
	"github.com/sqlalign/sqlalign/internal/core/port"
)

// CompileLabel is the label of the single top-level assertion every block
// carries.
const CompileLabel = "SQL Compiles and Typechecks"

// Checker builds assertion blocks for SQL operations. Building a block
// performs no database work; analysis is deferred until the block is
// evaluated.
type Checker struct {
	analyzer port.Analyzer
}

func New(analyzer port.Analyzer) *Checker {
	return &Checker{analyzer: analyzer}
}

// Col declares one output column.
func Col(name, typ string) domain.TypeDecl {
	return domain.TypeDecl{Name: name, Type: typ}
}

// Query checks a row-returning statement with parameters.
func (c *Checker) Query(name, sql string, params []string, columns []domain.TypeDecl) *Block {
	return c.check(buildOperation(name, sql, domain.KindQuery, params, columns, caller()))
}

// QueryNoParams checks a row-returning statement without parameters.
func (c *Checker) QueryNoParams(name, sql string, columns []domain.TypeDecl) *Block {
	return c.check(buildOperation(name, sql, domain.KindQuery, nil, columns, caller()))
}

// Exec checks a mutating statement with parameters.
func (c *Checker) Exec(name, sql string, params []string) *Block {
	return c.check(buildOperation(name, sql, domain.KindExec, params, nil, caller()))
}

// ExecNoParams checks a mutating statement without parameters.
func (c *Checker) ExecNoParams(name, sql string) *Block {
	return c.check(buildOperation(name, sql, domain.KindExec, nil, nil, caller()))
}

// Columns checks only the output shape of a row-returning statement,
// skipping parameter alignment. Useful when only the result shape matters.
func (c *Checker) Columns(name, sql string, columns []domain.TypeDecl) *Block {
	op := buildOperation(name, sql, domain.KindQuery, nil, columns, caller())
	op.SkipParams = true
	return c.check(op)
}

// Check builds a block for a caller-constructed Operation.
func (c *Checker) Check(op *domain.Operation) *Block {
	return c.check(op)
}

func (c *Checker) check(op *domain.Operation) *Block {
	return &Block{
		op: op,
		analyze: func(ctx context.Context) (*domain.Report, error) {
			return c.analyzer.Analyze(ctx, op)
		},
	}
}

func buildOperation(name, sql string, kind domain.Kind, params []string, columns []domain.TypeDecl, loc *domain.SourceLoc) *domain.Operation {
	decls := make([]domain.TypeDecl, len(params))
	for i, p := range params {
		decls[i] = domain.TypeDecl{Type: p}
	}
	return &domain.Operation{
		Name:    name,
		SQL:     sql,
		Kind:    kind,
		Params:  decls,
		Columns: columns,
		Loc:     loc,
	}
}

// caller records the call site two frames up (the checker's caller).
func caller() *domain.SourceLoc {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return nil
	}
	return &domain.SourceLoc{File: filepath.Base(file), Line: line}
}

// Result is the outcome of one labeled assertion.
type Result struct {
	Label   string
	Passed  bool
	Message string // rendered failure detail, empty on pass
}

// Block is one operation's set of assertions. Assertion labels are known at
// construction time; outcomes exist only after Evaluate runs, exactly once.
type Block struct {
	op      *domain.Operation
	analyze func(ctx context.Context) (*domain.Report, error)

	once    sync.Once
	results []Result
}

// Operation returns the operation this block checks.
func (b *Block) Operation() *domain.Operation {
	return b.op
}

// Pending lists the assertion labels before evaluation, so reporting tools
// can show checks that have not yet run.
func (b *Block) Pending() []string {
	labels := []string{CompileLabel}
	if !b.op.SkipParams {
		for i := range b.op.Params {
			labels = append(labels, fmt.Sprintf("parameter $%d", i+1))
		}
	}
	for _, c := range b.op.Columns {
		labels = append(labels, columnAssertionLabel(c.Name))
	}
	return labels
}

// Evaluate runs the deferred analysis and derives assertion outcomes. It is
// safe to call more than once; the analysis itself runs exactly once.
func (b *Block) Evaluate(ctx context.Context) []Result {
	b.once.Do(func() {
		report, err := b.analyze(ctx)
		if err != nil {
			// One failing assertion, nothing else. The location goes into
			// the message so the failure is traceable even from a flat list.
			b.results = []Result{{
				Label:   CompileLabel,
				Message: failureMessage(fmt.Sprintf("%s at %s", err.Error(), b.op.Location())),
			}}
			return
		}

		b.results = append(b.results, Result{Label: CompileLabel, Passed: true})
		for _, f := range report.Parameters {
			b.results = append(b.results, fieldResult("parameter "+f.Label, f))
		}
		for _, f := range report.Columns {
			b.results = append(b.results, fieldResult(columnAssertionLabel(f.Label), f))
		}
	})
	return b.results
}

// Failed reports whether any assertion failed. It evaluates the block if
// needed.
func (b *Block) Failed(ctx context.Context) bool {
	for _, r := range b.Evaluate(ctx) {
		if !r.Passed {
			return true
		}
	}
	return false
}

// Report evaluates the block and emits one subtest per assertion. It
// returns true when every assertion passed. Failures never abort the
// surrounding test; each assertion reports independently.
func (b *Block) Report(ctx context.Context, t *testing.T) bool {
	t.Helper()
	ok := true
	for _, r := range b.Evaluate(ctx) {
		passed := t.Run(r.Label, func(t *testing.T) {
			if !r.Passed {
				t.Errorf("%s %s\n%s", b.op.Signature(), b.op.Location(), r.Message)
			}
		})
		ok = ok && passed
	}
	return ok
}

func fieldResult(label string, f domain.FieldReport) Result {
	if f.OK() {
		return Result{Label: label, Passed: true}
	}
	msgs := make([]string, 0, len(f.Errors))
	for _, e := range f.Errors {
		msgs = append(msgs, failureMessage(e))
	}
	return Result{Label: label, Message: joinLines(msgs)}
}

func columnAssertionLabel(name string) string {
	if name == "" {
		return "column"
	}
	return fmt.Sprintf("column %q", name)
}
