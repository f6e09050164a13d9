package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sqlalign/sqlalign/internal/core/domain"
	"github.com/sqlalign/sqlalign/internal/core/port"
)

// Analyzer verifies an Operation's declared parameter and column types
// against a live PostgreSQL server. The statement is prepared (never
// executed) inside one pooled transaction, and the server's statement
// description is compared field by field against the declarations.
type Analyzer struct {
	transactor port.Transactor
	typeMap    *pgtype.Map
}

func NewAnalyzer(transactor port.Transactor) *Analyzer {
	return &Analyzer{
		transactor: transactor,
		typeMap:    pgtype.NewMap(),
	}
}

// errAnalysisDone forces the analysis transaction to roll back. Analysis
// must never leave effects behind, even for statements that would mutate.
var errAnalysisDone = errors.New("analysis complete")

// Analyze prepares op.SQL and reports per-field alignment errors. A
// returned error means the statement could not be described at all.
func (a *Analyzer) Analyze(ctx context.Context, op *domain.Operation) (*domain.Report, error) {
	var sd *pgconn.StatementDescription
	err := a.transactor.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		// Unnamed statement: described server-side, nothing cached.
		sd, err = tx.Conn().Prepare(ctx, "", op.SQL)
		if err != nil {
			return err
		}
		return errAnalysisDone
	})
	if err != nil && !errors.Is(err, errAnalysisDone) {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}

	report := &domain.Report{}
	if !op.SkipParams {
		report.Parameters = a.alignParams(op.Params, sd.ParamOIDs)
	}
	report.Columns = a.alignColumns(op.Columns, sd.Fields)
	return report, nil
}

func (a *Analyzer) alignParams(declared []domain.TypeDecl, actual []uint32) []domain.FieldReport {
	n := len(declared)
	if len(actual) > n {
		n = len(actual)
	}

	reports := make([]domain.FieldReport, 0, n)
	for i := 0; i < n; i++ {
		fr := domain.FieldReport{Label: fmt.Sprintf("$%d", i+1)}
		switch {
		case i >= len(actual):
			fr.Errors = append(fr.Errors, fmt.Sprintf(
				"declared %s but the statement takes only %d parameter(s)",
				declared[i].Type, len(actual)))
		case i >= len(declared):
			fr.Errors = append(fr.Errors, fmt.Sprintf(
				"statement takes a %s parameter here but none is declared",
				oidName(a.typeMap, actual[i])))
		default:
			if msg := a.compareTypes(declared[i].Type, actual[i], "statement takes"); msg != "" {
				fr.Errors = append(fr.Errors, msg)
			}
		}
		reports = append(reports, fr)
	}
	return reports
}

func (a *Analyzer) alignColumns(declared []domain.TypeDecl, actual []pgconn.FieldDescription) []domain.FieldReport {
	n := len(declared)
	if len(actual) > n {
		n = len(actual)
	}

	reports := make([]domain.FieldReport, 0, n)
	for i := 0; i < n; i++ {
		fr := domain.FieldReport{Label: columnLabel(declared, actual, i)}
		switch {
		case i >= len(actual):
			fr.Errors = append(fr.Errors, fmt.Sprintf(
				"declared %s but the statement returns only %d column(s)",
				declared[i].Type, len(actual)))
		case i >= len(declared):
			fr.Errors = append(fr.Errors, fmt.Sprintf(
				"statement returns %s %q here but no column is declared",
				oidName(a.typeMap, actual[i].DataTypeOID), actual[i].Name))
		default:
			if declared[i].Name != "" && declared[i].Name != actual[i].Name {
				fr.Errors = append(fr.Errors, fmt.Sprintf(
					"declared column %q but the statement returns %q",
					declared[i].Name, actual[i].Name))
			}
			if msg := a.compareTypes(declared[i].Type, actual[i].DataTypeOID, "column is"); msg != "" {
				fr.Errors = append(fr.Errors, msg)
			}
		}
		reports = append(reports, fr)
	}
	return reports
}

// compareTypes resolves a declared type name and checks it against the
// actual OID. It returns an error message, or "" when aligned.
func (a *Analyzer) compareTypes(declared string, actual uint32, verb string) string {
	oid, err := resolveDeclared(a.typeMap, declared)
	if err != nil {
		return err.Error()
	}
	if oid != actual {
		return fmt.Sprintf("declared %s but %s %s", declared, verb, oidName(a.typeMap, actual))
	}
	return ""
}

func columnLabel(declared []domain.TypeDecl, actual []pgconn.FieldDescription, i int) string {
	if i < len(declared) && declared[i].Name != "" {
		return declared[i].Name
	}
	if i < len(actual) && actual[i].Name != "" {
		return actual[i].Name
	}
	return fmt.Sprintf("column %d", i+1)
}
