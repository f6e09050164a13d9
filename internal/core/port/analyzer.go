package port

import (
	"context"

	"github.com/sqlalign/sqlalign/internal/core/domain"
)

// Analyzer inspects one Operation against a live database and reports
// per-parameter and per-column alignment errors. A returned error means the
// statement could not be analyzed at all (connection failure, SQL that does
// not prepare); alignment errors never surface as an error.
type Analyzer interface {
	Analyze(ctx context.Context, op *domain.Operation) (*domain.Report, error)
}

// Validator rejects SQL an Operation cannot describe before it reaches the
// database.
type Validator interface {
	Validate(sql string, kind domain.Kind) error
}
