package port

import "context"

// AuditEntry represents one completed analysis.
type AuditEntry struct {
	Operation  string
	SQL        string
	Failures   int
	DurationMS int64
	Err        error
}

// Auditor records analysis audit events.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
