package domain

// FieldReport holds the alignment errors for one labeled parameter or
// column. An empty Errors slice means the field passed.
type FieldReport struct {
	Label  string
	Errors []string
}

func (f FieldReport) OK() bool {
	return len(f.Errors) == 0
}

// Report is the analyzer's output for one Operation that prepared
// successfully. Field order follows declaration order. A prepare failure
// never produces a Report; it surfaces as an error from the analyzer.
type Report struct {
	Parameters []FieldReport
	Columns    []FieldReport
}

// FailureCount returns the number of fields with at least one error.
func (r *Report) FailureCount() int {
	n := 0
	for _, f := range r.Parameters {
		if !f.OK() {
			n++
		}
	}
	for _, f := range r.Columns {
		if !f.OK() {
			n++
		}
	}
	return n
}

// Aligned reports whether every field passed.
func (r *Report) Aligned() bool {
	return r.FailureCount() == 0
}
