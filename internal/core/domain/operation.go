package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind distinguishes operations that return rows from operations that mutate.
type Kind int

const (
	KindQuery Kind = iota // returns rows
	KindExec              // mutation, no result set
)

func (k Kind) String() string {
	if k == KindExec {
		return "Exec"
	}
	return "Query"
}

// TypeDecl is a caller-supplied declared type for one parameter or column.
// Type is a PostgreSQL type name ("bigint", "text", ...); Name is the
// column name for output declarations and empty for parameters.
type TypeDecl struct {
	Name string
	Type string
}

// SourceLoc is the call site an Operation was declared at.
type SourceLoc struct {
	File string
	Line int
}

func (l SourceLoc) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Operation is one SQL statement bound to declared input and output types.
// Operations are built once per call site and never modified afterwards.
type Operation struct {
	Name    string
	SQL     string
	Kind    Kind
	Params  []TypeDecl
	Columns []TypeDecl
	Loc     *SourceLoc // nil when the call site is unknown

	// SkipParams restricts analysis to output columns only.
	SkipParams bool
}

// Signature renders a short display label for the operation's declared
// shape, e.g. "Query[int8 -> (text, int4)]". Declared type names have
// package-style prefixes stripped.
func (o *Operation) Signature() string {
	var b strings.Builder
	b.WriteString(o.Kind.String())

	params := make([]string, len(o.Params))
	for i, p := range o.Params {
		params[i] = StripPackages(p.Type)
	}
	cols := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		cols[i] = StripPackages(c.Type)
	}

	switch {
	case len(params) == 0 && len(cols) == 0:
		// bare label, e.g. "Exec"
	case len(params) == 0:
		fmt.Fprintf(&b, "[(%s)]", strings.Join(cols, ", "))
	case len(cols) == 0:
		fmt.Fprintf(&b, "[%s]", strings.Join(params, ", "))
	default:
		fmt.Fprintf(&b, "[%s -> (%s)]", strings.Join(params, ", "), strings.Join(cols, ", "))
	}
	return b.String()
}

// Location renders the declared call site, or an explicit marker when absent.
func (o *Operation) Location() string {
	if o.Loc == nil {
		return "(unknown location)"
	}
	return o.Loc.String()
}

// packageSegments matches one or more leading lowercase dotted segments of a
// qualified type name, e.g. the "com.example." in "com.example.Foo".
var packageSegments = regexp.MustCompile(`([a-z][a-zA-Z0-9_]*\.)+`)

// StripPackages removes package-style prefixes from a type display name so
// labels stay short: "time.Time" becomes "Time", and prefixes nested inside
// generic brackets are removed too.
func StripPackages(name string) string {
	return packageSegments.ReplaceAllString(name, "")
}
