// Package manifest loads declarative check suites from YAML.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/sqlalign/sqlalign/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Column declares one expected output column.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Check is one declared operation to verify.
type Check struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"` // "query" or "exec"
	SQL     string   `yaml:"sql"`
	Params  []string `yaml:"params"`
	Columns []Column `yaml:"columns"`

	// ColumnsOnly skips parameter alignment for this check.
	ColumnsOnly bool `yaml:"columns_only"`

	// Line is the check's line in the manifest file, for diagnostics.
	Line int `yaml:"-"`
}

// UnmarshalYAML records the node's line alongside the decoded fields.
func (c *Check) UnmarshalYAML(node *yaml.Node) error {
	type plain Check
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	c.Line = node.Line
	return nil
}

// Suite is a named set of checks loaded from one file.
type Suite struct {
	Checks []Check `yaml:"checks"`

	// Path is the file the suite was loaded from.
	Path string `yaml:"-"`
}

// LoadFromFile reads a YAML manifest and returns a validated Suite.
func LoadFromFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing manifest YAML: %w", err)
	}

	if err := validate(&suite); err != nil {
		return nil, fmt.Errorf("validating manifest: %w", err)
	}

	suite.Path = path
	return &suite, nil
}

func validate(suite *Suite) error {
	if len(suite.Checks) == 0 {
		return fmt.Errorf("manifest contains no checks")
	}
	seen := make(map[string]bool, len(suite.Checks))
	for i, c := range suite.Checks {
		if c.Name == "" {
			return fmt.Errorf("checks[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("checks[%d]: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true

		if strings.TrimSpace(c.SQL) == "" {
			return fmt.Errorf("checks[%q]: sql is required", c.Name)
		}
		switch c.Kind {
		case "query", "":
		case "exec":
			if len(c.Columns) > 0 {
				return fmt.Errorf("checks[%q]: exec checks cannot declare columns", c.Name)
			}
			if c.ColumnsOnly {
				return fmt.Errorf("checks[%q]: exec checks cannot be columns_only", c.Name)
			}
		default:
			return fmt.Errorf("checks[%q]: invalid kind %q (allowed: query, exec)", c.Name, c.Kind)
		}
		for j, col := range c.Columns {
			if col.Name == "" || col.Type == "" {
				return fmt.Errorf("checks[%q].columns[%d]: name and type are required", c.Name, j)
			}
		}
	}
	return nil
}

// Operation converts a Check into the domain Operation the analyzer
// understands. path locates failure messages; pass the suite's Path.
func (c Check) Operation(path string) *domain.Operation {
	kind := domain.KindQuery
	if c.Kind == "exec" {
		kind = domain.KindExec
	}

	params := make([]domain.TypeDecl, len(c.Params))
	for i, p := range c.Params {
		params[i] = domain.TypeDecl{Type: p}
	}
	columns := make([]domain.TypeDecl, len(c.Columns))
	for i, col := range c.Columns {
		columns[i] = domain.TypeDecl{Name: col.Name, Type: col.Type}
	}

	op := &domain.Operation{
		Name:    c.Name,
		SQL:     c.SQL,
		Kind:    kind,
		Params:  params,
		Columns: columns,
	}
	if path != "" {
		op.Loc = &domain.SourceLoc{File: path, Line: c.Line}
	}
	if c.ColumnsOnly {
		op.SkipParams = true
	}
	return op
}
