package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// typeAliases maps SQL-standard spellings onto the canonical pgtype names
// pgx reports, so declarations can use either form.
var typeAliases = map[string]string{
	"bigint":                      "int8",
	"int":                         "int4",
	"integer":                     "int4",
	"smallint":                    "int2",
	"boolean":                     "bool",
	"real":                        "float4",
	"double precision":            "float8",
	"character varying":           "varchar",
	"character":                   "bpchar",
	"char":                        "bpchar",
	"decimal":                     "numeric",
	"timestamp with time zone":    "timestamptz",
	"timestamp without time zone": "timestamp",
	"time with time zone":         "timetz",
	"time without time zone":      "time",
	"bit varying":                 "varbit",
}

func normalizeTypeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Join(strings.Fields(n), " ")
	if canonical, ok := typeAliases[n]; ok {
		return canonical
	}
	return n
}

// resolveDeclared maps a declared type name to its OID.
func resolveDeclared(m *pgtype.Map, name string) (uint32, error) {
	t, ok := m.TypeForName(normalizeTypeName(name))
	if !ok {
		return 0, fmt.Errorf("unknown declared type %q", name)
	}
	return t.OID, nil
}

// oidName renders an OID as a type name for messages.
func oidName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return t.Name
	}
	return fmt.Sprintf("oid %d", oid)
}
