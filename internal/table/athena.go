// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package table

import (
	"strconv"
	"strings"
	"time"
)

// athenaTypes maps column kinds to Athena DDL types.
var athenaTypes = map[Kind]string{
	Int64:     "bigint",
	Int32:     "int",
	Float64:   "double",
	Float32:   "float",
	Bool:      "boolean",
	Timestamp: "timestamp",
	String:    "string",
	Duration:  "string",
}

// AthenaType returns the Athena DDL type for a column kind. Unknown kinds
// map to "string".
func AthenaType(k Kind) string {
	if t, ok := athenaTypes[k]; ok {
		return t
	}
	return "string"
}

// ColumnDef is a column name and its Athena type.
type ColumnDef struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Schema returns the (name, Athena type) pairs of the table's columns, ready
// for an external table definition.
func (t *Table) Schema() []ColumnDef {
	defs := make([]ColumnDef, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = ColumnDef{Name: c.Name, Type: AthenaType(c.Type)}
	}
	return defs
}

// KindFromAthena maps an Athena result type (as reported in result set
// metadata) to a column kind.
func KindFromAthena(athenaType string) Kind {
	t := strings.ToLower(strings.TrimSpace(athenaType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "bigint":
		return Int64
	case "integer", "int", "smallint", "tinyint":
		return Int32
	case "double", "decimal":
		return Float64
	case "float", "real":
		return Float32
	case "boolean":
		return Bool
	case "timestamp", "date":
		return Timestamp
	default:
		return String
	}
}

// athenaTimestampLayouts are the textual timestamp forms Athena returns.
var athenaTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

// ParseAthenaValue converts a VarCharValue into a cell of the given kind.
// A nil raw value is a null. Values that do not parse are kept as strings.
func ParseAthenaValue(k Kind, raw *string) any {
	if raw == nil {
		return nil
	}
	v := *raw
	switch k {
	case Int64:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case Int32:
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			return int32(n)
		}
	case Float64:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case Float32:
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	case Bool:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	case Timestamp:
		for _, layout := range athenaTimestampLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts
			}
		}
	}
	return v
}
