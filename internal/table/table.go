// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package table holds query results as ordered, typed columns and rows, and
// converts them to the JSON, JSON-lines and CSV forms the other packages need.
package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the value type of a column.
type Kind int

const (
	String Kind = iota
	Int64
	Int32
	Float64
	Float32
	Bool
	Timestamp
	Duration
)

var kindNames = map[Kind]string{
	String:    "string",
	Int64:     "int64",
	Int32:     "int32",
	Float64:   "float64",
	Float32:   "float32",
	Bool:      "bool",
	Timestamp: "timestamp",
	Duration:  "duration",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Column names and types one column of a Table.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type Kind   `json:"type" yaml:"type"`
}

// Table is an ordered set of typed columns and rows. Every row has exactly
// len(Columns) cells; a nil cell is a null.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(columns ...Column) *Table {
	return &Table{Columns: columns}
}

// Strings returns a table whose columns are all of kind String.
func Strings(names ...string) *Table {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: String}
	}
	return New(cols...)
}

// AddRow appends a row. The number of values must match the column count.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	row := make([]any, len(values))
	copy(row, values)
	t.Rows = append(t.Rows, row)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no columns or no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.Columns) == 0 || len(t.Rows) == 0
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the value at row r, column c.
func (t *Table) Cell(r, c int) any {
	return t.Rows[r][c]
}

// Text returns the formatted value at row r, column c.
func (t *Table) Text(r, c int) string {
	return Format(t.Rows[r][c])
}

// Append adds the rows of other to t. Column names and count must match.
func (t *Table) Append(other *Table) error {
	if other.Empty() {
		return nil
	}
	if len(t.Columns) == 0 {
		t.Columns = append([]Column(nil), other.Columns...)
	}
	if len(other.Columns) != len(t.Columns) {
		return fmt.Errorf("appending table with %d columns to table with %d columns", len(other.Columns), len(t.Columns))
	}
	for i, c := range other.Columns {
		if c.Name != t.Columns[i].Name {
			return fmt.Errorf("column %d: name %q does not match %q", i, c.Name, t.Columns[i].Name)
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
	return nil
}

// Format renders a cell as human-readable text. Nil renders as "".
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339)
	case time.Duration:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Records returns the rows as name-to-value maps.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			rec[c.Name] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// WriteJSON writes the rows as a JSON array of objects with keys in column
// order. Non-ASCII text is written as UTF-8, not escaped.
func (t *Table) WriteJSON(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := t.writeRecord(&buf, row); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	_, err := w.Write(buf.Bytes())
	return err
}

// JSON returns the WriteJSON output as a string.
func (t *Table) JSON() (string, error) {
	var sb strings.Builder
	if err := t.WriteJSON(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WriteJSONLines writes one JSON object per row, newline-terminated.
func (t *Table) WriteJSONLines(w io.Writer) error {
	var buf bytes.Buffer
	for _, row := range t.Rows {
		if err := t.writeRecord(&buf, row); err != nil {
			return err
		}
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (t *Table) writeRecord(buf *bytes.Buffer, row []any) error {
	buf.WriteByte('{')
	for i, c := range t.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalValue(buf, c.Name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := marshalValue(buf, jsonValue(row[i])); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// jsonValue maps cells without a faithful JSON form onto one.
func jsonValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	}
	return v
}

func marshalValue(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// WriteCSV writes a header row followed by the formatted rows.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range t.Columns {
			record[i] = Format(row[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a CSV document whose first row is the header. Column kinds
// are inferred: all integers -> Int64, all numbers -> Float64, all booleans
// -> Bool, anything else -> String. Empty cells are nulls.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return New(), nil
	}

	header := records[0]
	body := records[1:]
	for i, rec := range body {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("csv line %d: %d fields, header has %d", i+2, len(rec), len(header))
		}
	}

	cols := make([]Column, len(header))
	for c, name := range header {
		cols[c] = Column{Name: strings.TrimSpace(name), Type: inferKind(body, c)}
	}

	t := New(cols...)
	for _, rec := range body {
		row := make([]any, len(cols))
		for c, raw := range rec {
			row[c] = parseAs(cols[c].Type, raw)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func inferKind(rows [][]string, col int) Kind {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, rec := range rows {
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
		if v != "true" && v != "false" {
			isBool = false
		}
	}
	switch {
	case !seen:
		return String
	case isInt:
		return Int64
	case isFloat:
		return Float64
	case isBool:
		return Bool
	default:
		return String
	}
}

func parseAs(k Kind, raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch k {
	case Int64:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case Float64:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case Bool:
		return v == "true"
	default:
		return raw
	}
}
