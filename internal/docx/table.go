// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	gdx "github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"

	"github.com/pdiddy/report-engine/internal/table"
)

// TableOptions control how a table is inserted.
type TableOptions struct {
	// Title is written as a level-3 heading above the table.
	Title string
	// MergeColumns vertically merges runs of consecutive rows that are
	// equal on all of these columns.
	MergeColumns []string
	// Colors shade data cells; the first matching rule wins.
	Colors []ColorRule
}

// ColorRule picks a fill colour for a data cell.
type ColorRule interface {
	Color(column string, value any) (hex string, ok bool)
}

// ValueColors shades cells of Column whose formatted value is a key of Colors.
type ValueColors struct {
	Column string
	Colors map[string]string
}

func (v ValueColors) Color(column string, value any) (string, bool) {
	if column != v.Column {
		return "", false
	}
	c, ok := v.Colors[table.Format(value)]
	return c, ok
}

// Band is a half-open numeric range [Min, Max).
type Band struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Color string  `json:"color" yaml:"color"`
}

// NumericBands shades numeric cells of Column by the first band containing
// the value. Non-numeric cells are left alone.
type NumericBands struct {
	Column string
	Bands  []Band
}

func (n NumericBands) Color(column string, value any) (string, bool) {
	if column != n.Column {
		return "", false
	}
	f, ok := number(value)
	if !ok {
		return "", false
	}
	for _, b := range n.Bands {
		if f >= b.Min && f < b.Max {
			return b.Color, true
		}
	}
	return "", false
}

// RuleFunc adapts a function to ColorRule.
type RuleFunc func(column string, value any) (string, bool)

func (f RuleFunc) Color(column string, value any) (string, bool) { return f(column, value) }

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

var hexColor = regexp.MustCompile(`^[0-9A-F]{6}$`)

// normalizeColor accepts "#rrggbb" or "rrggbb" in any case.
func normalizeColor(s string) (string, error) {
	c := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if !hexColor.MatchString(c) {
		return "", fmt.Errorf("invalid colour %q, want 6 hex digits", s)
	}
	return c, nil
}

// vMerge states of a cell.
const (
	mergeNone = iota
	mergeRestart
	mergeContinue
)

type tableBlock struct {
	header []string
	cells  [][]string
	merge  [][]int
	fill   [][]string
}

func (t *tableBlock) Kind() string { return KindTable }
func (t *tableBlock) Summary() string {
	return fmt.Sprintf("table with %d rows, %d columns", len(t.cells), len(t.header))
}

// newTableBlock lays out t with merges and shading resolved.
func newTableBlock(t *table.Table, opts TableOptions) (*tableBlock, error) {
	names := t.Names()
	tb := &tableBlock{header: names}

	mergeIdx := make([]int, len(opts.MergeColumns))
	for i, name := range opts.MergeColumns {
		idx, ok := t.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("merge column %q not in table (columns: %s)", name, strings.Join(names, ", "))
		}
		mergeIdx[i] = idx
	}

	for r, row := range t.Rows {
		texts := make([]string, len(row))
		fills := make([]string, len(row))
		for c, v := range row {
			texts[c] = table.Format(v)
			for _, rule := range opts.Colors {
				if hex, ok := rule.Color(names[c], v); ok {
					norm, err := normalizeColor(hex)
					if err != nil {
						return nil, fmt.Errorf("row %d column %q: %w", r, names[c], err)
					}
					fills[c] = norm
					break
				}
			}
		}
		tb.cells = append(tb.cells, texts)
		tb.fill = append(tb.fill, fills)
		tb.merge = append(tb.merge, make([]int, len(row)))
	}

	if len(mergeIdx) > 0 {
		tb.applyMerges(mergeIdx)
	}
	return tb, nil
}

// applyMerges marks runs of rows that agree on every merge column. The first
// row of a run restarts the merge; the rest continue it with emptied text.
func (t *tableBlock) applyMerges(cols []int) {
	key := func(r int) string {
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = t.cells[r][c]
		}
		return strings.Join(parts, "\x00")
	}
	for start := 0; start < len(t.cells); {
		end := start + 1
		for end < len(t.cells) && key(end) == key(start) {
			end++
		}
		if end-start > 1 {
			for _, c := range cols {
				t.merge[start][c] = mergeRestart
				for r := start + 1; r < end; r++ {
					t.merge[r][c] = mergeContinue
					t.cells[r][c] = ""
				}
			}
		}
		start = end
	}
}

func (t *tableBlock) render(r *renderer) error {
	c := r.cfg
	total := inchTwips(c.TableWidth)
	width := total
	if n := len(t.header); n > 0 {
		width = total / n
	}
	grid := make([]uint64, len(t.header))
	for i := range grid {
		grid[i] = uint64(width)
	}

	tbl := r.doc.AddTable()
	tbl.Style("TableGrid")
	tbl.Width(width*len(t.header), stypes.TableWidthDxa)
	tbl.Layout(stypes.TableLayoutFixed)
	tbl.Grid(grid...)
	tbl.GetCT().TableProp.Justification = ctypes.NewGenSingleStrVal(stypes.JustificationCenter)

	cell := func(row *gdx.Row, text, shade string, rp runProps) {
		cl := row.AddCell().Width(width, stypes.TableWidthDxa).VerticalAlign("center")
		if shade != "" {
			cl.BackgroundColor(shade)
		}
		fill(cl.AddEmptyPara(), paraProps{align: stypes.JustificationCenter}, rp, text)
	}

	header := tbl.AddRow()
	for _, h := range t.header {
		cell(header, h, "", runProps{font: c.BodyFont, size: c.HeaderSize, bold: true})
	}
	for i, row := range t.cells {
		tr := tbl.AddRow()
		for j, text := range row {
			cell(tr, text, t.fill[i][j], runProps{font: c.BodyFont, size: c.CellSize})
		}
	}

	// Rows and cells are only reachable through the table's content tree
	// for the header flag and vertical merges.
	rows := tbl.GetCT().RowContents
	rows[0].Row.Property.Header = &ctypes.OnOff{}
	for i := range t.cells {
		for j, cc := range rows[i+1].Row.Contents {
			switch t.merge[i][j] {
			case mergeRestart:
				cc.Cell.Property.VMerge = ctypes.NewGenOptStrVal(stypes.MergeCellRestart)
			case mergeContinue:
				cc.Cell.Property.VMerge = ctypes.NewGenOptStrVal(stypes.MergeCellContinue)
			}
		}
	}

	// A paragraph after a table keeps adjacent tables from fusing.
	r.doc.AddEmptyParagraph()
	return nil
}
