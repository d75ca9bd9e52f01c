// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/internal/table"
	"github.com/pdiddy/report-engine/pkg/types"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// unpack returns the parts of a .docx package by name.
func unpack(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	parts := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		parts[f.Name] = string(b)
	}
	return parts
}

func wellFormed(t *testing.T, name, doc string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return
		}
		require.NoError(t, err, "part %s is not well-formed XML", name)
	}
}

func build(t *testing.T, b *Builder) map[string]string {
	t.Helper()
	var buf bytes.Buffer
	_, err := b.WriteTo(&buf)
	require.NoError(t, err)
	parts := unpack(t, buf.Bytes())
	for name, p := range parts {
		if strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".rels") {
			wellFormed(t, name, p)
		}
	}
	return parts
}

// node is an element of a part, by local name with local-name attributes.
type node struct {
	name  string
	attrs map[string]string
}

// nodes lists the elements of doc in document order.
func nodes(t *testing.T, doc string) []node {
	t.Helper()
	var out []node
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		if se, ok := tok.(xml.StartElement); ok {
			n := node{name: se.Name.Local, attrs: map[string]string{}}
			for _, a := range se.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			out = append(out, n)
		}
	}
}

// find returns the elements named name whose attributes include attrs.
func find(t *testing.T, doc, name string, attrs map[string]string) []node {
	t.Helper()
	var out []node
	for _, n := range nodes(t, doc) {
		if n.name != name {
			continue
		}
		match := true
		for k, v := range attrs {
			if n.attrs[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, n)
		}
	}
	return out
}

// text joins the character data of the text and field instruction runs.
func text(t *testing.T, doc string) string {
	t.Helper()
	var b strings.Builder
	dec := xml.NewDecoder(strings.NewReader(doc))
	in := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return b.String()
		}
		require.NoError(t, err)
		switch x := tok.(type) {
		case xml.StartElement:
			in = x.Name.Local == "t" || x.Name.Local == "instrText"
		case xml.EndElement:
			if in {
				b.WriteString("\n")
			}
			in = false
		case xml.CharData:
			if in {
				b.Write(x)
			}
		}
	}
}

func salesTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New(
		table.Column{Name: "Region", Type: table.String},
		table.Column{Name: "Product", Type: table.String},
		table.Column{Name: "Margin", Type: table.Float64},
	)
	for _, r := range [][]any{
		{"North", "Tea", 0.12},
		{"North", "Coffee", 0.4},
		{"South", "Tea", 0.05},
		{"North", "Cocoa", 0.3},
	} {
		require.NoError(t, tbl.AddRow(r...))
	}
	return tbl
}

func TestWriteTo_PackageParts(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).
		TableOfContents("").
		UpdateNotice().
		PageBreak().
		Heading("Resumen de proyecto", 1).
		Paragraph("Texto con <marcas> & símbolos.").
		Heading("Sección", 2).
		Bullets([]string{"Ítem 1", "Ítem 2"}, 2)

	parts := build(t, b)
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/_rels/document.xml.rels", "word/styles.xml", "word/settings.xml"} {
		assert.Contains(t, parts, name)
	}

	doc := parts["word/document.xml"]
	body := text(t, doc)
	assert.Contains(t, body, "RESUMEN DE PROYECTO")
	assert.Contains(t, body, "Texto con <marcas> & símbolos.")
	assert.Contains(t, body, `TOC \o "1-3" \h \z \u`)
	assert.Contains(t, body, "- Ítem 1")
	assert.Len(t, find(t, doc, "br", map[string]string{"type": "page"}), 1)
	assert.NotEmpty(t, find(t, doc, "ind", map[string]string{"left": "240"}), "level 2 bullets indent 12pt")
	assert.Len(t, find(t, doc, "pgSz", map[string]string{"w": "11909", "h": "16834"}), 1)
	assert.NotEmpty(t, find(t, doc, "rFonts", map[string]string{"ascii": "Lora"}))
	assert.NotEmpty(t, find(t, doc, "color", map[string]string{"val": "2E3F5F"}))

	var fld []string
	for _, n := range find(t, doc, "fldChar", nil) {
		fld = append(fld, n.attrs["fldCharType"])
	}
	assert.Equal(t, []string{"begin", "separate", "end"}, fld)
	assert.Len(t, find(t, parts["word/settings.xml"], "updateFields", map[string]string{"val": "true"}), 1)
	assert.NotEmpty(t, find(t, parts["word/styles.xml"], "outlineLvl", map[string]string{"val": "0"}))
}

func TestWriteTo_NoFieldsWithoutTOC(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(types.DocumentConfig{}, nil).Heading("Solo", 1).WriteTo(&buf)
	require.NoError(t, err)
	parts := unpack(t, buf.Bytes())
	assert.Empty(t, find(t, parts["word/document.xml"], "fldChar", nil))
	assert.Len(t, find(t, parts["word/settings.xml"], "updateFields", nil), 1)
}

func TestWithUpdateFields(t *testing.T) {
	got := string(withUpdateFields([]byte(`<w:settings><w:zoom/><w:compat></w:compat></w:settings>`)))
	assert.Equal(t, `<w:settings><w:zoom/><w:updateFields w:val="true"/><w:compat></w:compat></w:settings>`, got)
	got = string(withUpdateFields([]byte(`<w:settings></w:settings>`)))
	assert.Equal(t, `<w:settings><w:updateFields w:val="true"/></w:settings>`, got)
	assert.Equal(t, got, string(withUpdateFields([]byte(got))), "already set")
}

func TestTable_MergeAndColors(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).Table(salesTable(t), TableOptions{
		Title:        "Ventas",
		MergeColumns: []string{"Region"},
		Colors: []ColorRule{
			ValueColors{Column: "Product", Colors: map[string]string{"Tea": "#c6efce"}},
			NumericBands{Column: "Margin", Bands: []Band{{Min: 0, Max: 0.1, Color: "FFC7CE"}, {Min: 0.1, Max: 1, Color: "ffeb9c"}}},
		},
	})
	require.NoError(t, b.Err())

	infos := b.Contents()
	require.Len(t, infos, 2)
	assert.Equal(t, KindHeading, infos[0].Kind)
	assert.Equal(t, KindTable, infos[1].Kind)

	tb := b.blocks[1].(*tableBlock)
	assert.Equal(t, []int{mergeRestart, mergeContinue, mergeNone, mergeNone}, []int{tb.merge[0][0], tb.merge[1][0], tb.merge[2][0], tb.merge[3][0]})
	assert.Equal(t, "", tb.cells[1][0])
	assert.Equal(t, "North", tb.cells[3][0], "non-consecutive rows stay separate")
	assert.Equal(t, "C6EFCE", tb.fill[0][1])
	assert.Equal(t, "", tb.fill[1][1])
	assert.Equal(t, "FFEB9C", tb.fill[0][2])
	assert.Equal(t, "FFC7CE", tb.fill[2][2])

	doc := build(t, b)["word/document.xml"]
	assert.Len(t, find(t, doc, "vMerge", map[string]string{"val": "restart"}), 1)
	assert.Len(t, find(t, doc, "vMerge", map[string]string{"val": "continue"}), 1)
	assert.Len(t, find(t, doc, "gridCol", map[string]string{"w": "2880"}), 3, "6in over 3 columns")
	assert.Len(t, find(t, doc, "shd", map[string]string{"val": "clear", "fill": "C6EFCE"}), 2)
	assert.Len(t, find(t, doc, "tblHeader", nil), 1)
}

func TestTable_MergeOnTuple(t *testing.T) {
	tbl := table.Strings("A", "B", "C")
	for _, r := range [][]any{{"x", "1", "a"}, {"x", "1", "b"}, {"x", "2", "c"}} {
		require.NoError(t, tbl.AddRow(r...))
	}
	b := New(types.DocumentConfig{}, nil).Table(tbl, TableOptions{MergeColumns: []string{"A", "B"}})
	tb := b.blocks[0].(*tableBlock)
	assert.Equal(t, mergeRestart, tb.merge[0][0])
	assert.Equal(t, mergeContinue, tb.merge[1][1])
	assert.Equal(t, mergeNone, tb.merge[2][0])
}

func TestTable_EmptySkipped(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).Table(table.Strings("A"), TableOptions{Title: "Vacía"}).Paragraph("after")
	require.NoError(t, b.Err())
	assert.Equal(t, 1, b.Len())
	assert.Contains(t, b.History()[0], "table skipped")
}

func TestTable_UnknownMergeColumn(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).Table(salesTable(t), TableOptions{MergeColumns: []string{"Country"}})
	require.Error(t, b.Err())
	assert.Contains(t, b.Err().Error(), "Country")
	assert.Error(t, b.Save(filepath.Join(t.TempDir(), "x.docx")))
}

func TestTable_RuleFuncAndBadColor(t *testing.T) {
	hot := RuleFunc(func(col string, v any) (string, bool) {
		f, ok := v.(float64)
		return "FF0000", ok && f > 0.35
	})
	b := New(types.DocumentConfig{}, nil).Table(salesTable(t), TableOptions{Colors: []ColorRule{hot}})
	require.NoError(t, b.Err())
	assert.Equal(t, "FF0000", b.blocks[0].(*tableBlock).fill[1][2])

	bad := RuleFunc(func(string, any) (string, bool) { return "red", true })
	b = New(types.DocumentConfig{}, nil).Table(salesTable(t), TableOptions{Colors: []ColorRule{bad}})
	assert.ErrorContains(t, b.Err(), "invalid colour")
}

func TestFigure(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).
		Figure(samplePNG(t, 200, 100), "Gráfico", "Fuente: encuesta").
		Figure(samplePNG(t, 10, 10), "", "")
	require.NoError(t, b.Err())

	kinds := []string{}
	for _, c := range b.Contents() {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []string{KindHeading, KindFigure, KindCaption, KindFigure}, kinds)

	parts := build(t, b)
	assert.Contains(t, parts, "word/media/image1.png")
	assert.Contains(t, parts, "word/media/image2.png")
	assert.Contains(t, parts["word/_rels/document.xml.rels"], `Target="media/image2.png"`)
	doc := parts["word/document.xml"]
	assert.Len(t, find(t, doc, "extent", map[string]string{"cx": "5029200", "cy": "2514600"}), 1, "5.5in wide keeps 2:1 aspect")
	assert.Len(t, find(t, doc, "blip", nil), 2)
}

func TestFigure_NotPNG(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).Figure([]byte("not an image"), "x", "")
	assert.Error(t, b.Err())
	assert.Zero(t, b.Len())
}

func TestInsertAt(t *testing.T) {
	newDoc := func() *Builder {
		return New(types.DocumentConfig{}, nil).Heading("Uno", 1).Paragraph("p1").Heading("Dos", 1)
	}

	b := newDoc().InsertAt("start", func(c *Builder) { c.TableOfContents("").PageBreak() })
	assert.Equal(t, KindHeading, b.Contents()[0].Kind)
	assert.Equal(t, KindTOC, b.Contents()[1].Kind)
	assert.Equal(t, KindPageBreak, b.Contents()[2].Kind)
	assert.Equal(t, 6, b.Len())

	b = newDoc().InsertAt("index:2", func(c *Builder) { c.Paragraph("inserted") })
	assert.Equal(t, []int{2}, b.Find("INSERTED"))

	b = newDoc().InsertAt("end", func(c *Builder) { c.Paragraph("last") })
	assert.Equal(t, []int{3}, b.Find("last"))

	b = newDoc().InsertAt("index:9", func(c *Builder) { c.Paragraph("x") })
	assert.ErrorIs(t, b.Err(), ErrInvalidPosition)
	b = newDoc().InsertAt("middle", func(c *Builder) {})
	assert.ErrorIs(t, b.Err(), ErrInvalidPosition)
}

func TestNumberHeadings(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).
		TableOfContents("").
		Heading("Intro", 1).
		Heading("Alcance", 2).
		Heading("Detalle", 3).
		Heading("Método", 2).
		Heading("Resultados", 1).
		Heading("Nota", 4).
		Heading("Datos", 2).
		NumberHeadings().
		NumberHeadings()

	var got []string
	for _, bl := range b.blocks {
		if h, ok := bl.(*headingBlock); ok {
			got = append(got, h.text)
		}
	}
	assert.Equal(t, []string{"Índice", "1. Intro", "1.1 Alcance", "1.1.1 Detalle", "1.2 Método", "2. Resultados", "Nota", "2.1 Datos"}, got)
}

func TestFindAndHistory(t *testing.T) {
	b := New(types.DocumentConfig{}, nil).
		Heading("Ventas", 1).
		Paragraph("Las ventas crecieron.").
		Table(salesTable(t), TableOptions{}).
		Bullets([]string{"ventas norte"}, 1)

	assert.Equal(t, []int{0, 1, 3}, b.Find("VENTAS"))
	h := b.History()
	require.Len(t, h, 4)
	assert.Contains(t, h[0], "heading (level 1)")
	assert.Contains(t, h[2], "table: 4 rows x 3 columns")
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "informe.docx")
	require.NoError(t, New(types.DocumentConfig{}, nil).Heading("Hola", 1).Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, text(t, unpack(t, data)["word/document.xml"]), "HOLA")
}

func TestConfigOverrides(t *testing.T) {
	cfg := types.DocumentConfig{HeadingFont: "Georgia", TitleColor: "112233", TableWidth: 3}
	b := New(cfg, nil).Heading("T", 1).Table(salesTable(t), TableOptions{})
	doc := build(t, b)["word/document.xml"]
	assert.NotEmpty(t, find(t, doc, "rFonts", map[string]string{"ascii": "Georgia"}))
	assert.NotEmpty(t, find(t, doc, "color", map[string]string{"val": "112233"}))
	assert.Len(t, find(t, doc, "gridCol", map[string]string{"w": "1440"}), 3)
}

func TestLoadSpecAndApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ventas.csv"), []byte("Region,Margin\nNorth,0.2\nNorth,0.05\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chart.png"), samplePNG(t, 4, 3), 0o644))
	spec := `
output: informe.docx
number_headings: true
config:
  heading_font: Georgia
blocks:
  - type: toc
  - type: notice
  - type: page_break
  - type: heading
    text: Resumen
  - type: paragraph
    text: Texto.
  - type: bullets
    items: [a, b]
  - type: table
    csv: ventas.csv
    title: Ventas
    merge: [Region]
    colors:
      - column: Margin
        bands: [{min: 0, max: 0.1, color: FFC7CE}]
  - type: figure
    png: chart.png
    caption: Fuente
`
	path := filepath.Join(dir, "doc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(spec), 0o644))

	s, err := LoadSpec(path, types.DocumentConfig{BodyFont: "Arial"})
	require.NoError(t, err)
	assert.Equal(t, "informe.docx", s.Output)
	assert.Equal(t, "Georgia", s.Config.HeadingFont)
	assert.Equal(t, "Arial", s.Config.BodyFont)

	b := New(s.Config, nil)
	require.NoError(t, Apply(b, s))
	require.NoError(t, b.Err())
	assert.Equal(t, []int{4}, b.Find("1. Resumen"))

	tb := b.blocks[9].(*tableBlock)
	assert.Equal(t, mergeRestart, tb.merge[0][0])
	assert.Equal(t, "FFC7CE", tb.fill[1][1])
	build(t, b)
}

func TestApply_UnknownBlock(t *testing.T) {
	err := Apply(New(types.DocumentConfig{}, nil), &Spec{Blocks: []SpecBlock{{Type: "chart"}}})
	assert.ErrorContains(t, err, `unknown block type "chart"`)
}
