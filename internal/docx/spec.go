// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/internal/table"
	"github.com/pdiddy/report-engine/pkg/types"
)

// Spec is a document described in YAML.
//
//	output: informe.docx
//	number_headings: true
//	blocks:
//	  - {type: toc}
//	  - {type: heading, text: Resumen, level: 1}
//	  - {type: table, csv: ventas.csv, title: Ventas, merge: [Region]}
type Spec struct {
	Output         string               `yaml:"output"`
	NumberHeadings bool                 `yaml:"number_headings"`
	Config         types.DocumentConfig `yaml:"config"`
	Blocks         []SpecBlock          `yaml:"blocks"`

	// dir resolves relative csv and png paths.
	dir string
}

// SpecBlock is one entry of Spec.Blocks. Type selects which fields apply.
type SpecBlock struct {
	Type    string      `yaml:"type"`
	Text    string      `yaml:"text,omitempty"`
	Level   int         `yaml:"level,omitempty"`
	Items   []string    `yaml:"items,omitempty"`
	CSV     string      `yaml:"csv,omitempty"`
	PNG     string      `yaml:"png,omitempty"`
	Title   string      `yaml:"title,omitempty"`
	Caption string      `yaml:"caption,omitempty"`
	Merge   []string    `yaml:"merge,omitempty"`
	Colors  []SpecColor `yaml:"colors,omitempty"`
}

// SpecColor is a colour rule: Values maps cell text to a colour, Bands
// shade numeric ranges.
type SpecColor struct {
	Column string            `yaml:"column"`
	Values map[string]string `yaml:"values,omitempty"`
	Bands  []Band            `yaml:"bands,omitempty"`
}

func (c SpecColor) rule() ColorRule {
	if len(c.Bands) > 0 {
		return NumericBands{Column: c.Column, Bands: c.Bands}
	}
	return ValueColors{Column: c.Column, Colors: c.Values}
}

// LoadSpec reads a document spec from a YAML file. Settings under config
// override those of base.
func LoadSpec(path string, base types.DocumentConfig) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document spec: %w", err)
	}
	spec := Spec{Config: base}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing document spec: %w", err)
	}
	spec.dir = filepath.Dir(path)
	return &spec, nil
}

func (s *Spec) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || s.dir == "" {
		return p
	}
	return filepath.Join(s.dir, p)
}

// Apply adds the spec's blocks to b in order. It stops at the first block
// that cannot be read or has an unknown type; builder errors are left for
// b.Err.
func Apply(b *Builder, spec *Spec) error {
	for i, blk := range spec.Blocks {
		if err := applyBlock(b, spec, blk); err != nil {
			return fmt.Errorf("block %d (%s): %w", i, blk.Type, err)
		}
	}
	if spec.NumberHeadings {
		b.NumberHeadings()
	}
	return nil
}

func applyBlock(b *Builder, spec *Spec, blk SpecBlock) error {
	switch strings.ToLower(blk.Type) {
	case "heading":
		level := blk.Level
		if level == 0 {
			level = 1
		}
		b.Heading(blk.Text, level)
	case "paragraph":
		b.Paragraph(blk.Text)
	case "bullets":
		level := blk.Level
		if level == 0 {
			level = 1
		}
		b.Bullets(blk.Items, level)
	case "table":
		t, err := readCSVFile(spec.resolve(blk.CSV))
		if err != nil {
			return err
		}
		opts := TableOptions{Title: blk.Title, MergeColumns: blk.Merge}
		for _, c := range blk.Colors {
			opts.Colors = append(opts.Colors, c.rule())
		}
		b.Table(t, opts)
	case "figure":
		png, err := os.ReadFile(spec.resolve(blk.PNG))
		if err != nil {
			return fmt.Errorf("reading figure: %w", err)
		}
		b.Figure(png, blk.Title, blk.Caption)
	case "page_break":
		b.PageBreak()
	case "toc":
		b.TableOfContents(blk.Title)
	case "notice":
		b.UpdateNotice()
	default:
		return fmt.Errorf("unknown block type %q", blk.Type)
	}
	return nil
}

func readCSVFile(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening table data: %w", err)
	}
	defer f.Close()
	t, err := table.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}
