// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docx

import (
	"strings"

	gdx "github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"
)

// paraProps are the paragraph-level properties a block may set.
type paraProps struct {
	style  string // paragraph style id, e.g. Heading1
	align  stypes.Justification
	before float64
	after  float64
	indent float64 // left indent, points
	border *border
}

// border is a bottom paragraph border.
type border struct {
	size  int // eighths of a point
	color string
}

// runProps are the character properties of a run.
type runProps struct {
	font      string
	size      float64 // points
	bold      bool
	italic    bool
	underline bool
	color     string
}

func twips(points float64) uint64 { return uint64(points*20 + 0.5) }

func inchTwips(in float64) int { return int(in*1440 + 0.5) }

func halfPoints(points float64) uint64 { return uint64(points*2 + 0.5) }

func (p paraProps) ct() *ctypes.ParagraphProp {
	pp := ctypes.DefaultParaProperty()
	if p.style != "" {
		pp.Style = ctypes.NewParagraphStyle(p.style)
	}
	if p.border != nil {
		pp.Border = &ctypes.ParaBorder{
			Bottom: ctypes.NewCellBorder(stypes.BorderStyleSingle, p.border.color, "1", p.border.size),
		}
	}
	if p.before > 0 || p.after > 0 {
		pp.Spacing = ctypes.NewParagraphSpacing(twips(p.before), twips(p.after))
	}
	if p.indent > 0 {
		left := int(twips(p.indent))
		pp.Indent = &ctypes.Indent{Left: &left}
	}
	if p.align != "" {
		pp.Justification = ctypes.NewGenSingleStrVal(p.align)
	}
	return pp
}

func (r runProps) ct() *ctypes.RunProperty {
	rp := &ctypes.RunProperty{}
	if r.font != "" {
		rp.Fonts = &ctypes.RunFonts{Ascii: r.font, HAnsi: r.font, CS: r.font}
	}
	if r.bold {
		rp.Bold = &ctypes.OnOff{}
	}
	if r.italic {
		rp.Italic = &ctypes.OnOff{}
	}
	if r.color != "" {
		rp.Color = ctypes.NewColor(r.color)
	}
	if r.size > 0 {
		hp := halfPoints(r.size)
		rp.Size = ctypes.NewFontSize(hp)
		rp.SizeCs = ctypes.NewFontSizeCS(hp)
	}
	if r.underline {
		rp.Underline = ctypes.NewGenSingleStrVal(stypes.UnderlineSingle)
	}
	return rp
}

// newRun holds text in one run; newlines become line breaks.
func newRun(rp runProps, text string) *ctypes.Run {
	run := &ctypes.Run{Property: rp.ct()}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			run.Children = append(run.Children, ctypes.RunChild{Break: &ctypes.Break{}})
		}
		run.Children = append(run.Children, ctypes.RunChild{Text: ctypes.TextFromString(line)})
	}
	return run
}

// fill sets the properties of p and gives it a single run holding text.
func fill(p *gdx.Paragraph, pp paraProps, rp runProps, text string) {
	ct := p.GetCT()
	ct.Property = pp.ct()
	if text != "" {
		ct.Children = append(ct.Children, ctypes.ParagraphChild{Run: newRun(rp, text)})
	}
}
