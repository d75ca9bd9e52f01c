// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx/common/units"
	gdx "github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Block kinds reported by Contents.
const (
	KindHeading   = "heading"
	KindParagraph = "paragraph"
	KindBullet    = "bullet"
	KindCaption   = "caption"
	KindNotice    = "notice"
	KindTable     = "table"
	KindFigure    = "figure"
	KindPageBreak = "page_break"
	KindTOC       = "toc"
)

// block is one body element of the document.
type block interface {
	Kind() string
	Summary() string
	render(r *renderer) error
}

// renderer appends blocks to a godocx document.
type renderer struct {
	doc *gdx.RootDoc
	cfg types.DocumentConfig
	// fields is set once a field instruction has been written.
	fields bool
	tmp    string
	images int
}

// imageFile writes data where godocx can load it from.
func (r *renderer) imageFile(data []byte) (string, error) {
	if r.tmp == "" {
		dir, err := os.MkdirTemp("", "report-docx-")
		if err != nil {
			return "", fmt.Errorf("creating image directory: %w", err)
		}
		r.tmp = dir
	}
	r.images++
	path := filepath.Join(r.tmp, fmt.Sprintf("figure%d.png", r.images))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("staging image: %w", err)
	}
	return path, nil
}

func (r *renderer) close() {
	if r.tmp != "" {
		os.RemoveAll(r.tmp)
	}
}

func (r *renderer) paragraph(pp paraProps, rp runProps, text string) {
	fill(r.doc.AddEmptyParagraph(), pp, rp, text)
}

func summarize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return s
}

type headingBlock struct {
	text  string
	level int
	// unnumbered headings are skipped by NumberHeadings.
	unnumbered bool
}

func (h *headingBlock) Kind() string    { return KindHeading }
func (h *headingBlock) Summary() string { return fmt.Sprintf("H%d %s", h.level, summarize(h.text)) }

func (h *headingBlock) render(r *renderer) error {
	c := r.cfg
	switch h.level {
	case 1:
		r.paragraph(
			paraProps{style: "Heading1", align: stypes.JustificationCenter, before: 18, after: 12, border: &border{size: 8, color: c.TitleColor}},
			runProps{font: c.HeadingFont, size: 14, bold: true, color: c.TitleColor},
			strings.ToUpper(h.text))
	case 2:
		r.paragraph(
			paraProps{style: "Heading2", align: stypes.JustificationLeft, before: 14, after: 8, border: &border{size: 6, color: "D3D3D3"}},
			runProps{font: c.HeadingFont, size: 12, bold: true, color: c.SubtitleColor},
			h.text)
	case 3:
		r.paragraph(
			paraProps{style: "Heading3", align: stypes.JustificationLeft, before: 10, after: 4},
			runProps{font: c.HeadingFont, size: 11, italic: true, color: c.SubtitleColor},
			h.text)
	default:
		r.paragraph(
			paraProps{align: stypes.JustificationBoth},
			runProps{font: c.BodyFont, size: c.BodySize, bold: true, underline: true},
			h.text)
	}
	return nil
}

// textBlock is a single-run paragraph: body text, bullet, caption or notice.
type textBlock struct {
	kind string
	text string
	pp   paraProps
	rp   runProps
}

func (t *textBlock) Kind() string    { return t.kind }
func (t *textBlock) Summary() string { return summarize(t.text) }
func (t *textBlock) render(r *renderer) error {
	r.paragraph(t.pp, t.rp, t.text)
	return nil
}

type pageBreakBlock struct{}

func (pageBreakBlock) Kind() string    { return KindPageBreak }
func (pageBreakBlock) Summary() string { return "page break" }
func (pageBreakBlock) render(r *renderer) error {
	r.doc.AddPageBreak()
	return nil
}

// tocInstruction builds a table of contents from heading levels 1-3 with
// hyperlinked entries.
const tocInstruction = `TOC \o "1-3" \h \z \u`

type tocBlock struct{}

func (tocBlock) Kind() string    { return KindTOC }
func (tocBlock) Summary() string { return "table of contents field" }

// render writes the field instruction run. The field characters around it
// are added by completeFields once the package is written.
func (tocBlock) render(r *renderer) error {
	p := r.doc.AddEmptyParagraph()
	ct := p.GetCT()
	ct.Property = paraProps{align: stypes.JustificationLeft, after: 6}.ct()
	ct.Children = append(ct.Children, ctypes.ParagraphChild{Run: &ctypes.Run{
		Children: []ctypes.RunChild{{InstrText: ctypes.TextFromString(" " + tocInstruction + " ")}},
	}})
	r.fields = true
	return nil
}

type figureBlock struct {
	data          []byte
	width, height int // pixels
	widthIn       float64
}

func (f *figureBlock) Kind() string { return KindFigure }
func (f *figureBlock) Summary() string {
	return fmt.Sprintf("figure %dx%d px", f.width, f.height)
}

// render scales the image to the configured width, keeping its aspect.
func (f *figureBlock) render(r *renderer) error {
	path, err := r.imageFile(f.data)
	if err != nil {
		return err
	}
	h := f.widthIn
	if f.width > 0 {
		h = f.widthIn * float64(f.height) / float64(f.width)
	}
	pic, err := r.doc.AddPicture(path, units.Inch(f.widthIn), units.Inch(h))
	if err != nil {
		return fmt.Errorf("adding picture: %w", err)
	}
	pic.Para.Justification(stypes.JustificationCenter)
	return nil
}
