// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package docx builds Word documents with a fluent API. Every call appends a
// block and records a line in the builder's history; failures are collected
// and reported by Err and Save rather than interrupting the chain.
package docx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/png" // register PNG for DecodeConfig
	"strconv"
	"strings"

	"github.com/gomutex/godocx/wml/stypes"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/history"
	"github.com/pdiddy/report-engine/internal/table"
	"github.com/pdiddy/report-engine/pkg/types"
)

// ErrInvalidPosition is returned for InsertAt positions other than start,
// end or index:<n>.
var ErrInvalidPosition = errors.New("position must be start, end or index:<n>")

// Builder assembles a document. It is not safe for concurrent use.
type Builder struct {
	cfg     types.DocumentConfig
	logger  *zap.Logger
	blocks  []block
	history *history.Log
	errs    []error
}

// New returns an empty builder. Zero config fields take defaults.
func New(cfg types.DocumentConfig, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg.Defaults(), logger: logger, history: &history.Log{}}
}

// child returns an empty builder that shares configuration and history.
func (b *Builder) child() *Builder {
	return &Builder{cfg: b.cfg, logger: b.logger, history: b.history}
}

func (b *Builder) add(bl block) { b.blocks = append(b.blocks, bl) }

func (b *Builder) fail(err error) {
	b.errs = append(b.errs, err)
	b.history.Add("error: %v", err)
	b.logger.Warn("document operation failed", zap.Error(err))
}

// Heading adds a heading. Levels 1 to 3 are outline headings that appear in
// the table of contents; deeper levels render as bold underlined text.
func (b *Builder) Heading(text string, level int) *Builder {
	if level < 1 {
		level = 1
	}
	b.add(&headingBlock{text: text, level: level})
	b.history.Add("heading (level %d): %s", level, summarize(text))
	return b
}

// Paragraph adds justified body text.
func (b *Builder) Paragraph(text string) *Builder {
	b.add(&textBlock{
		kind: KindParagraph,
		text: text,
		pp:   paraProps{align: stypes.JustificationBoth},
		rp:   runProps{font: b.cfg.BodyFont, size: b.cfg.BodySize},
	})
	b.history.Add("paragraph: %s", summarize(text))
	return b
}

// Bullets adds one "- " prefixed paragraph per item, indented by level.
func (b *Builder) Bullets(items []string, level int) *Builder {
	if level < 1 {
		level = 1
	}
	for _, item := range items {
		b.add(&textBlock{
			kind: KindBullet,
			text: "- " + item,
			pp: paraProps{
				align:  stypes.JustificationLeft,
				before: b.cfg.Spacing,
				after:  b.cfg.Spacing,
				indent: b.cfg.BulletIndent * float64(level-1),
			},
			rp: runProps{font: b.cfg.BodyFont, size: b.cfg.BodySize},
		})
	}
	b.history.Add("bullets (level %d): %d items", level, len(items))
	return b
}

// Table adds t with a header row. An empty table is noted in the history
// and skipped.
func (b *Builder) Table(t *table.Table, opts TableOptions) *Builder {
	if t.Empty() {
		b.history.Add("table skipped, no data: %s", summarize(opts.Title))
		return b
	}
	tb, err := newTableBlock(t, opts)
	if err != nil {
		b.fail(fmt.Errorf("table %q: %w", opts.Title, err))
		return b
	}
	if opts.Title != "" {
		b.add(&headingBlock{text: opts.Title, level: 3, unnumbered: true})
	}
	b.add(tb)
	b.history.Add("table: %d rows x %d columns %s", t.Len(), len(t.Columns), summarize(opts.Title))
	return b
}

// Figure adds a centered PNG image, with an optional level-3 title above and
// a caption below.
func (b *Builder) Figure(png []byte, title, caption string) *Builder {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		b.fail(fmt.Errorf("figure %q: %w", title, err))
		return b
	}
	if format != "png" {
		b.fail(fmt.Errorf("figure %q: %s image, want png", title, format))
		return b
	}
	if title != "" {
		b.add(&headingBlock{text: title, level: 3, unnumbered: true})
	}
	b.add(&figureBlock{data: png, width: cfg.Width, height: cfg.Height, widthIn: b.cfg.FigureWidth})
	if caption != "" {
		b.add(&textBlock{
			kind: KindCaption,
			text: caption,
			pp:   paraProps{align: stypes.JustificationCenter},
			rp:   runProps{font: b.cfg.BodyFont, size: b.cfg.CaptionSize, bold: true, italic: true},
		})
	}
	b.history.Add("figure: %dx%d %s", cfg.Width, cfg.Height, summarize(title))
	return b
}

// PageBreak starts a new page.
func (b *Builder) PageBreak() *Builder {
	b.add(pageBreakBlock{})
	b.history.Add("page break")
	return b
}

// TableOfContents adds a level-1 title and a TOC field covering heading
// levels 1 to 3. An empty title uses the configured one.
func (b *Builder) TableOfContents(title string) *Builder {
	if title == "" {
		title = b.cfg.TOCTitle
	}
	b.add(&headingBlock{text: title, level: 1, unnumbered: true})
	b.add(tocBlock{})
	b.history.Add("table of contents: %s", title)
	return b
}

// UpdateNotice asks the reader to refresh fields on open.
func (b *Builder) UpdateNotice() *Builder {
	b.add(&textBlock{
		kind: KindNotice,
		text: b.cfg.NoticeText,
		pp:   paraProps{before: 12},
		rp:   runProps{italic: true, color: "800000"},
	})
	b.history.Add("update notice")
	return b
}

// InsertAt builds content with fn on an empty builder and splices its blocks
// at pos: "start", "end" or "index:<n>" where n is a block index as reported
// by Contents.
func (b *Builder) InsertAt(pos string, fn func(*Builder)) *Builder {
	at, err := b.position(pos)
	if err != nil {
		b.fail(err)
		return b
	}
	c := b.child()
	fn(c)
	b.errs = append(b.errs, c.errs...)

	blocks := make([]block, 0, len(b.blocks)+len(c.blocks))
	blocks = append(blocks, b.blocks[:at]...)
	blocks = append(blocks, c.blocks...)
	blocks = append(blocks, b.blocks[at:]...)
	b.blocks = blocks
	b.history.Add("inserted %d blocks at %s", len(c.blocks), pos)
	return b
}

func (b *Builder) position(pos string) (int, error) {
	p := strings.ToLower(strings.TrimSpace(pos))
	switch p {
	case "start", "inicio":
		return 0, nil
	case "end", "final", "":
		return len(b.blocks), nil
	}
	if n, ok := strings.CutPrefix(p, "index:"); ok {
		i, err := strconv.Atoi(n)
		if err != nil || i < 0 || i > len(b.blocks) {
			return 0, fmt.Errorf("%w: index %q out of range 0..%d", ErrInvalidPosition, n, len(b.blocks))
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: got %q", ErrInvalidPosition, pos)
}

// NumberHeadings prefixes headings of levels 1 to 3 with their outline
// number (1. / 1.1 / 1.1.1). Headings that already carry their number are
// left alone, so calling it twice is harmless. Table of contents, table and
// figure titles are not numbered.
func (b *Builder) NumberHeadings() *Builder {
	var counter [4]int
	renamed := 0
	for _, bl := range b.blocks {
		h, ok := bl.(*headingBlock)
		if !ok || h.unnumbered || h.level > 3 {
			continue
		}
		counter[h.level]++
		for deeper := h.level + 1; deeper <= 3; deeper++ {
			counter[deeper] = 0
		}
		var num string
		switch h.level {
		case 1:
			num = fmt.Sprintf("%d.", counter[1])
		case 2:
			num = fmt.Sprintf("%d.%d", counter[1], counter[2])
		default:
			num = fmt.Sprintf("%d.%d.%d", counter[1], counter[2], counter[3])
		}
		text := strings.TrimSpace(h.text)
		if text != num && !strings.HasPrefix(text, num+" ") {
			h.text = num + " " + text
			renamed++
		}
	}
	b.history.Add("numbered %d headings", renamed)
	return b
}

// BlockInfo describes one block of the document body.
type BlockInfo struct {
	Index   int
	Kind    string
	Summary string
}

// Contents lists the body blocks in order.
func (b *Builder) Contents() []BlockInfo {
	out := make([]BlockInfo, len(b.blocks))
	for i, bl := range b.blocks {
		out[i] = BlockInfo{Index: i, Kind: bl.Kind(), Summary: bl.Summary()}
	}
	return out
}

// Find returns the indices of text blocks containing s, ignoring case.
func (b *Builder) Find(s string) []int {
	needle := strings.ToLower(s)
	var out []int
	for i, bl := range b.blocks {
		var text string
		switch x := bl.(type) {
		case *headingBlock:
			text = x.text
		case *textBlock:
			text = x.text
		default:
			continue
		}
		if strings.Contains(strings.ToLower(text), needle) {
			out = append(out, i)
		}
	}
	return out
}

// History returns the recorded operations in order.
func (b *Builder) History() []string { return b.history.Lines() }

// Log exposes the history log, for printing with WriteTo.
func (b *Builder) Log() *history.Log { return b.history }

// Err returns the collected errors, or nil.
func (b *Builder) Err() error { return errors.Join(b.errs...) }

// Len returns the number of body blocks.
func (b *Builder) Len() int { return len(b.blocks) }
