// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/wml/ctypes"
	"go.uber.org/zap"
)

const (
	documentPart = "word/document.xml"
	settingsPart = "word/settings.xml"
)

// Complex field characters. godocx runs carry instrText but not fldChar, so
// they are spliced around each instruction run after the package is written.
const (
	fieldBegin    = `<w:r><w:fldChar w:fldCharType="begin"></w:fldChar></w:r>`
	fieldSeparate = `<w:r><w:fldChar w:fldCharType="separate"></w:fldChar></w:r>`
	fieldEnd      = `<w:r><w:fldChar w:fldCharType="end"></w:fldChar></w:r>`
)

// updateFields asks Word to refresh fields, the TOC among them, on open.
const updateFields = `<w:updateFields w:val="true"/>`

// render lays the blocks out on a fresh document and returns the package.
func (b *Builder) render() ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	r := &renderer{doc: doc, cfg: b.cfg}
	defer r.close()

	for i, bl := range b.blocks {
		if err := bl.render(r); err != nil {
			return nil, fmt.Errorf("block %d (%s): %w", i, bl.Kind(), err)
		}
	}

	body := doc.Document.Body
	if body.SectPr == nil {
		body.SectPr = ctypes.NewSectionProper()
	}
	w, h := uint64(inchTwips(b.cfg.PageWidth)), uint64(inchTwips(b.cfg.PageHeight))
	m, edge, gutter := inchTwips(b.cfg.Margin), 720, 0
	body.SectPr.PageSize = &ctypes.PageSize{Width: &w, Height: &h}
	body.SectPr.PageMargin = &ctypes.PageMargin{
		Top: &m, Right: &m, Bottom: &m, Left: &m,
		Header: &edge, Footer: &edge, Gutter: &gutter,
	}

	if v, ok := doc.FileMap.Load(settingsPart); ok {
		doc.FileMap.Store(settingsPart, withUpdateFields(v.([]byte)))
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing package: %w", err)
	}
	if !r.fields {
		return buf.Bytes(), nil
	}
	return completeFields(buf.Bytes())
}

// withUpdateFields adds the updateFields flag ahead of w:compat, where the
// settings schema expects it.
func withUpdateFields(settings []byte) []byte {
	if bytes.Contains(settings, []byte("<w:updateFields")) {
		return settings
	}
	at := bytes.Index(settings, []byte("<w:compat>"))
	if at < 0 {
		at = bytes.LastIndex(settings, []byte("</w:settings>"))
	}
	if at < 0 {
		return settings
	}
	out := make([]byte, 0, len(settings)+len(updateFields))
	out = append(out, settings[:at]...)
	out = append(out, updateFields...)
	return append(out, settings[at:]...)
}

// completeFields rewrites the package with field characters around every
// instrText run of the document part.
func completeFields(pkg []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		return nil, fmt.Errorf("reading package: %w", err)
	}
	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		if f.Name == documentPart {
			data = bytes.ReplaceAll(data, []byte("<w:r><w:instrText"), []byte(fieldBegin+"<w:r><w:instrText"))
			data = bytes.ReplaceAll(data, []byte("</w:instrText></w:r>"), []byte("</w:instrText></w:r>"+fieldSeparate+fieldEnd))
		}
		hdr := &zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", f.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing package: %w", err)
	}
	return out.Bytes(), nil
}

// WriteTo writes the document as a .docx package. It fails without writing
// if any builder operation failed.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	if err := b.Err(); err != nil {
		return 0, fmt.Errorf("document has errors: %w", err)
	}
	data, err := b.render()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Save writes the document to path, creating parent directories.
func (b *Builder) Save(path string) error {
	if err := b.Err(); err != nil {
		return fmt.Errorf("document has errors: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	b.history.Add("saved %s", path)
	b.logger.Info("document saved", zap.String("path", path), zap.Int("blocks", len(b.blocks)))
	return nil
}
