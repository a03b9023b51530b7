package parser

import (
	"fmt"
	"os"
	"path/filepath"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/manualgest/internal/layout"
)

// A4 portrait, used when no MediaBox can be found.
const (
	defaultPageWidth  = 595.0
	defaultPageHeight = 842.0
	maxTreeDepth      = 32
)

// PDFParser reads text geometry and image placements with ledongthuc/pdf
// and image bytes with pdfcpu.
type PDFParser struct{}

func (p *PDFParser) Open(path string) (layout.Document, error) {
	f, reader, err := openPDF(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &pdfDocument{
		name:   filepath.Base(path),
		file:   f,
		reader: reader,
		images: newPDFImages(path),
	}, nil
}

func openPDF(path string) (f *os.File, r *pdflib.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if f != nil {
				f.Close()
			}
			f, r, err = nil, nil, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdflib.Open(path)
}

type pdfDocument struct {
	name   string
	file   *os.File
	reader *pdflib.Reader
	images *pdfImages
}

func (d *pdfDocument) Name() string  { return d.name }
func (d *pdfDocument) NumPages() int { return d.reader.NumPage() }
func (d *pdfDocument) Close() error  { return d.file.Close() }

// Page lays out page n. ledongthuc/pdf panics on malformed streams; that
// is reported as an error for this page only.
func (d *pdfDocument) Page(n int) (pg *layout.Page, err error) {
	if n < 1 || n > d.NumPages() {
		return nil, fmt.Errorf("page %d out of range [1,%d]", n, d.NumPages())
	}
	defer func() {
		if rec := recover(); rec != nil {
			pg, err = nil, fmt.Errorf("page %d: malformed content: %v", n, rec)
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d: missing page object", n)
	}
	width, height := mediaBox(page.V)
	content := page.Content()

	glyphs := toGlyphs(content.Text, height)
	tables := findTables(content.Rect, glyphs, width, height)

	free := make([]glyph, 0, len(glyphs))
	for _, g := range glyphs {
		if !g.taken {
			free = append(free, g)
		}
	}

	out := &layout.Page{
		Number: n,
		Width:  width,
		Height: height,
		Blocks: groupBlocks(groupLines(free)),
		Tables: tables,
	}
	for i, pl := range placeImages(page, height) {
		out.Images = append(out.Images, layout.Image{
			BBox:  pl.box,
			Index: i,
			Name:  pl.name,
			Load:  d.images.loader(n, pl.name),
		})
	}
	return out, nil
}

// mediaBox returns the page size, following inherited MediaBox entries.
func mediaBox(page pdflib.Value) (width, height float64) {
	v := page
	for range maxTreeDepth {
		if v.IsNull() {
			break
		}
		if mb := v.Key("MediaBox"); mb.Kind() == pdflib.Array && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageWidth, defaultPageHeight
}
