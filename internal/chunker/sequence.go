package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/manualgest/internal/layout"
)

// ElementKind tags a layout element.
type ElementKind int

const (
	KindText ElementKind = iota
	KindImage
	KindTable
)

func (k ElementKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindTable:
		return "table"
	}
	return "unknown"
}

// Element is one item of a page's ordered layout stream. Exactly one of
// Text, Image, Table is set, according to Kind.
type Element struct {
	Kind  ElementKind
	Top   float64
	Text  *layout.TextBlock
	Image *layout.Image
	Table *layout.Table
}

// Sequence returns the page's content-area elements ordered by top edge.
// Ties keep extraction order: text, then images, then tables.
func Sequence(p *layout.Page, band layout.Band) []Element {
	var els []Element
	for i := range p.Blocks {
		b := &p.Blocks[i]
		if band.Contains(b.BBox) {
			els = append(els, Element{Kind: KindText, Top: b.BBox.Top(), Text: b})
		}
	}
	for i := range p.Images {
		img := &p.Images[i]
		if band.Contains(img.BBox) {
			els = append(els, Element{Kind: KindImage, Top: img.BBox.Top(), Image: img})
		}
	}
	for i := range p.Tables {
		t := &p.Tables[i]
		if band.Contains(t.BBox) {
			els = append(els, Element{Kind: KindTable, Top: t.BBox.Top(), Table: t})
		}
	}
	sort.SliceStable(els, func(i, j int) bool { return els[i].Top < els[j].Top })
	return els
}

// metadataMinLen is the length a first-page block must exceed to count as
// a title candidate.
const metadataMinLen = 10

// firstPageMetadata picks title and subtitle from the first page's
// content-area blocks in reading order.
func firstPageMetadata(p *layout.Page, band layout.Band) (title, subtitle *string) {
	var blocks []layout.TextBlock
	for _, b := range p.Blocks {
		if band.Contains(b.BBox) {
			blocks = append(blocks, b)
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].BBox.Y0 != blocks[j].BBox.Y0 {
			return blocks[i].BBox.Y0 < blocks[j].BBox.Y0
		}
		return blocks[i].BBox.X0 < blocks[j].BBox.X0
	})

	var found []string
	for _, b := range blocks {
		t := strings.TrimSpace(b.Text)
		if utf8.RuneCountInString(t) > metadataMinLen {
			found = append(found, t)
			if len(found) == 2 {
				break
			}
		}
	}
	if len(found) > 0 {
		title = &found[0]
	}
	if len(found) > 1 {
		subtitle = &found[1]
	}
	return title, subtitle
}
