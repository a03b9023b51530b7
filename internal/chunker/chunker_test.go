package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/manualgest/internal/layout"
)

type fakeCaptioner struct {
	caption string
	err     error
	calls   int
	prompt  string
	mime    string
}

func (f *fakeCaptioner) Caption(_ context.Context, _ []byte, mimeType, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	f.mime = mimeType
	return f.caption, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func block(y float64, text string) layout.TextBlock {
	return layout.TextBlock{BBox: layout.BBox{X0: 50, Y0: y, X1: 500, Y1: y + 12}, Text: text}
}

func pngImage(y float64, index int) layout.Image {
	return layout.Image{
		BBox:  layout.BBox{X0: 100, Y0: y, X1: 300, Y1: y + 100},
		Index: index,
		Name:  "Im0",
		Load: func() (layout.Blob, error) {
			return layout.Blob{Data: []byte("\x89PNG fake"), Ext: "png", MIMEType: "image/png"}, nil
		},
	}
}

func newTestExtractor(t *testing.T, c Captioner) (*Extractor, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ImageDir = dir
	return NewExtractor(cfg, c, quietLogger()), dir
}

func extract(t *testing.T, e *Extractor, pages ...*layout.Page) *Result {
	t.Helper()
	for i, p := range pages {
		p.Number = i + 1
	}
	res, err := e.Extract(context.Background(), &layout.Memory{DocName: "/data/manuals/manual.pdf", Pages: pages})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func chunksOfType(chunks []Chunk, typ ChunkType) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func TestExtract_TitleFromFirstPage(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{block(100, "Police Training Manual")}})

	if res.Title == nil || *res.Title != "Police Training Manual" {
		t.Fatalf("expected title %q, got %v", "Police Training Manual", res.Title)
	}
	if res.Subtitle != nil {
		t.Errorf("expected nil subtitle, got %q", *res.Subtitle)
	}
}

func TestExtract_SubtitleAndShortBlocksSkipped(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{
		block(300, "Version 25.0 March 2025"),
		block(20, "Running header outside band"),
		block(100, "Short"),
		block(150, "Connect Investigation Manual"),
	}})

	if res.Title == nil || *res.Title != "Connect Investigation Manual" {
		t.Fatalf("expected title from first qualifying block, got %v", res.Title)
	}
	if res.Subtitle == nil || *res.Subtitle != "Version 25.0 March 2025" {
		t.Fatalf("expected subtitle, got %v", res.Subtitle)
	}
}

func TestExtract_NoTitle(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{block(100, "tiny")}})
	if res.Title != nil || res.Subtitle != nil {
		t.Errorf("expected no metadata, got title=%v subtitle=%v", res.Title, res.Subtitle)
	}
}

func TestExtract_HeaderBlockWithBody(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	pages := make([]*layout.Page, 10)
	for i := range pages {
		pages[i] = &layout.Page{}
	}
	pages[9].Blocks = []layout.TextBlock{block(200, "3.2 Use of Force\nOfficers must justify any force used.")}

	res := extract(t, e, pages...)
	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	s := sections[0]
	if s.PageNumber != 10 {
		t.Errorf("expected page 10, got %d", s.PageNumber)
	}
	if s.Section.SectionNumber != "3.2" || s.Section.SectionTitle != "Use of Force" {
		t.Errorf("unexpected header %+v", s.Section)
	}
	if s.Section.ParentSectionNumber == nil || *s.Section.ParentSectionNumber != "3" {
		t.Errorf("expected parent 3, got %v", s.Section.ParentSectionNumber)
	}
	if s.Section.ParentSectionTitle != nil {
		t.Errorf("expected nil parent title, got %q", *s.Section.ParentSectionTitle)
	}
	if !strings.HasPrefix(s.Content, "Officers must") {
		t.Errorf("expected content to start with body text, got %q", s.Content)
	}
	if s.Document != "manual.pdf" {
		t.Errorf("expected document basename, got %q", s.Document)
	}
}

func TestExtract_ImageWithoutSection(t *testing.T) {
	captioner := &fakeCaptioner{caption: "  A marked patrol car.  "}
	e, dir := newTestExtractor(t, captioner)
	pages := make([]*layout.Page, 5)
	for i := range pages {
		pages[i] = &layout.Page{}
	}
	pages[4].Images = []layout.Image{pngImage(200, 0)}

	res := extract(t, e, pages...)
	if len(res.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(res.Chunks))
	}
	img := res.Chunks[0]
	if img.Type != TypeImage || img.PageNumber != 5 {
		t.Fatalf("unexpected chunk %+v", img)
	}
	if img.Section != nil {
		t.Errorf("expected no section linkage, got %+v", img.Section)
	}
	if img.Content != "A marked patrol car." {
		t.Errorf("expected trimmed caption, got %q", img.Content)
	}
	wantPath := filepath.Join(dir, "p5_i0.png")
	if img.Payload == nil || img.Payload.Path != wantPath {
		t.Errorf("expected payload path %q, got %+v", wantPath, img.Payload)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("expected image file on disk: %v", err)
	}
	if captioner.prompt != CaptionPrompt {
		t.Errorf("expected fixed caption prompt, got %q", captioner.prompt)
	}
	if captioner.mime != "image/png" {
		t.Errorf("expected image/png, got %q", captioner.mime)
	}

	data, err := json.Marshal(img)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"section_number", "section_title", "parent_section_number", "parent_section_title"} {
		if _, ok := m[key]; ok {
			t.Errorf("expected %q to be absent from image record", key)
		}
	}
}

func TestExtract_ImageInsideSection(t *testing.T) {
	captioner := &fakeCaptioner{caption: "Handcuffs on a table."}
	e, _ := newTestExtractor(t, captioner)
	res := extract(t, e, &layout.Page{
		Blocks: []layout.TextBlock{
			block(100, "4 Equipment"),
			block(120, "4.1 Restraints"),
			block(400, "Always double lock."),
		},
		Images: []layout.Image{pngImage(200, 3)},
	})

	if len(res.Chunks) != 2 {
		t.Fatalf("expected 2 chunks (image, section 4.1), got %d", len(res.Chunks))
	}
	// Section 4 has no content and is discarded when 4.1 starts.
	img := res.Chunks[0]
	if img.Type != TypeImage {
		t.Fatalf("expected image chunk first, got %s", img.Type)
	}
	if img.Section == nil || img.Section.SectionNumber != "4.1" {
		t.Fatalf("expected linkage to 4.1, got %+v", img.Section)
	}
	if img.Section.ParentSectionTitle == nil || *img.Section.ParentSectionTitle != "Equipment" {
		t.Errorf("expected parent title Equipment, got %v", img.Section.ParentSectionTitle)
	}

	sec := res.Chunks[1]
	if sec.Type != TypeSection || sec.Section.SectionNumber != "4.1" {
		t.Fatalf("expected section 4.1, got %+v", sec)
	}
	want := "--- Image: p1_i3.png ---\n\nAlways double lock."
	if sec.Content != want {
		t.Errorf("expected content %q, got %q", want, sec.Content)
	}
}

func TestExtract_CaptionFailureIsInline(t *testing.T) {
	captioner := &fakeCaptioner{err: errors.New("rate limited")}
	e, _ := newTestExtractor(t, captioner)
	res := extract(t, e, &layout.Page{Images: []layout.Image{pngImage(200, 0)}})

	if len(res.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(res.Chunks))
	}
	if got := res.Chunks[0].Content; got != "Error: Failed to generate caption. rate limited" {
		t.Errorf("unexpected caption %q", got)
	}
	if res.Stats.CaptionErrors != 1 {
		t.Errorf("expected 1 caption error, got %d", res.Stats.CaptionErrors)
	}
}

func TestExtract_EmptyImageData(t *testing.T) {
	captioner := &fakeCaptioner{caption: "unused"}
	e, _ := newTestExtractor(t, captioner)
	img := pngImage(200, 1)
	img.Load = func() (layout.Blob, error) { return layout.Blob{Ext: "jpeg"}, nil }
	res := extract(t, e, &layout.Page{Images: []layout.Image{img}})

	if len(res.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(res.Chunks))
	}
	if got := res.Chunks[0].Content; got != "Error: Could not encode image p1_i1.jpeg" {
		t.Errorf("unexpected caption %q", got)
	}
	if captioner.calls != 0 {
		t.Errorf("expected captioner not to be called, got %d calls", captioner.calls)
	}
}

func TestExtract_BrokenImageSkipped(t *testing.T) {
	e, _ := newTestExtractor(t, &fakeCaptioner{caption: "ok"})
	broken := pngImage(150, 0)
	broken.Load = func() (layout.Blob, error) { return layout.Blob{}, errors.New("bad stream") }
	res := extract(t, e, &layout.Page{
		Blocks: []layout.TextBlock{block(100, "1 Scope"), block(400, "Body text.")},
		Images: []layout.Image{broken, pngImage(200, 1)},
	})

	images := chunksOfType(res.Chunks, TypeImage)
	if len(images) != 1 {
		t.Fatalf("expected 1 image chunk, got %d", len(images))
	}
	if images[0].Payload.Path == "" || !strings.HasSuffix(images[0].Payload.Path, "p1_i1.png") {
		t.Errorf("expected second image to survive, got %+v", images[0].Payload)
	}
	if res.Stats.ImageErrors != 1 {
		t.Errorf("expected 1 image error, got %d", res.Stats.ImageErrors)
	}
	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 || strings.Contains(sections[0].Content, "p1_i0") {
		t.Errorf("broken image must not leave a placeholder: %+v", sections)
	}
}

func TestExtract_HeaderClosesEmptySection(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{
		block(100, "1 Introduction"),
		block(120, "2 Powers"),
		block(140, "Officers have powers."),
		block(160, "3 Duties"),
		block(180, "Duty text."),
	}})

	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Section.SectionNumber != "2" || sections[0].Content != "Officers have powers." {
		t.Errorf("unexpected first section %+v %q", sections[0].Section, sections[0].Content)
	}
	if sections[1].Section.SectionNumber != "3" || sections[1].Content != "Duty text." {
		t.Errorf("expected section 3 to start empty, got %q", sections[1].Content)
	}
}

func TestExtract_EmptyTableMarksContent(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{
		Blocks: []layout.TextBlock{block(100, "5 Forms")},
		Tables: []layout.Table{{BBox: layout.BBox{X0: 50, Y0: 200, X1: 500, Y1: 300}}},
	})

	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 {
		t.Fatalf("expected empty-but-touched section to be emitted, got %d", len(sections))
	}
	if sections[0].Content != "" {
		t.Errorf("expected empty content, got %q", sections[0].Content)
	}
}

func TestExtract_TableFlattenedIntoSection(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{
		Blocks: []layout.TextBlock{block(100, "6 Codes"), block(400, "After table.")},
		Tables: []layout.Table{{
			BBox: layout.BBox{X0: 50, Y0: 200, X1: 500, Y1: 300},
			Rows: [][]string{{"Code", "Meaning"}, {"A1", "Urgent\nresponse"}},
		}},
	})

	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	want := "Code\nMeaning\nA1\nUrgent response\nAfter table."
	if sections[0].Content != want {
		t.Errorf("expected %q, got %q", want, sections[0].Content)
	}
}

func TestExtract_OrphanContentDiscarded(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{
		Blocks: []layout.TextBlock{block(100, "Preface text before any heading."), block(500, "1 Start")},
		Tables: []layout.Table{{BBox: layout.BBox{X0: 50, Y0: 200, X1: 500, Y1: 300}, Rows: [][]string{{"X"}}}},
	})

	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 0 {
		t.Fatalf("expected no sections (1 Start has no content), got %d", len(sections))
	}
	if res.Stats.OrphanBlocks != 1 {
		t.Errorf("expected 1 orphan block, got %d", res.Stats.OrphanBlocks)
	}
}

func TestExtract_SectionContinuesAcrossPages(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e,
		&layout.Page{Blocks: []layout.TextBlock{block(700, "7 Custody"), block(750, "First part.")}},
		&layout.Page{Blocks: []layout.TextBlock{block(30, "Page 2 header"), block(100, "Second part."), block(790, "12")}},
	)

	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if sections[0].Content != "First part.\nSecond part." {
		t.Errorf("unexpected content %q", sections[0].Content)
	}
	if sections[0].PageNumber != 1 {
		t.Errorf("expected header page 1, got %d", sections[0].PageNumber)
	}
}

func TestExtract_DuplicateSectionNumbers(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{
		block(100, "2 Old Title"),
		block(120, "Old body."),
		block(140, "2 New Title"),
		block(160, "New body."),
		block(180, "2.1 Child"),
		block(200, "Child body."),
	}})

	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 3 {
		t.Fatalf("expected both duplicates and child emitted, got %d", len(sections))
	}
	child := sections[2]
	if child.Section.ParentSectionTitle == nil || *child.Section.ParentSectionTitle != "New Title" {
		t.Errorf("expected last-write-wins parent title, got %v", child.Section.ParentSectionTitle)
	}
}

func TestExtract_HeaderMinFontSize(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ImageDir = dir
	cfg.HeaderMinFontSize = 12
	e := NewExtractor(cfg, nil, quietLogger())

	heading := block(100, "1 Arrest Procedure")
	heading.FontSize = 16
	listItem := block(120, "2 officers attended the scene.")
	listItem.FontSize = 10

	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{heading, listItem}})
	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 {
		t.Fatalf("expected small-font list item to stay body text, got %d sections", len(sections))
	}
	if sections[0].Content != "2 officers attended the scene." {
		t.Errorf("unexpected content %q", sections[0].Content)
	}
}

func TestExtract_TableOfContents(t *testing.T) {
	e, _ := newTestExtractor(t, &fakeCaptioner{caption: "diagram"})
	tocPage := func(entries ...string) *layout.Page {
		p := &layout.Page{}
		for i, entry := range entries {
			p.Blocks = append(p.Blocks, block(float64(150+i*20), entry))
		}
		return p
	}

	cover := &layout.Page{Blocks: []layout.TextBlock{block(100, "Police Training Manual")}}
	p2 := tocPage("1 Introduction .......... 3", "2 Powers .......... 5")
	p2.Blocks = append(p2.Blocks, block(100, "Table of Contents"))
	p3 := tocPage("3 Arrest .......... 9")
	p3.Images = []layout.Image{pngImage(300, 0)}
	p4 := tocPage("4 Custody .......... 12")
	p5 := tocPage("5 Evidence .......... 15", "6 Interviews .......... 19")
	body := &layout.Page{Blocks: []layout.TextBlock{block(100, "1 Introduction"), block(120, "This manual covers arrest and custody.")}}

	res := extract(t, e, cover, p2, p3, p4, p5, body)

	if len(res.TOCPages) != 4 || res.TOCPages[0] != 2 || res.TOCPages[3] != 5 {
		t.Fatalf("expected TOC pages [2 3 4 5], got %v", res.TOCPages)
	}
	toc := res.Chunks[0]
	if toc.Type != TypeTOC {
		t.Fatalf("expected TOC chunk first, got %s", toc.Type)
	}
	if toc.PageNumberStart != 2 || toc.PageNumberEnd != 5 {
		t.Errorf("expected TOC span 2-5, got %d-%d", toc.PageNumberStart, toc.PageNumberEnd)
	}
	wantTOC := "1 Introduction\n2 Powers\n3 Arrest\n4 Custody\n5 Evidence\n6 Interviews"
	if toc.Content != wantTOC {
		t.Errorf("expected TOC content %q, got %q", wantTOC, toc.Content)
	}
	if len(chunksOfType(res.Chunks, TypeImage)) != 0 {
		t.Error("expected images on TOC pages to be skipped")
	}
	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 || sections[0].PageNumber != 6 {
		t.Fatalf("expected only the body section on page 6, got %+v", sections)
	}
}

func TestExtract_OnlyFirstTOCHeading(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e,
		&layout.Page{Blocks: []layout.TextBlock{block(100, "Table of Contents"), block(150, "1 Scope ..... 2")}},
		&layout.Page{Blocks: []layout.TextBlock{block(100, "1 Scope"), block(150, "Body.")}},
		&layout.Page{Blocks: []layout.TextBlock{block(100, "TABLE OF CONTENTS"), block(150, "Appendix ..... 9")}},
	)

	if got := len(chunksOfType(res.Chunks, TypeTOC)); got != 1 {
		t.Fatalf("expected exactly 1 TOC chunk, got %d", got)
	}
	if len(res.TOCPages) != 1 || res.TOCPages[0] != 1 {
		t.Errorf("expected only page 1 as TOC, got %v", res.TOCPages)
	}
}

func TestExtract_NoTOC(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{block(100, "1 Scope"), block(150, "Body.")}})
	if len(res.TOCPages) != 0 || len(chunksOfType(res.Chunks, TypeTOC)) != 0 {
		t.Errorf("expected no TOC, got pages=%v", res.TOCPages)
	}
}

func TestExtract_NumberOnOwnLineStartsSection(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, &layout.Page{Blocks: []layout.TextBlock{
		block(100, "2 Powers"),
		block(120, "Body of two."),
		block(140, "2.1\nCautions\nOfficers must caution."),
	}})

	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Content != "Body of two." {
		t.Errorf("expected section 2 to end before 2.1, got %q", sections[0].Content)
	}
	s := sections[1]
	if s.Section.SectionNumber != "2.1" || s.Section.SectionTitle != "Cautions" {
		t.Errorf("unexpected header %+v", s.Section)
	}
	if s.Section.ParentSectionTitle == nil || *s.Section.ParentSectionTitle != "Powers" {
		t.Errorf("expected parent title Powers, got %v", s.Section.ParentSectionTitle)
	}
	if s.Content != "Officers must caution." {
		t.Errorf("unexpected content %q", s.Content)
	}
}

func flowPage(texts ...string) *layout.Page {
	p := &layout.Page{Area: layout.Unbounded(), Flow: true}
	for i, text := range texts {
		p.Blocks = append(p.Blocks, block(float64(i*20), text))
	}
	return p
}

func TestExtract_FlowTOCKeepsSections(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, flowPage(
		"Police Training Manual",
		"Table of Contents",
		"1 Scope ..... 2",
		"2 Powers\n..... 4",
		"1 Scope",
		"Read this first... then continue.",
		"2 Powers",
		"Arrest powers follow.",
	))

	if len(res.TOCPages) != 0 {
		t.Errorf("expected the flow page to stay in play, got TOC pages %v", res.TOCPages)
	}
	toc := res.Chunks[0]
	if toc.Type != TypeTOC || toc.PageNumberStart != 1 || toc.PageNumberEnd != 1 {
		t.Fatalf("expected TOC chunk first spanning page 1, got %+v", toc)
	}
	if toc.Content != "1 Scope\n2 Powers" {
		t.Errorf("unexpected TOC content %q", toc.Content)
	}
	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Section.SectionNumber != "1" || sections[0].Content != "Read this first... then continue." {
		t.Errorf("unexpected first section %+v", sections[0])
	}
	if sections[1].Section.SectionNumber != "2" || sections[1].Content != "Arrest powers follow." {
		t.Errorf("unexpected second section %+v", sections[1])
	}
}

func TestExtract_FlowTOCStopsAtFirstNonLeader(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	res := extract(t, e, flowPage(
		"Table of Contents",
		"1 Scope",
		"Wait... there is more ..... 3",
	))

	toc := chunksOfType(res.Chunks, TypeTOC)
	if len(toc) != 1 || toc[0].Content != "" {
		t.Fatalf("expected one empty TOC chunk, got %+v", toc)
	}
	sections := chunksOfType(res.Chunks, TypeSection)
	if len(sections) != 1 || sections[0].Content != "Wait... there is more ..... 3" {
		t.Fatalf("expected the ellipsis block to stay in section 1, got %+v", sections)
	}
}

func TestExtract_PagesFetchedOnce(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	doc := &countingDoc{Memory: layout.Memory{DocName: "manual.pdf", Pages: []*layout.Page{
		{Number: 1, Blocks: []layout.TextBlock{block(100, "Police Training Manual")}},
		{Number: 2, Blocks: []layout.TextBlock{block(100, "1 Scope"), block(150, "Body.")}},
		{Number: 3, Blocks: []layout.TextBlock{block(100, "More body.")}},
	}}, calls: map[int]int{}}

	if _, err := e.Extract(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for n := 1; n <= 3; n++ {
		if doc.calls[n] != 1 {
			t.Errorf("page %d fetched %d times, want 1", n, doc.calls[n])
		}
	}
}

type countingDoc struct {
	layout.Memory
	calls map[int]int
}

func (d *countingDoc) Page(n int) (*layout.Page, error) {
	d.calls[n]++
	return d.Memory.Page(n)
}

func TestExtract_CanceledContext(t *testing.T) {
	e, _ := newTestExtractor(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := &layout.Memory{DocName: "x.pdf", Pages: []*layout.Page{{Number: 1}}}
	if _, err := e.Extract(ctx, doc); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWriteJSON_RecordShapes(t *testing.T) {
	e, _ := newTestExtractor(t, &fakeCaptioner{caption: "A radio."})
	res := extract(t, e,
		&layout.Page{Blocks: []layout.TextBlock{block(100, "Police Training Manual"), block(150, "Table of Contents"), block(170, "1 Radios ..... 2")}},
		&layout.Page{
			Blocks: []layout.TextBlock{block(100, "1 Radios"), block(300, "Keep charged.")},
			Images: []layout.Image{pngImage(150, 0)},
		},
	)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, res.Chunks); err != nil {
		t.Fatalf("write: %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	wantKeys := map[string][]string{
		"TOC":     {"document", "title", "subtitle", "type", "page_number_start", "page_number_end", "content"},
		"image":   {"document", "title", "subtitle", "type", "page_number", "payload", "content", "section_number", "section_title", "parent_section_number", "parent_section_title"},
		"section": {"document", "title", "subtitle", "type", "page_number", "section_number", "section_title", "parent_section_number", "parent_section_title", "content"},
	}
	for _, r := range records {
		typ, _ := r["type"].(string)
		keys := wantKeys[typ]
		if len(r) != len(keys) {
			t.Errorf("%s record: expected %d keys, got %d (%v)", typ, len(keys), len(r), r)
		}
		for _, k := range keys {
			if _, ok := r[k]; !ok {
				t.Errorf("%s record missing %q", typ, k)
			}
		}
		if r["title"] != "Police Training Manual" {
			t.Errorf("%s record: expected stamped title, got %v", typ, r["title"])
		}
	}

	if err := ValidateRecords(records); err != nil {
		t.Errorf("expected records to satisfy schema: %v", err)
	}
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected empty array, got %q", buf.String())
	}
}
