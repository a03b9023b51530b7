package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/manualgest/internal/layout"
)

// section is the record being accumulated while a header is active.
type section struct {
	page       int
	link       SectionLink
	content    strings.Builder
	hasContent bool
}

func (s *section) append(text string) {
	s.content.WriteString(text)
	s.hasContent = true
}

// machine is the extraction state machine. active == nil is the
// NoActiveSection state.
type machine struct {
	ex     *Extractor
	log    *slog.Logger
	result *Result
	titles TitleMap

	active *section
}

func (m *machine) step(ctx context.Context, page int, el Element) error {
	switch el.Kind {
	case KindText:
		m.text(page, el.Text)
	case KindImage:
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.image(ctx, page, el.Image); err != nil {
			m.result.Stats.ImageErrors++
			m.log.Error("could not process image", "page", page, "index", el.Image.Index, "error", err)
		}
	case KindTable:
		m.table(el.Table)
	}
	return nil
}

func (m *machine) isHeader(b *layout.TextBlock) (HeaderMatch, string) {
	if floor := m.ex.cfg.HeaderMinFontSize; floor > 0 && b.FontSize > 0 && b.FontSize < floor {
		return HeaderMatch{}, ""
	}
	return ParseHeaderBlock(b.Text)
}

func (m *machine) text(page int, b *layout.TextBlock) {
	if h, rest := m.isHeader(b); h.Matched {
		m.header(page, h)
		if rest = strings.TrimSpace(rest); rest != "" {
			m.active.append(rest + "\n")
		}
		return
	}
	if m.active == nil {
		m.result.Stats.OrphanBlocks++
		return
	}
	m.active.append(strings.TrimRight(b.Text, "\n") + "\n")
}

func (m *machine) header(page int, h HeaderMatch) {
	m.finalize()
	if m.titles.Set(h.Number, h.Title) {
		m.log.Debug("section number repeated", "section_number", h.Number, "page", page)
	}
	parentNum, parentTitle := m.titles.Resolve(h.Number)
	m.active = &section{
		page: page,
		link: SectionLink{
			SectionNumber:       h.Number,
			SectionTitle:        h.Title,
			ParentSectionNumber: parentNum,
			ParentSectionTitle:  parentTitle,
		},
	}
}

func (m *machine) image(ctx context.Context, page int, img *layout.Image) error {
	if img.Load == nil {
		return fmt.Errorf("image %q has no data source", img.Name)
	}
	blob, err := img.Load()
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	ext := strings.TrimPrefix(blob.Ext, ".")
	if ext == "" {
		ext = "png"
	}
	filename := fmt.Sprintf("p%d_i%d.%s", page, img.Index, ext)
	path := filepath.Join(m.ex.cfg.ImageDir, filename)
	if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	chunk := Chunk{
		Type:       TypeImage,
		PageNumber: page,
		Payload:    &ImagePayload{Path: path},
		Content:    m.caption(ctx, filename, blob),
	}
	if m.active != nil {
		link := m.active.link
		chunk.Section = &link
	}
	m.emit(chunk)
	m.result.Stats.Images++

	if m.active != nil {
		m.active.append("\n\n--- Image: " + filename + " ---\n\n")
	}
	return nil
}

func (m *machine) caption(ctx context.Context, filename string, blob layout.Blob) string {
	if len(blob.Data) == 0 {
		m.result.Stats.CaptionErrors++
		return "Error: Could not encode image " + filename
	}
	if m.ex.captioner == nil {
		return ""
	}
	m.log.Info("generating caption", "image", filename)
	mime := blob.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	caption, err := m.ex.captioner.Caption(ctx, blob.Data, mime, m.ex.cfg.CaptionPrompt)
	if err != nil {
		m.result.Stats.CaptionErrors++
		m.log.Warn("caption failed", "image", filename, "error", err)
		return "Error: Failed to generate caption. " + err.Error()
	}
	return strings.TrimSpace(caption)
}

func (m *machine) table(t *layout.Table) {
	m.result.Stats.Tables++
	if m.active == nil {
		return
	}
	m.active.append(FlattenTable(t.Rows) + "\n")
}

// finalize closes the active section, emitting it if it holds anything.
func (m *machine) finalize() {
	s := m.active
	m.active = nil
	if s == nil {
		return
	}
	content := Normalize(s.content.String())
	if content == "" && !s.hasContent {
		return
	}
	link := s.link
	m.emit(Chunk{
		Type:       TypeSection,
		PageNumber: s.page,
		Section:    &link,
		Content:    content,
	})
	m.result.Stats.Sections++
}

func (m *machine) finish() { m.finalize() }

func (m *machine) emit(c Chunk) {
	m.result.Chunks = append(m.result.Chunks, m.stamp(c))
}

// emitFirst puts c ahead of everything emitted so far.
func (m *machine) emitFirst(c Chunk) {
	m.result.Chunks = append([]Chunk{m.stamp(c)}, m.result.Chunks...)
}

func (m *machine) stamp(c Chunk) Chunk {
	c.Document = m.result.Document
	c.Title = m.result.Title
	c.Subtitle = m.result.Subtitle
	return c
}
