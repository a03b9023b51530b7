package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgallion1/manualgest/internal/layout"
)

// Captioner describes an image in natural language.
type Captioner interface {
	Caption(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// Config controls a DocumentSectionExtractor run.
type Config struct {
	// Band is the default content area; Page.Area overrides it.
	Band layout.Band
	// ImageDir receives one file per extracted image.
	ImageDir string
	// CaptionPrompt is sent with every image.
	CaptionPrompt string
	// HeaderMinFontSize, when positive, rejects header matches on blocks
	// whose known font size is smaller.
	HeaderMinFontSize float64
}

// DefaultConfig returns the settings used for the training manuals.
func DefaultConfig() Config {
	return Config{
		Band:          layout.DefaultBand,
		ImageDir:      "extracted_images",
		CaptionPrompt: CaptionPrompt,
	}
}

// Stats counts what a run saw and dropped.
type Stats struct {
	Pages         int `json:"pages"`
	TOCPages      int `json:"toc_pages"`
	Sections      int `json:"sections"`
	Images        int `json:"images"`
	ImageErrors   int `json:"image_errors"`
	CaptionErrors int `json:"caption_errors"`
	Tables        int `json:"tables"`
	OrphanBlocks  int `json:"orphan_blocks"`
	PageErrors    int `json:"page_errors"`
}

// Result is the output of Extract.
type Result struct {
	Document string
	Title    *string
	Subtitle *string
	Chunks   []Chunk
	TOCPages []int
	Stats    Stats
}

// Extractor is the DocumentSectionExtractor. It is safe to reuse across
// documents but one Extract call must not run concurrently with another
// that shares the same ImageDir.
type Extractor struct {
	cfg       Config
	captioner Captioner
	log       *slog.Logger
}

func NewExtractor(cfg Config, captioner Captioner, log *slog.Logger) *Extractor {
	if cfg.Band == (layout.Band{}) {
		cfg.Band = layout.DefaultBand
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = DefaultConfig().ImageDir
	}
	if cfg.CaptionPrompt == "" {
		cfg.CaptionPrompt = CaptionPrompt
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{cfg: cfg, captioner: captioner, log: log}
}

func (e *Extractor) band(p *layout.Page) layout.Band {
	if p.Area != nil {
		return *p.Area
	}
	return e.cfg.Band
}

// Extract walks doc once, fetching each page a single time, and returns its
// chunk records: the table of contents first, then image and section records
// in emission order.
func (e *Extractor) Extract(ctx context.Context, doc layout.Document) (*Result, error) {
	if err := os.MkdirAll(e.cfg.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	name := filepath.Base(doc.Name())
	log := e.log.With("document", name)
	res := &Result{Document: name}
	res.Stats.Pages = doc.NumPages()

	var first *layout.Page
	if res.Stats.Pages > 0 {
		p, err := doc.Page(1)
		if err != nil {
			log.Warn("first page unavailable for metadata", "error", err)
		} else {
			first = p
			res.Title, res.Subtitle = firstPageMetadata(first, e.band(first))
		}
	}
	if res.Title == nil {
		log.Warn("no title found on first page")
	}

	m := &machine{
		ex:     e,
		log:    log,
		result: res,
		titles: TitleMap{},
	}

	scan := newTOCScanner()
	for n := 1; n <= res.Stats.Pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := first
		if n != 1 || page == nil {
			var err error
			page, err = doc.Page(n)
			if err != nil {
				res.Stats.PageErrors++
				scan.stop()
				log.Error("skipping unreadable page", "page", n, "error", err)
				continue
			}
		}
		page, isTOC := scan.visit(n, page, e.band(page))
		if isTOC {
			continue
		}
		for _, el := range Sequence(page, e.band(page)) {
			if err := m.step(ctx, n, el); err != nil {
				return nil, err
			}
		}
	}
	m.finish()

	if toc := scan.result(); toc.Found {
		log.Info("table of contents found", "start_page", toc.StartPage, "end_page", toc.EndPage)
		m.emitFirst(Chunk{
			Type:            TypeTOC,
			PageNumberStart: toc.StartPage,
			PageNumberEnd:   toc.EndPage,
			Content:         toc.Content,
		})
		for p := range toc.Pages {
			res.TOCPages = append(res.TOCPages, p)
		}
		sort.Ints(res.TOCPages)
		res.Stats.TOCPages = len(res.TOCPages)
	}

	log.Info("extraction complete",
		"pages", res.Stats.Pages,
		"chunks", len(res.Chunks),
		"sections", res.Stats.Sections,
		"images", res.Stats.Images,
		"image_errors", res.Stats.ImageErrors,
	)
	return res, nil
}
