package parser

import (
	"math"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/manualgest/internal/layout"
)

const (
	defaultFontSize = 10.0
	ascent          = 0.8
	descent         = 0.2
	// blockGap is the vertical gap, in line heights, that separates blocks.
	blockGap = 1.2
	// wordGap is the horizontal gap, in font sizes, rendered as a space.
	wordGap = 0.2
)

// glyph is one positioned character in y-down page space.
type glyph struct {
	x, w  float64
	base  float64
	size  float64
	s     string
	taken bool
}

func (g glyph) top() float64    { return g.base - ascent*g.size }
func (g glyph) bottom() float64 { return g.base + descent*g.size }

// center is the point used to assign a glyph to a table cell.
func (g glyph) center() (float64, float64) {
	return g.x + g.w/2, g.base - 0.3*g.size
}

func toGlyphs(texts []pdflib.Text, pageHeight float64) []glyph {
	out := make([]glyph, 0, len(texts))
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = defaultFontSize
		}
		out = append(out, glyph{
			x:    t.X,
			w:    math.Max(t.W, 0),
			base: pageHeight - t.Y,
			size: size,
			s:    t.S,
		})
	}
	return out
}

type line struct {
	glyphs []glyph
	base   float64
	size   float64
	x0, x1 float64
}

func (l *line) top() float64    { return l.base - ascent*l.size }
func (l *line) bottom() float64 { return l.base + descent*l.size }

func (l *line) add(g glyph) {
	if len(l.glyphs) == 0 {
		l.base, l.size, l.x0, l.x1 = g.base, g.size, g.x, g.x+g.w
	} else {
		l.size = math.Max(l.size, g.size)
		l.x0 = math.Min(l.x0, g.x)
		l.x1 = math.Max(l.x1, g.x+g.w)
	}
	l.glyphs = append(l.glyphs, g)
}

// text renders the line. Glyphs keep content-stream order unless every
// glyph has a known advance width, in which case they are ordered by x and
// gaps wider than wordGap become spaces.
func (l *line) text() string {
	gs := l.glyphs
	widths := true
	for _, g := range gs {
		if g.w <= 0 {
			widths = false
			break
		}
	}
	if widths {
		gs = append([]glyph(nil), gs...)
		sort.SliceStable(gs, func(i, j int) bool { return gs[i].x < gs[j].x })
	}

	var sb strings.Builder
	for i, g := range gs {
		if i > 0 && widths {
			prev := gs[i-1]
			gap := g.x - (prev.x + prev.w)
			if gap > wordGap*g.size && !strings.HasSuffix(prev.s, " ") && !strings.HasPrefix(g.s, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(g.s)
	}
	return strings.TrimSpace(norm.NFKC.String(sb.String()))
}

// groupLines buckets glyphs by baseline and returns lines top to bottom.
func groupLines(glyphs []glyph) []*line {
	var lines []*line
	for _, g := range glyphs {
		var target *line
		for i := len(lines) - 1; i >= 0; i-- {
			tol := 0.3 * math.Max(lines[i].size, g.size)
			if math.Abs(lines[i].base-g.base) <= tol {
				target = lines[i]
				break
			}
		}
		if target == nil {
			target = &line{}
			lines = append(lines, target)
		}
		target.add(g)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].base < lines[j].base })
	return lines
}

// groupBlocks joins consecutive lines into blocks. A new block starts on a
// vertical gap wider than blockGap line heights or a change of font size.
func groupBlocks(lines []*line) []layout.TextBlock {
	var (
		blocks []layout.TextBlock
		cur    *layout.TextBlock
		texts  []string
		prev   *line
	)
	flush := func() {
		if cur != nil && len(texts) > 0 {
			cur.Text = strings.Join(texts, "\n")
			blocks = append(blocks, *cur)
		}
		cur, texts = nil, nil
	}

	for _, l := range lines {
		s := l.text()
		if s == "" {
			continue
		}
		box := layout.BBox{X0: l.x0, Y0: l.top(), X1: l.x1, Y1: l.bottom()}
		if prev != nil && cur != nil {
			gap := l.top() - prev.bottom()
			if gap > blockGap*prev.size || math.Abs(l.size-prev.size) > 0.5 {
				flush()
			}
		}
		if cur == nil {
			cur = &layout.TextBlock{BBox: box, FontSize: l.size}
		} else {
			cur.BBox = cur.BBox.Union(box)
		}
		texts = append(texts, s)
		prev = l
	}
	flush()
	return blocks
}

// cellText renders glyphs assigned to a table cell, one line per baseline.
func cellText(glyphs []glyph) string {
	var parts []string
	for _, l := range groupLines(glyphs) {
		if s := l.text(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
