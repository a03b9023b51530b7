package chunker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dgallion1/manualgest/internal/layout"
)

var (
	tocHeadingRe = regexp.MustCompile(`(?i)^\s*Table of Contents\s*$`)
	tocLeaderRe  = regexp.MustCompile(`\s*\.+\s*\d+\s*$`)
)

// tocResult describes the first table-of-contents region of a document.
type tocResult struct {
	Found     bool
	StartPage int
	EndPage   int
	Content   string
	Pages     map[int]bool
}

type tocState int

const (
	tocSearching tocState = iota
	tocScanning
	tocDone
)

// tocScanner finds the first "Table of Contents" heading while pages are
// visited in order, then keeps consuming pages while they show dot-leader
// entries. Flowed pages hold a whole document, so on those only the heading
// block and the leader blocks directly after it are consumed.
type tocScanner struct {
	state tocState
	lines []string
	res   tocResult
}

func newTOCScanner() *tocScanner {
	return &tocScanner{res: tocResult{Pages: map[int]bool{}}}
}

// visit inspects page n. It returns the page with any TOC blocks removed and
// whether the whole page belongs to the table of contents.
func (s *tocScanner) visit(n int, p *layout.Page, band layout.Band) (*layout.Page, bool) {
	switch s.state {
	case tocDone:
		return p, false
	case tocSearching:
		if p.Flow {
			if rest, ok := s.flowTOC(p, band); ok {
				s.open(n)
				s.res.EndPage = n
				s.state = tocDone
				return rest, false
			}
			return p, false
		}
		if !hasTOCHeading(p) {
			return p, false
		}
		s.open(n)
	}

	leaders := 0
	for _, b := range p.Blocks {
		if !band.Contains(b.BBox) || !strings.Contains(b.Text, "...") {
			continue
		}
		leaders++
		s.addEntries(b.Text)
	}
	if leaders > 0 {
		s.res.Pages[n] = true
		s.res.EndPage = n
		return p, true
	}
	if n > s.res.StartPage {
		s.state = tocDone
	}
	return p, false
}

// stop ends an in-progress scan, e.g. on an unreadable page.
func (s *tocScanner) stop() {
	if s.state == tocScanning {
		s.state = tocDone
	}
}

func (s *tocScanner) open(n int) {
	s.state = tocScanning
	s.res.Found = true
	s.res.StartPage = n
}

func (s *tocScanner) addEntries(text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(tocLeaderRe.ReplaceAllString(line, ""))
		if line != "" {
			s.lines = append(s.lines, line)
		}
	}
}

// flowTOC locates the heading block on a flowed page and returns a copy of
// the page without it and the leader blocks that follow it.
func (s *tocScanner) flowTOC(p *layout.Page, band layout.Band) (*layout.Page, bool) {
	var order []int
	for i := range p.Blocks {
		if band.Contains(p.Blocks[i].BBox) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p.Blocks[order[a]].BBox.Top() < p.Blocks[order[b]].BBox.Top()
	})

	start := -1
	for k, i := range order {
		if hasTOCLine(p.Blocks[i].Text) {
			start = k
			break
		}
	}
	if start < 0 {
		return p, false
	}

	drop := map[int]bool{order[start]: true}
	if head := p.Blocks[order[start]].Text; strings.Contains(head, "...") {
		var entries []string
		for _, line := range strings.Split(head, "\n") {
			if !tocHeadingRe.MatchString(line) {
				entries = append(entries, line)
			}
		}
		s.addEntries(strings.Join(entries, "\n"))
	}
	for _, i := range order[start+1:] {
		if !strings.Contains(p.Blocks[i].Text, "...") {
			break
		}
		drop[i] = true
		s.addEntries(p.Blocks[i].Text)
	}

	rest := *p
	rest.Blocks = make([]layout.TextBlock, 0, len(p.Blocks)-len(drop))
	for i, b := range p.Blocks {
		if !drop[i] {
			rest.Blocks = append(rest.Blocks, b)
		}
	}
	return &rest, true
}

// result finalizes the scan.
func (s *tocScanner) result() tocResult {
	res := s.res
	if res.Found && res.EndPage == 0 {
		res.EndPage = res.StartPage
	}
	res.Content = strings.TrimSpace(strings.Join(s.lines, "\n"))
	return res
}

func hasTOCHeading(p *layout.Page) bool {
	for _, b := range p.Blocks {
		if hasTOCLine(b.Text) {
			return true
		}
	}
	return false
}

func hasTOCLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if tocHeadingRe.MatchString(line) {
			return true
		}
	}
	return false
}
