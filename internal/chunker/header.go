package chunker

import (
	"regexp"
	"strings"
)

// headerRe matches "Section 4: Title" or a dotted number such as "3.2.1 Title".
var headerRe = regexp.MustCompile(`(?i)^\s*(?:Section\s+(\d+):|((\d{1,2}(?:\.\d{1,2})*)))\s+(.*)`)

// bareNumberRe matches a line holding only a header number, whose title is
// laid out on the following line.
var bareNumberRe = regexp.MustCompile(`(?i)^\s*(?:Section\s+\d+:|\d{1,2}(?:\.\d{1,2})*)\s*$`)

// HeaderMatch is the result of ParseHeader. Number and Title are only
// meaningful when Matched is true.
type HeaderMatch struct {
	Matched bool
	Number  string
	Title   string
}

// ParseHeader tests a single line of text against the section header
// pattern. It holds no state.
func ParseHeader(line string) HeaderMatch {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return HeaderMatch{}
	}
	num := m[1]
	if num == "" {
		num = m[2]
	}
	num = strings.TrimRight(num, ".")
	return HeaderMatch{
		Matched: true,
		Number:  num,
		Title:   strings.TrimSpace(m[4]),
	}
}

// ParseHeaderBlock tests a text block. The header is normally its first
// line; a first line holding only the number takes its title from the second
// line. rest is the remaining text of the block.
func ParseHeaderBlock(text string) (h HeaderMatch, rest string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if bareNumberRe.MatchString(first) {
		title, after, _ := strings.Cut(rest, "\n")
		if strings.TrimSpace(title) == "" {
			return HeaderMatch{}, ""
		}
		return ParseHeader(strings.TrimSpace(first) + " " + title), after
	}
	h = ParseHeader(first)
	if !h.Matched {
		return HeaderMatch{}, ""
	}
	return h, rest
}

// ParentNumber drops the last dot component of a section number.
// Top-level numbers have no parent.
func ParentNumber(num string) (string, bool) {
	i := strings.LastIndex(num, ".")
	if i < 0 {
		return "", false
	}
	return num[:i], true
}

// TitleMap records section titles by number for one extraction run.
// A repeated number overwrites the earlier title.
type TitleMap map[string]string

// Set registers a title and reports whether the number was already known.
func (m TitleMap) Set(num, title string) (replaced bool) {
	_, replaced = m[num]
	m[num] = title
	return replaced
}

// Resolve returns the parent linkage for num. parentTitle is nil when the
// parent heading has not been seen, while parentNum is still populated.
func (m TitleMap) Resolve(num string) (parentNum, parentTitle *string) {
	p, ok := ParentNumber(num)
	if !ok {
		return nil, nil
	}
	parentNum = &p
	if t, ok := m[p]; ok {
		parentTitle = &t
	}
	return parentNum, parentTitle
}
