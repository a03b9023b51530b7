package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/manualgest/internal/layout"
)

// MarkdownParser handles Markdown files using goldmark with GFM tables.
type MarkdownParser struct{}

func (p *MarkdownParser) Open(path string) (layout.Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open markdown: %w", err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))

	w := &mdWalker{src: src, baseDir: filepath.Dir(path), flow: newFlow()}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n)
	}
	return w.flow.document(path), nil
}

type mdWalker struct {
	src     []byte
	baseDir string
	flow    *flow
}

func (w *mdWalker) block(n ast.Node) {
	switch node := n.(type) {
	case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
		var imgs []*ast.Image
		w.flow.text(w.inline(node, &imgs))
		for _, img := range imgs {
			if load, ok := imageRef(w.baseDir, string(img.Destination)); ok {
				w.flow.image(string(img.Destination), load)
			}
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		w.flow.text(linesText(node, w.src))
	case *east.Table:
		w.flow.table(w.tableRows(node))
	case *ast.List, *ast.ListItem, *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c)
		}
	}
}

// inline renders the inline children of n, collecting images on the way.
func (w *mdWalker) inline(n ast.Node, imgs *[]*ast.Image) string {
	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(w.src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.Label(w.src))
		case *ast.Image:
			*imgs = append(*imgs, t)
		case *ast.RawHTML:
		default:
			buf.WriteString(w.inline(c, imgs))
		}
	}
	return buf.String()
}

func (w *mdWalker) tableRows(t *east.Table) [][]string {
	var rows [][]string
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			var imgs []*ast.Image
			row = append(row, strings.TrimSpace(w.inline(c, &imgs)))
		}
		rows = append(rows, row)
	}
	return rows
}

func linesText(n ast.Node, src []byte) string {
	var buf strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}
