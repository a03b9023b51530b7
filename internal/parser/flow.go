package parser

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/manualgest/internal/layout"
)

// lineHeight is the synthetic height of one line in flowed documents.
const lineHeight = 10.0

// flow lays out non-paginated sources on a single page, stacking elements
// top to bottom in reading order.
type flow struct {
	page *layout.Page
	y    float64
}

func newFlow() *flow {
	return &flow{page: &layout.Page{Number: 1, Area: layout.Unbounded(), Flow: true}}
}

func (f *flow) next(lines int) layout.BBox {
	if lines < 1 {
		lines = 1
	}
	box := layout.BBox{X0: 0, Y0: f.y, X1: 1, Y1: f.y + float64(lines)*lineHeight}
	f.y = box.Y1 + lineHeight
	return box
}

func (f *flow) text(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	f.page.Blocks = append(f.page.Blocks, layout.TextBlock{
		BBox: f.next(strings.Count(s, "\n") + 1),
		Text: s,
	})
}

func (f *flow) table(rows [][]string) {
	f.page.Tables = append(f.page.Tables, layout.Table{BBox: f.next(len(rows)), Rows: rows})
}

func (f *flow) image(name string, load func() (layout.Blob, error)) {
	f.page.Images = append(f.page.Images, layout.Image{
		BBox:  f.next(1),
		Index: len(f.page.Images),
		Name:  name,
		Load:  load,
	})
}

func (f *flow) document(path string) *layout.Memory {
	return &layout.Memory{DocName: filepath.Base(path), Pages: []*layout.Page{f.page}}
}

// imageRef resolves an image reference from markup. Local paths are read
// relative to baseDir when loaded and data: URIs are decoded. Remote URLs
// are not fetched and return ok=false.
func imageRef(baseDir, src string) (load func() (layout.Blob, error), ok bool) {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return nil, false
	case strings.HasPrefix(src, "data:"):
		return func() (layout.Blob, error) { return decodeDataURI(src) }, true
	case strings.Contains(src, "://"):
		return nil, false
	}

	path := src
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, filepath.FromSlash(src))
	}
	return func() (layout.Blob, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return layout.Blob{}, err
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if ext == "jpeg" {
			ext = "jpg"
		}
		return layout.Blob{Data: data, Ext: ext, MIMEType: mimeFor(ext, data)}, nil
	}, true
}

func decodeDataURI(uri string) (layout.Blob, error) {
	meta, payload, found := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !found {
		return layout.Blob{}, fmt.Errorf("malformed data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return layout.Blob{}, fmt.Errorf("unsupported data URI encoding")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return layout.Blob{}, fmt.Errorf("decode data URI: %w", err)
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	ext := "png"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = strings.TrimPrefix(exts[0], ".")
	}
	return layout.Blob{Data: data, Ext: ext, MIMEType: mimeType}, nil
}
