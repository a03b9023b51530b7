package parser

import (
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"os"
	"strings"
	"sync"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dgallion1/manualgest/internal/layout"
)

const maxFormDepth = 8

// matrix is a PDF transformation matrix [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m applied before n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// unitBox maps the image unit square through m into a y-down box.
func (m matrix) unitBox(pageHeight float64) layout.BBox {
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, p := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := m.apply(p[0], p[1])
		x0, x1 = math.Min(x0, x), math.Max(x1, x)
		y0, y1 = math.Min(y0, y), math.Max(y1, y)
	}
	return layout.BBox{X0: x0, Y0: pageHeight - y1, X1: x1, Y1: pageHeight - y0}
}

func matrixFrom(v pdflib.Value) (matrix, bool) {
	if v.Kind() != pdflib.Array || v.Len() != 6 {
		return identity, false
	}
	var m matrix
	for i := range m {
		m[i] = v.Index(i).Float64()
	}
	return m, true
}

// placement is one drawn image XObject.
type placement struct {
	name string
	box  layout.BBox
}

// placeImages interprets the page content, tracking the CTM, and records
// every image XObject drawn with Do. Form XObjects are followed. If the
// interpreter panics, the placements found so far are returned.
func placeImages(page pdflib.Page, pageHeight float64) (out []placement) {
	defer func() { _ = recover() }()
	walkContent(page.V.Key("Contents"), page.V.Key("Resources"), identity, pageHeight, 0, &out)
	return out
}

func walkContent(contents, resources pdflib.Value, base matrix, pageHeight float64, depth int, out *[]placement) {
	if depth > maxFormDepth || contents.IsNull() {
		return
	}
	streams := []pdflib.Value{contents}
	if contents.Kind() == pdflib.Array {
		streams = streams[:0]
		for i := 0; i < contents.Len(); i++ {
			streams = append(streams, contents.Index(i))
		}
	}

	ctm := base
	var saved []matrix
	xobjects := resources.Key("XObject")
	for _, strm := range streams {
		pdflib.Interpret(strm, func(stk *pdflib.Stack, op string) {
			switch op {
			case "q":
				saved = append(saved, ctm)
			case "Q":
				if n := len(saved); n > 0 {
					ctm, saved = saved[n-1], saved[:n-1]
				}
			case "cm":
				if stk.Len() < 6 {
					return
				}
				var m matrix
				for i := 5; i >= 0; i-- {
					m[i] = stk.Pop().Float64()
				}
				ctm = m.mul(ctm)
			case "Do":
				if stk.Len() < 1 {
					return
				}
				name := stk.Pop().Name()
				xobj := xobjects.Key(name)
				switch xobj.Key("Subtype").Name() {
				case "Image":
					*out = append(*out, placement{name: name, box: ctm.unitBox(pageHeight)})
				case "Form":
					formCTM := ctm
					if m, ok := matrixFrom(xobj.Key("Matrix")); ok {
						formCTM = m.mul(ctm)
					}
					res := xobj.Key("Resources")
					if res.IsNull() {
						res = resources
					}
					walkContent(xobj, res, formCTM, pageHeight, depth+1, out)
				}
			}
		})
	}
}

// pdfImages reads image bytes with pdfcpu on first use and caches them
// per page, keyed by XObject resource name.
type pdfImages struct {
	path string

	once   sync.Once
	ctx    *model.Context
	ctxErr error

	mu    sync.Mutex
	pages map[int]map[string]layout.Blob
}

func newPDFImages(path string) *pdfImages {
	return &pdfImages{path: path, pages: make(map[int]map[string]layout.Blob)}
}

func (p *pdfImages) context() (*model.Context, error) {
	p.once.Do(func() {
		f, err := os.Open(p.path)
		if err != nil {
			p.ctxErr = err
			return
		}
		defer f.Close()
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		p.ctx, p.ctxErr = api.ReadValidateAndOptimize(f, conf)
		if p.ctxErr != nil {
			p.ctxErr = fmt.Errorf("pdfcpu read: %w", p.ctxErr)
		}
	})
	return p.ctx, p.ctxErr
}

func (p *pdfImages) page(pageNr int) (map[string]layout.Blob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if blobs, ok := p.pages[pageNr]; ok {
		return blobs, nil
	}

	ctx, err := p.context()
	if err != nil {
		return nil, err
	}
	imgs, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("extract images of page %d: %w", pageNr, err)
	}
	blobs := make(map[string]layout.Blob, len(imgs))
	for _, img := range imgs {
		data, err := io.ReadAll(img)
		if err != nil {
			continue
		}
		ext := strings.ToLower(img.FileType)
		blobs[strings.TrimPrefix(img.Name, "/")] = layout.Blob{Data: data, Ext: ext, MIMEType: mimeFor(ext, data)}
	}
	p.pages[pageNr] = blobs
	return blobs, nil
}

// loader returns the lazy byte loader for one placement. When the resource
// name is unknown to pdfcpu and the page has exactly one image, that image
// is used.
func (p *pdfImages) loader(pageNr int, name string) func() (layout.Blob, error) {
	return func() (layout.Blob, error) {
		blobs, err := p.page(pageNr)
		if err != nil {
			return layout.Blob{}, err
		}
		if b, ok := blobs[name]; ok {
			return b, nil
		}
		if len(blobs) == 1 {
			for _, b := range blobs {
				return b, nil
			}
		}
		return layout.Blob{}, fmt.Errorf("image %s not found on page %d", name, pageNr)
	}
}

func mimeFor(ext string, data []byte) string {
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
