package layout

import "fmt"

// BBox is an axis-aligned box in page coordinates, y growing downward.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// Top returns the vertical position used for ordering.
func (b BBox) Top() float64 { return b.Y0 }

// Width returns the horizontal extent.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// ContainsPoint reports whether (x, y) lies inside b, edges included.
func (b BBox) ContainsPoint(x, y float64) bool {
	return x >= b.X0 && x <= b.X1 && y >= b.Y0 && y <= b.Y1
}

// Band is the vertical range of a page treated as body content.
type Band struct {
	Top    float64
	Bottom float64
}

// DefaultBand excludes running headers and footers on A4/Letter pages.
var DefaultBand = Band{Top: 70, Bottom: 800}

// Contains reports whether b lies strictly inside the band.
func (band Band) Contains(b BBox) bool {
	return band.Top < b.Y0 && b.Y1 < band.Bottom
}

// TextBlock is a run of one or more lines laid out together.
type TextBlock struct {
	BBox     BBox
	Text     string  // Lines joined by "\n"
	FontSize float64 // Dominant size, 0 if unknown
}

// Blob is the raw payload of an embedded image.
type Blob struct {
	Data     []byte
	Ext      string // Without the leading dot, e.g. "png"
	MIMEType string
}

// Image is an embedded raster placed on a page. Bytes are loaded lazily so a
// broken image only fails when it is reached.
type Image struct {
	BBox  BBox
	Index int    // Position in the page's image list, before filtering
	Name  string // Source-specific identifier (XObject name, src attribute)
	Load  func() (Blob, error)
}

// Table is a rectangular grid of cells; the first row is the header.
type Table struct {
	BBox BBox
	Rows [][]string
}

// Page is one unit of a paginated document.
type Page struct {
	Number int // 1-based
	Width  float64
	Height float64
	// Area overrides the extractor's content band when set. Sources with
	// synthetic coordinates set it to cover everything.
	Area *Band
	// Flow marks a page holding a whole reflowed document, so page-level
	// rules such as TOC exclusion apply to blocks instead.
	Flow bool

	Blocks []TextBlock
	Images []Image
	Tables []Table
}

// Document is a paginated source with positioned content.
type Document interface {
	Name() string
	NumPages() int
	Page(n int) (*Page, error)
	Close() error
}

// Memory is a Document held entirely in memory.
type Memory struct {
	DocName string
	Pages   []*Page
}

func (m *Memory) Name() string  { return m.DocName }
func (m *Memory) NumPages() int { return len(m.Pages) }
func (m *Memory) Close() error  { return nil }

func (m *Memory) Page(n int) (*Page, error) {
	if n < 1 || n > len(m.Pages) {
		return nil, fmt.Errorf("page %d out of range [1,%d]", n, len(m.Pages))
	}
	return m.Pages[n-1], nil
}

// Unbounded is a band that accepts every element.
func Unbounded() *Band {
	return &Band{Top: -1 << 31, Bottom: 1 << 31}
}
