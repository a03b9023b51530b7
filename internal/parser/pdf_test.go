package parser

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"
)

func grayPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 16)
	}
	img.SetGray(0, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// writeManualPDF renders a two-page manual: a title, a header block with
// body, a separate paragraph, a ruled 2x2 table and an image on page 1, and
// a single line on page 2.
func writeManualPDF(t *testing.T) string {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)

	pdf.AddPage()
	pdf.Text(72, 100, "Police Procedures Manual")
	pdf.Text(72, 200, "3.2 Use of Force")
	pdf.Text(72, 214, "Officers must report every incident.")
	pdf.Text(72, 300, "A separate paragraph.")

	pdf.SetXY(72, 400)
	pdf.CellFormat(120, 20, "Code", "1", 0, "L", false, 0, "")
	pdf.CellFormat(120, 20, "Meaning", "1", 1, "L", false, 0, "")
	pdf.SetX(72)
	pdf.CellFormat(120, 20, "10-4", "1", 0, "L", false, 0, "")
	pdf.CellFormat(120, 20, "Acknowledged", "1", 1, "L", false, 0, "")

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("badge", opts, bytes.NewReader(grayPNG(t)))
	pdf.ImageOptions("badge", 72, 500, 50, 40, false, opts, 0, "")

	pdf.AddPage()
	pdf.Text(72, 120, "Second page text.")

	path := filepath.Join(t.TempDir(), "manual.pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func near(a, b float64) bool { return math.Abs(a-b) < 1.5 }

func TestPDFParser_Layout(t *testing.T) {
	doc, err := Open(writeManualPDF(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()

	if doc.Name() != "manual.pdf" {
		t.Errorf("expected name manual.pdf, got %q", doc.Name())
	}
	if doc.NumPages() != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.NumPages())
	}

	p, err := doc.Page(1)
	if err != nil {
		t.Fatalf("Page(1): %v", err)
	}
	if !near(p.Width, 595.28) || !near(p.Height, 841.89) {
		t.Errorf("expected A4 media box, got %.2fx%.2f", p.Width, p.Height)
	}

	want := []string{
		"Police Procedures Manual",
		"3.2 Use of Force\nOfficers must report every incident.",
		"A separate paragraph.",
	}
	got := blockTexts(p)
	if len(got) != len(want) {
		t.Fatalf("expected %d blocks, got %d: %q", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("block[%d]: expected %q, got %q", i, w, got[i])
		}
	}
	if b := p.Blocks[0]; b.BBox.Y0 < 80 || b.BBox.Y1 > 105 {
		t.Errorf("expected title near y=100 in y-down space, got %+v", b.BBox)
	}
	if !near(p.Blocks[1].FontSize, 12) {
		t.Errorf("expected font size 12, got %v", p.Blocks[1].FontSize)
	}

	if len(p.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(p.Tables))
	}
	tbl := p.Tables[0]
	wantRows := [][]string{{"Code", "Meaning"}, {"10-4", "Acknowledged"}}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %q", tbl.Rows)
	}
	for r := range wantRows {
		for c := range wantRows[r] {
			if tbl.Rows[r][c] != wantRows[r][c] {
				t.Errorf("cell[%d][%d]: expected %q, got %q", r, c, wantRows[r][c], tbl.Rows[r][c])
			}
		}
	}
	if !near(tbl.BBox.Y0, 400) || !near(tbl.BBox.Y1, 440) {
		t.Errorf("unexpected table bbox %+v", tbl.BBox)
	}
	for _, b := range got {
		if strings.Contains(b, "Acknowledged") {
			t.Error("table text repeated as a text block")
		}
	}

	if len(p.Images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(p.Images))
	}
	img := p.Images[0]
	if !near(img.BBox.X0, 72) || !near(img.BBox.Y0, 500) || !near(img.BBox.X1, 122) || !near(img.BBox.Y1, 540) {
		t.Errorf("unexpected image bbox %+v", img.BBox)
	}
	blob, err := img.Load()
	if err != nil {
		t.Fatalf("image Load: %v", err)
	}
	if len(blob.Data) == 0 || blob.Ext == "" {
		t.Errorf("expected image bytes with an extension, got %d bytes ext %q", len(blob.Data), blob.Ext)
	}

	p2, err := doc.Page(2)
	if err != nil {
		t.Fatalf("Page(2): %v", err)
	}
	if got := blockTexts(p2); len(got) != 1 || got[0] != "Second page text." {
		t.Errorf("unexpected page 2 blocks %q", got)
	}
	if len(p2.Images) != 0 || len(p2.Tables) != 0 {
		t.Error("expected no images or tables on page 2")
	}
}

func TestPDFParser_PageOutOfRange(t *testing.T) {
	doc, err := Open(writeManualPDF(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close()
	if _, err := doc.Page(3); err == nil {
		t.Error("expected error for page past the end")
	}
}

func TestPDFParser_NotAPDF(t *testing.T) {
	if _, err := Open(writeFile(t, "fake.pdf", "this is not a pdf")); err == nil {
		t.Fatal("expected error opening a non-PDF file")
	}
}

func TestMatrixUnitBox(t *testing.T) {
	// 50x40 image at (72, 302) in PDF user space on an 842pt page.
	m := matrix{50, 0, 0, 40, 72, 302}
	b := m.unitBox(842)
	if !near(b.X0, 72) || !near(b.X1, 122) || !near(b.Y0, 500) || !near(b.Y1, 540) {
		t.Errorf("unexpected box %+v", b)
	}

	// Translation after scaling composes in PDF order.
	scaled := matrix{2, 0, 0, 2, 0, 0}.mul(matrix{1, 0, 0, 1, 10, 20})
	if x, y := scaled.apply(1, 1); x != 12 || y != 22 {
		t.Errorf("expected (12, 22), got (%v, %v)", x, y)
	}
}

func TestClusterEdges(t *testing.T) {
	got := clusterEdges([]float64{72, 192, 72.5, 191.2, 312})
	want := []float64{72, 191.2, 312}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("edge %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
