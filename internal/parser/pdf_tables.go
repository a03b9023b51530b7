package parser

import (
	"math"
	"sort"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/manualgest/internal/layout"
)

const (
	minCellSize = 4.0
	edgeTol     = 2.0
	// rects covering more than this share of the page are backgrounds.
	maxCellArea = 0.8
)

// findTables rebuilds ruled tables from the page's rectangles. Rectangles
// that touch form one table; their left and top edges define the grid.
// Glyphs whose center falls inside a cell are moved into it and marked
// taken.
func findTables(rects []pdflib.Rect, glyphs []glyph, pageWidth, pageHeight float64) []layout.Table {
	boxes := cellBoxes(rects, pageWidth, pageHeight)
	if len(boxes) < 2 {
		return nil
	}

	var tables []layout.Table
	for _, group := range touchingGroups(boxes) {
		if len(group) < 2 {
			continue
		}
		xs := make([]float64, 0, len(group))
		ys := make([]float64, 0, len(group))
		for _, b := range group {
			xs = append(xs, b.X0)
			ys = append(ys, b.Y0)
		}
		cols := clusterEdges(xs)
		rows := clusterEdges(ys)

		cells := make([][][]glyph, len(rows))
		for i := range cells {
			cells[i] = make([][]glyph, len(cols))
		}
		bbox := group[0]
		for _, b := range group {
			bbox = bbox.Union(b)
			r, c := nearestEdge(rows, b.Y0), nearestEdge(cols, b.X0)
			for i := range glyphs {
				if glyphs[i].taken {
					continue
				}
				if x, y := glyphs[i].center(); b.ContainsPoint(x, y) {
					glyphs[i].taken = true
					cells[r][c] = append(cells[r][c], glyphs[i])
				}
			}
		}

		grid := make([][]string, len(rows))
		for r := range cells {
			grid[r] = make([]string, len(cols))
			for c := range cells[r] {
				grid[r][c] = cellText(cells[r][c])
			}
		}
		tables = append(tables, layout.Table{BBox: bbox, Rows: grid})
	}
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].BBox.Y0 < tables[j].BBox.Y0 })
	return tables
}

// cellBoxes normalizes rectangles into y-down boxes and drops rules,
// specks and page backgrounds.
func cellBoxes(rects []pdflib.Rect, pageWidth, pageHeight float64) []layout.BBox {
	pageArea := pageWidth * pageHeight
	var out []layout.BBox
	for _, r := range rects {
		x0, x1 := math.Min(r.Min.X, r.Max.X), math.Max(r.Min.X, r.Max.X)
		y0, y1 := math.Min(r.Min.Y, r.Max.Y), math.Max(r.Min.Y, r.Max.Y)
		b := layout.BBox{X0: x0, Y0: pageHeight - y1, X1: x1, Y1: pageHeight - y0}
		if b.Width() < minCellSize || b.Height() < minCellSize {
			continue
		}
		if pageArea > 0 && b.Width()*b.Height() > maxCellArea*pageArea {
			continue
		}
		out = append(out, b)
	}
	return out
}

func touches(a, b layout.BBox) bool {
	return a.X0 <= b.X1+edgeTol && b.X0 <= a.X1+edgeTol &&
		a.Y0 <= b.Y1+edgeTol && b.Y0 <= a.Y1+edgeTol
}

// touchingGroups returns connected components of the touch relation.
func touchingGroups(boxes []layout.BBox) [][]layout.BBox {
	parent := make([]int, len(boxes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if touches(boxes[i], boxes[j]) {
				parent[find(i)] = find(j)
			}
		}
	}

	index := map[int]int{}
	var groups [][]layout.BBox
	for i, b := range boxes {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], b)
	}
	return groups
}

// clusterEdges sorts coordinates and merges those within edgeTol.
func clusterEdges(vals []float64) []float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	var edges []float64
	for _, v := range sorted {
		if len(edges) == 0 || v-edges[len(edges)-1] > edgeTol {
			edges = append(edges, v)
		}
	}
	return edges
}

func nearestEdge(edges []float64, v float64) int {
	best, dist := 0, math.Inf(1)
	for i, e := range edges {
		if d := math.Abs(e - v); d < dist {
			best, dist = i, d
		}
	}
	return best
}
