// Package crop detects the visible content of a page and plans how to rescale
// it so the page margins shrink to a fixed width.
package crop

import (
	"math"

	"github.com/local/pdfimposer/internal/geom"
)

// RegionKind tells text regions from vector-drawing regions.
type RegionKind int

const (
	TextRegion RegionKind = iota
	DrawingRegion
)

func (k RegionKind) String() string {
	if k == DrawingRegion {
		return "drawing"
	}
	return "text"
}

// Region is one block of visible content on a page.
type Region struct {
	Kind RegionKind
	Rect geom.Rect
}

// Bounds is the result of content detection: either Detected with a rectangle
// or NotFound. A page that could not be analyzed is also NotFound.
type Bounds struct {
	Rect  geom.Rect
	Found bool
}

// NotFound is the zero Bounds.
var NotFound = Bounds{}

// Detected wraps a content rectangle.
func Detected(r geom.Rect) Bounds { return Bounds{Rect: r, Found: true} }

// DetectBounds returns the union rectangle of all regions.
func DetectBounds(regions []Region) Bounds {
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	folded := 0
	for _, r := range regions {
		x0 = math.Min(x0, r.Rect.X0)
		y0 = math.Min(y0, r.Rect.Y0)
		x1 = math.Max(x1, r.Rect.X1)
		y1 = math.Max(y1, r.Rect.Y1)
		folded++
	}
	if folded == 0 {
		return NotFound
	}
	return Detected(geom.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1})
}
