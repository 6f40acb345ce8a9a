// Package geom holds the page geometry shared by cropping and imposition.
// All values are in points (1/72 inch) with a top-left origin and y growing down.
package geom

import (
	"fmt"
	"math"
)

// Size is a width/height pair in points.
type Size struct {
	Width  float64
	Height float64
}

// Landscape returns the size with the longer edge as width.
func (s Size) Landscape() Size {
	return Size{Width: math.Max(s.Width, s.Height), Height: math.Min(s.Width, s.Height)}
}

// Rect is an axis-aligned rectangle (x0,y0)-(x1,y1).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// RectFromSize returns the rectangle (0,0)-(w,h).
func RectFromSize(s Size) Rect { return Rect{X1: s.Width, Y1: s.Height} }

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }
func (r Rect) Size() Size      { return Size{Width: r.Width(), Height: r.Height()} }

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool { return !(r.Width() > 0 && r.Height() > 0) }

// Union returns the smallest rectangle containing r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Inset shrinks r by m on every side. The result never inverts: an inset that
// would cross over collapses that dimension to zero at the inset origin.
func (r Rect) Inset(m float64) Rect {
	out := Rect{X0: r.X0 + m, Y0: r.Y0 + m, X1: r.X1 - m, Y1: r.Y1 - m}
	if out.X1 < out.X0 {
		out.X1 = out.X0
	}
	if out.Y1 < out.Y0 {
		out.Y1 = out.Y0
	}
	return out
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f,%.2f,%.2f,%.2f)", r.X0, r.Y0, r.X1, r.Y1)
}
