package geom

import "math"

// Transform is a uniform scale followed by a translation: p' = p*Scale + (TX,TY).
type Transform struct {
	Scale float64
	TX    float64
	TY    float64
}

// Apply maps a point through the transform.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.Scale + t.TX, y*t.Scale + t.TY
}

// ApplyRect maps a rectangle through the transform.
func (t Transform) ApplyRect(r Rect) Rect {
	x0, y0 := t.Apply(r.X0, r.Y0)
	x1, y1 := t.Apply(r.X1, r.Y1)
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Fit computes the aspect-preserving scale that places src inside dst, centered.
// When allowUpscale is false the scale never exceeds 1. It returns the transform
// mapping src onto the destination rectangle, that rectangle, and false when
// either rectangle has no area.
func Fit(src, dst Rect, allowUpscale bool) (Transform, Rect, bool) {
	if src.IsEmpty() || dst.IsEmpty() {
		return Transform{}, Rect{}, false
	}
	scale := math.Min(dst.Width()/src.Width(), dst.Height()/src.Height())
	if !allowUpscale && scale > 1 {
		scale = 1
	}
	w := src.Width() * scale
	h := src.Height() * scale
	x0 := dst.X0 + (dst.Width()-w)/2
	y0 := dst.Y0 + (dst.Height()-h)/2
	dest := Rect{X0: x0, Y0: y0, X1: x0 + w, Y1: y0 + h}
	t := Transform{
		Scale: scale,
		TX:    x0 - src.X0*scale,
		TY:    y0 - src.Y0*scale,
	}
	return t, dest, true
}
