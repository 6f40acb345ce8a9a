package crop

import (
	"math"

	"github.com/local/pdfimposer/internal/apperr"
	"github.com/local/pdfimposer/internal/geom"
)

// Pass-through reasons reported in Plan.Reason.
const (
	ReasonNoContent    = "no content"
	ReasonEmptyContent = "empty content box"
	ReasonNoTarget     = "margin leaves no target area"
)

// Plan describes how one page is rebuilt. A pass-through plan copies the source
// page unchanged. Otherwise the Clip region of the source page is scaled by
// Transform into Dest; everything outside Clip is dropped.
type Plan struct {
	PassThrough bool
	Reason      string
	Clip        geom.Rect
	Target      geom.Rect
	Dest        geom.Rect
	Transform   geom.Transform
}

// Rescale plans the placement of detected content inside page inset by margin.
func Rescale(b Bounds, page geom.Rect, margin float64, allowUpscale bool) (Plan, error) {
	if margin < 0 || math.IsNaN(margin) || math.IsInf(margin, 0) {
		return Plan{}, apperr.Invalid("crop.Rescale", margin, "margin must be a finite non-negative number of points")
	}
	target := page.Inset(margin)
	if !b.Found {
		return Plan{PassThrough: true, Reason: ReasonNoContent, Target: target}, nil
	}
	if b.Rect.IsEmpty() {
		return Plan{PassThrough: true, Reason: ReasonEmptyContent, Target: target}, nil
	}
	if target.IsEmpty() {
		return Plan{PassThrough: true, Reason: ReasonNoTarget, Target: target}, nil
	}

	t, dest, _ := geom.Fit(b.Rect, target, allowUpscale)
	return Plan{
		Clip:      b.Rect,
		Target:    target,
		Dest:      dest,
		Transform: t,
	}, nil
}
