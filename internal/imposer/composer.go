// Package imposer lays logical pages out on the physical sheet sides of a 2-up booklet.
package imposer

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfimposer/internal/apperr"
	"github.com/local/pdfimposer/internal/booklet"
	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/geom"
)

// Side is the face of a sheet.
type Side int

const (
	Front Side = iota
	Back
)

func (s Side) String() string {
	if s == Back {
		return "back"
	}
	return "front"
}

// Geometry gives access to source page sizes. document.Source satisfies it.
type Geometry interface {
	NumPages() int
	PageRect(i int) (geom.Rect, error)
}

// SheetSide is one printed side of a sheet: landscape, split into a left and a
// right half. A nil slot is left blank.
type SheetSide struct {
	Sheet int
	Side  Side
	Size  geom.Size
	Left  *document.Placement
	Right *document.Placement
}

// OutputPage converts the side into a page for a renderer.
func (s SheetSide) OutputPage() document.OutputPage {
	p := document.OutputPage{Size: s.Size}
	if s.Left != nil {
		p.Placements = append(p.Placements, *s.Left)
	}
	if s.Right != nil {
		p.Placements = append(p.Placements, *s.Right)
	}
	return p
}

// Composer builds sheet sides from a booklet order. The sheet size is taken
// from ReferencePage and applied to the whole document.
type Composer struct {
	ReferencePage int
}

// Compose returns two sides (front, back) per sheet, in sheet order.
func (c Composer) Compose(order []booklet.Slot, pages Geometry) ([]SheetSide, error) {
	sheets, err := booklet.Group(order)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, nil
	}

	n := pages.NumPages()
	if c.ReferencePage < 0 || c.ReferencePage >= n {
		return nil, apperr.Invalid("imposer.Compose", c.ReferencePage, "reference page out of range for %d pages", n)
	}
	ref, err := pages.PageRect(c.ReferencePage)
	if err != nil {
		return nil, err
	}
	size := ref.Size().Landscape()
	left := geom.Rect{X0: 0, Y0: 0, X1: size.Width / 2, Y1: size.Height}
	right := geom.Rect{X0: size.Width / 2, Y0: 0, X1: size.Width, Y1: size.Height}

	place := func(slot booklet.Slot, area geom.Rect) (*document.Placement, error) {
		if slot.IsBlank() {
			return nil, nil
		}
		idx := slot.Index()
		if idx >= n {
			return nil, apperr.Invariant("imposer.Compose", "booklet slot %d beyond page count %d", idx, n)
		}
		src, err := pages.PageRect(idx)
		if err != nil {
			return nil, err
		}
		if !sameSize(src, ref) {
			log.Warn().
				Int("page", idx).
				Float64("width", src.Width()).
				Float64("height", src.Height()).
				Float64("ref_width", ref.Width()).
				Float64("ref_height", ref.Height()).
				Msg("page size differs from reference page")
		}
		t, dest, ok := geom.Fit(src, area, true)
		if !ok {
			log.Warn().Int("page", idx).Msg("page has no area; leaving slot blank")
			return nil, nil
		}
		return &document.Placement{Page: idx, Dest: dest, Transform: t}, nil
	}

	sides := make([]SheetSide, 0, 2*len(sheets))
	for _, sh := range sheets {
		front := SheetSide{Sheet: sh.Number, Side: Front, Size: size}
		back := SheetSide{Sheet: sh.Number, Side: Back, Size: size}
		if front.Left, err = place(sh.LeftFront, left); err != nil {
			return nil, err
		}
		if front.Right, err = place(sh.RightFront, right); err != nil {
			return nil, err
		}
		if back.Left, err = place(sh.LeftBack, left); err != nil {
			return nil, err
		}
		if back.Right, err = place(sh.RightBack, right); err != nil {
			return nil, err
		}
		sides = append(sides, front, back)
	}
	return sides, nil
}

func sameSize(a, b geom.Rect) bool {
	return math.Abs(a.Width()-b.Width()) < 0.5 && math.Abs(a.Height()-b.Height()) < 0.5
}
