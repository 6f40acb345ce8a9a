// Package booklet computes page ordering for 2-up saddle-stitched booklets.
//
// One physical sheet carries four logical pages: two on the front side and two
// on the back. After printing double-sided, stacking the sheets and folding them
// in half, the logical pages read in order.
package booklet

import (
	"strconv"

	"github.com/local/pdfimposer/internal/apperr"
)

// PagesPerSheet is the number of logical pages on one folded sheet.
const PagesPerSheet = 4

// Slot is a booklet position: either a 0-based page index or Blank.
type Slot int

// Blank marks a padding position with no source page.
const Blank Slot = -1

func (s Slot) IsBlank() bool { return s < 0 }

// Index returns the referenced page index. Only meaningful when !IsBlank().
func (s Slot) Index() int { return int(s) }

func (s Slot) String() string {
	if s.IsBlank() {
		return "blank"
	}
	return strconv.Itoa(int(s))
}

// PadCount returns the smallest multiple of 4 that is >= n.
func PadCount(n int) (int, error) {
	if n < 0 {
		return 0, apperr.Invalid("booklet.PadCount", n, "page count must not be negative")
	}
	return (n + PagesPerSheet - 1) / PagesPerSheet * PagesPerSheet, nil
}

// Order returns the physical reading order for a padded page count: per sheet,
// ascending, the emitted indices are end, start, start+1, end-1. Group maps
// them onto the sheet's front and back halves.
func Order(padded int) ([]int, error) {
	if padded < 0 || padded%PagesPerSheet != 0 {
		return nil, apperr.Invalid("booklet.Order", padded, "number of pages must be a non-negative multiple of 4")
	}
	order := make([]int, 0, padded)
	for sheet := 0; sheet < padded/PagesPerSheet; sheet++ {
		start := 2 * sheet
		end := padded - 1 - 2*sheet
		order = append(order, end, start, start+1, end-1)
	}
	return order, nil
}

// PaddedOrder pads n up to a multiple of 4 and returns the booklet order with
// every padding position replaced by Blank.
func PaddedOrder(n int) ([]Slot, error) {
	padded, err := PadCount(n)
	if err != nil {
		return nil, err
	}
	order, err := Order(padded)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, len(order))
	for i, idx := range order {
		if idx >= n {
			slots[i] = Blank
			continue
		}
		slots[i] = Slot(idx)
	}
	return slots, nil
}
