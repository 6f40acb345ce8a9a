package booklet

import "github.com/local/pdfimposer/internal/apperr"

// Sheet holds the four logical pages printed on one physical sheet, named by
// where they land when the side is viewed face up.
type Sheet struct {
	Number     int
	LeftFront  Slot
	RightFront Slot
	LeftBack   Slot
	RightBack  Slot
}

// Blanks counts the blank positions on the sheet.
func (s Sheet) Blanks() int {
	n := 0
	for _, slot := range []Slot{s.LeftFront, s.RightFront, s.LeftBack, s.RightBack} {
		if slot.IsBlank() {
			n++
		}
	}
	return n
}

// Group splits a booklet order into sheets. Each group of four is read as
// front left, front right, back left, back right, which puts the last page on
// the left of the outer front. The order comes from PaddedOrder, so a length
// that is not a multiple of 4 means the generator is broken.
func Group(order []Slot) ([]Sheet, error) {
	if len(order)%PagesPerSheet != 0 {
		return nil, apperr.Invariant("booklet.Group", "booklet order length %d is not a multiple of 4", len(order))
	}
	sheets := make([]Sheet, 0, len(order)/PagesPerSheet)
	for i := 0; i < len(order); i += PagesPerSheet {
		sheets = append(sheets, Sheet{
			Number:     i / PagesPerSheet,
			LeftFront:  order[i],
			RightFront: order[i+1],
			LeftBack:   order[i+2],
			RightBack:  order[i+3],
		})
	}
	return sheets, nil
}
