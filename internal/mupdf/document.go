// Package mupdf reads documents through MuPDF (go-fitz): PDF plus the other
// formats MuPDF opens natively (EPUB, XPS, CBZ, FB2, images).
package mupdf

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/geom"
)

// DefaultAnalysisDPI is the resolution pages are rendered at for content analysis.
const DefaultAnalysisDPI = 150.0

// Opener opens documents with go-fitz.
type Opener struct {
	AnalysisDPI float64
	Scan        crop.ScanOptions
}

// NewOpener returns an Opener with the default analysis settings.
func NewOpener() Opener {
	return Opener{AnalysisDPI: DefaultAnalysisDPI, Scan: crop.DefaultScanOptions()}
}

// Open opens path. The returned Source must be closed.
func (o Opener) Open(path string) (document.Source, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	if o.AnalysisDPI <= 0 {
		o.AnalysisDPI = DefaultAnalysisDPI
	}
	log.Debug().Str("file", path).Int("pages", doc.NumPage()).Msg("opened document")
	return &Document{doc: doc, path: path, analysisDPI: o.AnalysisDPI, scan: o.Scan}, nil
}

// Document is a go-fitz backed document.Source.
type Document struct {
	doc         *fitz.Document
	path        string
	analysisDPI float64
	scan        crop.ScanOptions
}

func (d *Document) NumPages() int { return d.doc.NumPage() }

// Path returns the file the document was opened from.
func (d *Document) Path() string { return d.path }

func (d *Document) checkPage(i int) error {
	if i < 0 || i >= d.doc.NumPage() {
		return fmt.Errorf("page %d out of range (document has %d pages)", i+1, d.doc.NumPage())
	}
	return nil
}

// PageRect returns the page bounds in points.
func (d *Document) PageRect(i int) (geom.Rect, error) {
	if err := d.checkPage(i); err != nil {
		return geom.Rect{}, err
	}
	b, err := d.doc.Bound(i)
	if err != nil {
		return geom.Rect{}, fmt.Errorf("failed to read bounds of page %d: %w", i+1, err)
	}
	return geom.Rect{
		X0: float64(b.Min.X),
		Y0: float64(b.Min.Y),
		X1: float64(b.Max.X),
		Y1: float64(b.Max.Y),
	}, nil
}

// Raster renders page i at dpi (go-fitz uses 0-based indexing).
func (d *Document) Raster(i int, dpi float64) (image.Image, error) {
	if err := d.checkPage(i); err != nil {
		return nil, err
	}
	img, err := d.doc.ImageDPI(i, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
	}
	return img, nil
}

// Regions renders page i at the analysis resolution and returns the content
// regions found on it.
func (d *Document) Regions(i int) ([]crop.Region, error) {
	rect, err := d.PageRect(i)
	if err != nil {
		return nil, err
	}
	img, err := d.Raster(i, d.analysisDPI)
	if err != nil {
		return nil, err
	}
	regions := crop.ScanRegions(img, rect, d.scan)

	drawings := 0
	for _, r := range regions {
		if r.Kind == crop.DrawingRegion {
			drawings++
		}
	}
	log.Debug().
		Int("page", i+1).
		Int("regions", len(regions)).
		Int("drawings", drawings).
		Float64("dpi", d.analysisDPI).
		Msg("analyzed page content")
	return regions, nil
}

// Close releases the document.
func (d *Document) Close() error { return d.doc.Close() }
