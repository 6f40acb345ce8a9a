// Package document defines the collaborators the imposition and cropping logic
// talks to: a readable source document and a renderer that builds output pages.
package document

import (
	"context"
	"image"

	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/geom"
)

// Source is an opened, read-only paginated document. Page indices are 0-based.
// Page accessors may be called from several goroutines.
type Source interface {
	NumPages() int
	PageRect(i int) (geom.Rect, error)
	// Regions returns the text and drawing regions of page i.
	Regions(i int) ([]crop.Region, error)
	// Raster renders page i at the given resolution. The image covers PageRect(i).
	Raster(i int, dpi float64) (image.Image, error)
	Close() error
}

// FileBacked is implemented by sources read from a file on disk.
type FileBacked interface {
	Path() string
}

// Opener opens a document path into a Source.
type Opener interface {
	Open(path string) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Source, error)

func (f OpenerFunc) Open(path string) (Source, error) { return f(path) }

// Placement puts (part of) one source page onto an output page. Clip nil means
// the whole source page. Transform maps source coordinates onto Dest.
type Placement struct {
	Page      int
	Clip      *geom.Rect
	Dest      geom.Rect
	Transform geom.Transform
}

// OutputPage is a page to be built: its size and the source content placed on it.
type OutputPage struct {
	Size       geom.Size
	Placements []Placement
}

// Surface is an output page under construction.
type Surface interface {
	Size() geom.Size
}

// Renderer places source page content, optionally clipped to a rectangle, into
// a destination rectangle of a destination page, and serializes finished pages.
// Implementations may rasterize or merge vector content. EndPage is called once
// all placements of a page are done; no Place follows it.
type Renderer interface {
	NewPage(size geom.Size) (Surface, error)
	Place(dst Surface, src Source, p Placement) error
	EndPage(s Surface) error
	Save(ctx context.Context, path string, pages []Surface) error
}

// SelectiveRenderer is a Renderer that can only draw from some sources.
type SelectiveRenderer interface {
	Renderer
	Accepts(src Source) bool
}

// Build renders every output page onto fresh surfaces, in order. It checks ctx
// between pages.
func Build(ctx context.Context, r Renderer, src Source, pages []OutputPage) ([]Surface, error) {
	out := make([]Surface, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := r.NewPage(p.Size)
		if err != nil {
			return nil, err
		}
		for _, pl := range p.Placements {
			if err := r.Place(s, src, pl); err != nil {
				return nil, err
			}
		}
		if err := r.EndPage(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
