package imagerender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/geom"
	"github.com/local/pdfimposer/internal/pdfout"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Format is the image encoding used for finished pages.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// MaxSourceDPI caps the resolution source pages are rendered at when content
// is enlarged.
const MaxSourceDPI = 1200

// PageWriter serializes encoded pages. *pdfout.Writer satisfies it.
type PageWriter interface {
	WriteImagePages(ctx context.Context, path string, pages []pdfout.ImagePage) error
}

// Options configures the raster renderer.
type Options struct {
	DPI     float64
	Format  Format
	Quality int
	Color   ColorMode
}

// Raster is a rasterize-and-stamp document.Renderer: source pages are rendered
// to bitmaps and scaled onto a bitmap per output page.
type Raster struct {
	opts   Options
	writer PageWriter
}

// New creates a raster renderer writing through w.
func New(opts Options, w PageWriter) *Raster {
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}
	if opts.Color == "" {
		opts.Color = ColorRGB
	}
	return &Raster{opts: opts, writer: w}
}

type page struct {
	size geom.Size
	img  *image.RGBA
	data []byte
}

func (p *page) Size() geom.Size { return p.size }

var errFinished = errors.New("page already finished")

// NewPage allocates a white canvas for a page of the given size.
func (r *Raster) NewPage(size geom.Size) (document.Surface, error) {
	w := int(math.Ceil(size.Width * r.opts.DPI / 72))
	h := int(math.Ceil(size.Height * r.opts.DPI / 72))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid page size %.2fx%.2f", size.Width, size.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return &page{size: size, img: img}, nil
}

// Place renders the source page and scales its Clip region (or the whole page)
// into p.Dest on the canvas.
func (r *Raster) Place(dst document.Surface, src document.Source, p document.Placement) error {
	pg, ok := dst.(*page)
	if !ok {
		return fmt.Errorf("raster renderer cannot draw on %T", dst)
	}
	if pg.img == nil {
		return errFinished
	}

	rect, err := src.PageRect(p.Page)
	if err != nil {
		return err
	}
	clip := rect
	if p.Clip != nil {
		clip = *p.Clip
	}

	// Render the source so it lands roughly 1:1 on the canvas.
	dpi := r.opts.DPI
	if p.Transform.Scale > 1 {
		dpi = math.Min(dpi*p.Transform.Scale, MaxSourceDPI)
	}
	img, err := src.Raster(p.Page, dpi)
	if err != nil {
		return fmt.Errorf("failed to render page %d: %w", p.Page+1, err)
	}

	sr := sourcePixels(img.Bounds(), rect, clip)
	dr := r.canvasPixels(pg, p.Dest)
	if sr.Empty() || dr.Empty() {
		log.Debug().Int("page", p.Page+1).Msg("placement outside canvas; skipped")
		return nil
	}

	xdraw.CatmullRom.Scale(pg.img, dr, img, sr, xdraw.Over, nil)

	log.Debug().
		Int("page", p.Page+1).
		Float64("dpi", dpi).
		Str("clip", clip.String()).
		Str("dest", p.Dest.String()).
		Msg("placed page")
	return nil
}

// EndPage encodes the canvas and releases the bitmap.
func (r *Raster) EndPage(s document.Surface) error {
	pg, ok := s.(*page)
	if !ok {
		return fmt.Errorf("raster renderer cannot finish %T", s)
	}
	if pg.img == nil {
		return errFinished
	}

	var final image.Image = pg.img
	if r.opts.Color == ColorGray {
		gray := image.NewGray(pg.img.Bounds())
		draw.Draw(gray, gray.Bounds(), pg.img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	switch r.opts.Format {
	case FormatPNG:
		if err := png.Encode(&buf, final); err != nil {
			return fmt.Errorf("failed to encode PNG: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
			return fmt.Errorf("failed to encode JPEG: %w", err)
		}
	}
	pg.data = buf.Bytes()
	pg.img = nil

	log.Debug().
		Int("size", len(pg.data)).
		Str("format", string(r.opts.Format)).
		Str("color", string(r.opts.Color)).
		Msg("encoded page")
	return nil
}

// Save writes finished pages to path.
func (r *Raster) Save(ctx context.Context, path string, pages []document.Surface) error {
	out := make([]pdfout.ImagePage, 0, len(pages))
	for i, s := range pages {
		pg, ok := s.(*page)
		if !ok {
			return fmt.Errorf("raster renderer cannot save %T", s)
		}
		if pg.data == nil {
			return fmt.Errorf("page %d was not finished", i+1)
		}
		out = append(out, pdfout.ImagePage{Size: pg.size, Data: pg.data})
	}
	return r.writer.WriteImagePages(ctx, path, out)
}

// sourcePixels maps clip (page coordinates) to pixels of a raster covering page.
func sourcePixels(b image.Rectangle, page, clip geom.Rect) image.Rectangle {
	sx := float64(b.Dx()) / page.Width()
	sy := float64(b.Dy()) / page.Height()
	r := image.Rect(
		b.Min.X+int(math.Floor((clip.X0-page.X0)*sx)),
		b.Min.Y+int(math.Floor((clip.Y0-page.Y0)*sy)),
		b.Min.X+int(math.Ceil((clip.X1-page.X0)*sx)),
		b.Min.Y+int(math.Ceil((clip.Y1-page.Y0)*sy)),
	)
	return r.Intersect(b)
}

func (r *Raster) canvasPixels(pg *page, dest geom.Rect) image.Rectangle {
	k := r.opts.DPI / 72
	dr := image.Rect(
		int(math.Round(dest.X0*k)),
		int(math.Round(dest.Y0*k)),
		int(math.Round(dest.X1*k)),
		int(math.Round(dest.Y1*k)),
	)
	return dr.Intersect(pg.img.Bounds())
}
