package crop

import (
	"image"
	"image/draw"

	"github.com/local/pdfimposer/internal/geom"
)

const (
	// DefaultThreshold separates content from background (0-255, pixels darker
	// than this count as content).
	DefaultThreshold = 245

	// DefaultMinPixels drops isolated specks.
	DefaultMinPixels = 2

	// DefaultMinGraphicsSize is 2 cm in points. Components at least this large on
	// both sides are reported as drawings.
	DefaultMinGraphicsSize = 2.0 / 2.54 * 72
)

// ScanOptions tunes raster region detection.
type ScanOptions struct {
	Threshold       uint8
	MinPixels       int
	MinGraphicsSize float64
}

// DefaultScanOptions returns the standard analysis settings.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Threshold:       DefaultThreshold,
		MinPixels:       DefaultMinPixels,
		MinGraphicsSize: DefaultMinGraphicsSize,
	}
}

// component is a connected run of content pixels, in pixel coordinates.
type component struct {
	minX, minY, maxX, maxY int
	pixels                 int
}

// ScanRegions finds content regions on a rendered page. img covers page
// exactly; the returned rectangles are in page coordinates.
func ScanRegions(img image.Image, page geom.Rect, opts ScanOptions) []Region {
	b := img.Bounds()
	if b.Empty() || page.IsEmpty() {
		return nil
	}
	if opts.MinPixels <= 0 {
		opts.MinPixels = 1
	}

	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, v := range row {
			mask[y*w+x] = v < opts.Threshold
		}
	}

	sx := page.Width() / float64(w)
	sy := page.Height() / float64(h)

	var regions []Region
	for _, c := range components(mask, w, h, opts.MinPixels) {
		r := geom.Rect{
			X0: page.X0 + float64(c.minX)*sx,
			Y0: page.Y0 + float64(c.minY)*sy,
			X1: page.X0 + float64(c.maxX+1)*sx,
			Y1: page.Y0 + float64(c.maxY+1)*sy,
		}
		kind := TextRegion
		if r.Width() >= opts.MinGraphicsSize && r.Height() >= opts.MinGraphicsSize {
			kind = DrawingRegion
		}
		regions = append(regions, Region{Kind: kind, Rect: r})
	}
	return regions
}

// components labels 8-connected content pixels with an iterative flood fill.
func components(mask []bool, w, h, minPixels int) []component {
	visited := make([]bool, len(mask))
	var out []component
	var stack []int

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		c := component{minX: start % w, minY: start / w, maxX: start % w, maxY: start / w}
		visited[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%w, p/w
			c.pixels++
			if x < c.minX {
				c.minX = x
			}
			if x > c.maxX {
				c.maxX = x
			}
			if y < c.minY {
				c.minY = y
			}
			if y > c.maxY {
				c.maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					q := ny*w + nx
					if mask[q] && !visited[q] {
						visited[q] = true
						stack = append(stack, q)
					}
				}
			}
		}

		if c.pixels >= minPixels {
			out = append(out, c)
		}
	}
	return out
}
