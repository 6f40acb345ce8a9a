package crop

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfimposer/internal/apperr"
	"github.com/local/pdfimposer/internal/geom"
)

var letter = geom.Rect{X1: 612, Y1: 792}

func TestDetectBoundsEmpty(t *testing.T) {
	b := DetectBounds(nil)
	assert.False(t, b.Found)
	assert.Equal(t, NotFound, b)
}

func TestDetectBoundsUnion(t *testing.T) {
	b := DetectBounds([]Region{
		{Kind: TextRegion, Rect: geom.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}},
		{Kind: DrawingRegion, Rect: geom.Rect{X0: 5, Y0: 5, X1: 20, Y1: 20}},
	})
	require.True(t, b.Found)
	assert.Equal(t, geom.Rect{X0: 0, Y0: 0, X1: 20, Y1: 20}, b.Rect)
}

func TestDetectBoundsSingleRegion(t *testing.T) {
	r := geom.Rect{X0: 72, Y0: 90, X1: 540, Y1: 700}
	b := DetectBounds([]Region{{Kind: TextRegion, Rect: r}})
	assert.Equal(t, Detected(r), b)
}

func TestRescaleExample(t *testing.T) {
	plan, err := Rescale(Detected(geom.Rect{X1: 100, Y1: 50}), letter, 10, true)
	require.NoError(t, err)
	require.False(t, plan.PassThrough)

	assert.Equal(t, geom.Rect{X0: 10, Y0: 10, X1: 602, Y1: 782}, plan.Target)
	// the 592pt wide target limits the scale
	assert.InDelta(t, 5.92, plan.Transform.Scale, 1e-9)
	assert.InDelta(t, 592, plan.Dest.Width(), 1e-9)
	assert.InDelta(t, 296, plan.Dest.Height(), 1e-9)
	assert.InDelta(t, 10, plan.Dest.X0, 1e-9)
	// centered vertically in the 772pt target
	assert.InDelta(t, 248, plan.Dest.Y0, 1e-9)
	assert.Equal(t, geom.Rect{X1: 100, Y1: 50}, plan.Clip)
}

func TestRescaleMapsClipOntoDest(t *testing.T) {
	bbox := geom.Rect{X0: 100, Y0: 200, X1: 300, Y1: 500}
	plan, err := Rescale(Detected(bbox), letter, 20, true)
	require.NoError(t, err)
	got := plan.Transform.ApplyRect(bbox)
	assert.InDelta(t, plan.Dest.X0, got.X0, 1e-9)
	assert.InDelta(t, plan.Dest.Y0, got.Y0, 1e-9)
	assert.InDelta(t, plan.Dest.X1, got.X1, 1e-9)
	assert.InDelta(t, plan.Dest.Y1, got.Y1, 1e-9)
	assert.LessOrEqual(t, plan.Dest.X1, plan.Target.X1+1e-9)
	assert.LessOrEqual(t, plan.Dest.Y1, plan.Target.Y1+1e-9)
}

func TestRescaleNoUpscale(t *testing.T) {
	plan, err := Rescale(Detected(geom.Rect{X1: 100, Y1: 50}), letter, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, plan.Transform.Scale)
	assert.InDelta(t, 100, plan.Dest.Width(), 1e-9)
	assert.InDelta(t, 10+(592-100)/2.0, plan.Dest.X0, 1e-9)
}

func TestRescalePassThrough(t *testing.T) {
	tests := []struct {
		name   string
		b      Bounds
		margin float64
		reason string
	}{
		{"no content", NotFound, 10, ReasonNoContent},
		{"zero width box", Detected(geom.Rect{X0: 5, Y0: 5, X1: 5, Y1: 90}), 10, ReasonEmptyContent},
		{"zero height box", Detected(geom.Rect{X0: 5, Y0: 5, X1: 90, Y1: 5}), 10, ReasonEmptyContent},
		{"margin eats the page", Detected(geom.Rect{X1: 100, Y1: 50}), 306, ReasonNoTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Rescale(tt.b, letter, tt.margin, true)
			require.NoError(t, err)
			assert.True(t, plan.PassThrough)
			assert.Equal(t, tt.reason, plan.Reason)
		})
	}
}

func TestRescaleRejectsBadMargin(t *testing.T) {
	for _, m := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := Rescale(NotFound, letter, m, true)
		assert.True(t, apperr.IsInvalidArgument(err), "margin %v", m)
	}
}

func whitePage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func fill(img *image.RGBA, r image.Rectangle) {
	draw.Draw(img, r, image.NewUniform(color.Black), image.Point{}, draw.Src)
}

func TestScanRegionsBlankPage(t *testing.T) {
	img := whitePage(61, 79)
	assert.Empty(t, ScanRegions(img, letter, DefaultScanOptions()))
	assert.False(t, DetectBounds(ScanRegions(img, letter, DefaultScanOptions())).Found)
}

func TestScanRegionsClassifiesAndConverts(t *testing.T) {
	// 612x792 points rendered at 1 px per point.
	img := whitePage(612, 792)
	fill(img, image.Rect(100, 100, 110, 112)) // small glyph-like blob
	fill(img, image.Rect(200, 300, 400, 500)) // large figure
	img.Set(5, 5, color.Black)                // single-pixel speck

	regions := ScanRegions(img, letter, DefaultScanOptions())
	require.Len(t, regions, 2)

	var text, drawing []Region
	for _, r := range regions {
		if r.Kind == DrawingRegion {
			drawing = append(drawing, r)
		} else {
			text = append(text, r)
		}
	}
	require.Len(t, text, 1)
	require.Len(t, drawing, 1)
	assert.Equal(t, geom.Rect{X0: 100, Y0: 100, X1: 110, Y1: 112}, text[0].Rect)
	assert.Equal(t, geom.Rect{X0: 200, Y0: 300, X1: 400, Y1: 500}, drawing[0].Rect)

	b := DetectBounds(regions)
	assert.Equal(t, geom.Rect{X0: 100, Y0: 100, X1: 400, Y1: 500}, b.Rect)
}

func TestScanRegionsScalesToPagePoints(t *testing.T) {
	// Half resolution: 1 px = 2 pt.
	img := whitePage(306, 396)
	fill(img, image.Rect(10, 20, 30, 40))
	regions := ScanRegions(img, letter, DefaultScanOptions())
	require.Len(t, regions, 1)
	assert.Equal(t, geom.Rect{X0: 20, Y0: 40, X1: 60, Y1: 80}, regions[0].Rect)
}

func TestScanRegionsDiagonalPixelsJoin(t *testing.T) {
	img := whitePage(50, 50)
	img.Set(10, 10, color.Black)
	img.Set(11, 11, color.Black)
	img.Set(12, 12, color.Black)
	regions := ScanRegions(img, geom.Rect{X1: 50, Y1: 50}, DefaultScanOptions())
	require.Len(t, regions, 1)
	assert.Equal(t, geom.Rect{X0: 10, Y0: 10, X1: 13, Y1: 13}, regions[0].Rect)
}
