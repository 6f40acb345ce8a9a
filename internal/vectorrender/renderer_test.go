package vectorrender

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfimposer/internal/apperr"
	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/geom"
	"github.com/local/pdfimposer/internal/pdfout"
)

// fileSource is a 100x200pt source backed by a file on disk.
type fileSource struct{ path string }

func (s *fileSource) Path() string  { return s.path }
func (s *fileSource) NumPages() int { return 3 }
func (s *fileSource) PageRect(int) (geom.Rect, error) {
	return geom.Rect{X1: 100, Y1: 200}, nil
}
func (s *fileSource) Regions(int) ([]crop.Region, error)       { return nil, nil }
func (s *fileSource) Raster(int, float64) (image.Image, error) { return nil, nil }
func (s *fileSource) Close() error                             { return nil }

// memSource has no file behind it.
type memSource struct{}

func (memSource) NumPages() int                            { return 1 }
func (memSource) PageRect(int) (geom.Rect, error)          { return geom.Rect{X1: 100, Y1: 200}, nil }
func (memSource) Regions(int) ([]crop.Region, error)       { return nil, nil }
func (memSource) Raster(int, float64) (image.Image, error) { return nil, nil }
func (memSource) Close() error                             { return nil }

func writeSource(t *testing.T, dir, name string, n int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(20, 40, 80, 160), image.NewUniform(color.Black), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	pages := make([]pdfout.ImagePage, n)
	for i := range pages {
		pages[i] = pdfout.ImagePage{Size: geom.Size{Width: 100, Height: 200}, Data: buf.Bytes()}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, pdfout.New().WriteImagePages(context.Background(), path, pages))
	return path
}

func pageContent(t *testing.T, path string, pageNr int) string {
	t.Helper()
	ctx, err := api.ReadContextFile(path)
	require.NoError(t, err)
	d, _, _, err := ctx.PageDict(pageNr, false)
	require.NoError(t, err)
	bb, err := ctx.PageContent(d, pageNr)
	require.NoError(t, err)
	return string(bb)
}

func finish(t *testing.T, r *Vector, size geom.Size, src document.Source, pls ...document.Placement) document.Surface {
	t.Helper()
	s, err := r.NewPage(size)
	require.NoError(t, err)
	for _, p := range pls {
		require.NoError(t, r.Place(s, src, p))
	}
	require.NoError(t, r.EndPage(s))
	return s
}

func TestAccepts(t *testing.T) {
	dir := t.TempDir()
	r := New(pdfout.New())

	assert.True(t, r.Accepts(&fileSource{path: writeSource(t, dir, "source.pdf", 1)}))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0o644))
	assert.False(t, r.Accepts(&fileSource{path: txt}))
	assert.False(t, r.Accepts(&fileSource{path: filepath.Join(dir, "missing.pdf")}))
	assert.False(t, r.Accepts(memSource{}))
}

func TestSaveCropPages(t *testing.T) {
	dir := t.TempDir()
	src := &fileSource{path: writeSource(t, dir, "source.pdf", 2)}
	r := New(pdfout.New())

	size := geom.Size{Width: 100, Height: 200}
	clip := geom.Rect{X0: 20, Y0: 40, X1: 80, Y1: 160}
	tr := geom.Transform{Scale: 1.5, TX: -20, TY: -40}
	var surfaces []document.Surface
	for i := 0; i < 2; i++ {
		surfaces = append(surfaces, finish(t, r, size, src, document.Placement{
			Page:      i,
			Clip:      &clip,
			Dest:      tr.ApplyRect(clip),
			Transform: tr,
		}))
	}

	out := filepath.Join(dir, "crop.pdf")
	require.NoError(t, r.Save(context.Background(), out, surfaces))

	dims, err := api.PageDimsFile(out)
	require.NoError(t, err)
	require.Len(t, dims, 2)
	for _, d := range dims {
		assert.InDelta(t, 100, d.Width, 0.01)
		assert.InDelta(t, 200, d.Height, 0.01)
	}

	content := pageContent(t, out, 1)
	// Clip (20,40)-(80,160) maps to (10,20)-(100,200); y flips to 0.
	assert.Contains(t, content, "10.0000 0.0000 90.0000 180.0000 re W n")
	assert.Contains(t, content, "1.500000 0 0 1.500000 -20.0000 -60.0000 cm /Fm1 Do Q")
	assert.Contains(t, pageContent(t, out, 2), "/Fm2 Do")
}

func TestSaveBookletSide(t *testing.T) {
	dir := t.TempDir()
	src := &fileSource{path: writeSource(t, dir, "source.pdf", 3)}
	r := New(pdfout.New())

	side := geom.Size{Width: 200, Height: 200}
	left := geom.Transform{Scale: 1}
	right := geom.Transform{Scale: 1, TX: 100}
	s := finish(t, r, side, src,
		document.Placement{Page: 2, Dest: left.ApplyRect(geom.Rect{X1: 100, Y1: 200}), Transform: left},
		document.Placement{Page: 0, Dest: right.ApplyRect(geom.Rect{X1: 100, Y1: 200}), Transform: right},
	)

	out := filepath.Join(dir, "booklet.pdf")
	require.NoError(t, r.Save(context.Background(), out, []document.Surface{s}))

	dims, err := api.PageDimsFile(out)
	require.NoError(t, err)
	require.Len(t, dims, 1)
	assert.InDelta(t, 200, dims[0].Width, 0.01)

	content := pageContent(t, out, 1)
	assert.Contains(t, content, "1.000000 0 0 1.000000 0.0000 0.0000 cm /Fm3 Do Q")
	assert.Contains(t, content, "1.000000 0 0 1.000000 100.0000 0.0000 cm /Fm1 Do Q")
	assert.NotContains(t, content, "re W n", "unclipped placements draw the whole page")
}

func TestSaveBlankPages(t *testing.T) {
	dir := t.TempDir()
	r := New(pdfout.New())
	s := finish(t, r, geom.Size{Width: 300, Height: 150}, nil)

	out := filepath.Join(dir, "blank.pdf")
	require.NoError(t, r.Save(context.Background(), out, []document.Surface{s}))
	dims, err := api.PageDimsFile(out)
	require.NoError(t, err)
	require.Len(t, dims, 1)
	assert.InDelta(t, 300, dims[0].Width, 0.01)
	assert.InDelta(t, 150, dims[0].Height, 0.01)
}

func TestSaveNoPages(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, New(pdfout.New()).Save(context.Background(), out, nil))
	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMixedSourcesFail(t *testing.T) {
	dir := t.TempDir()
	a := &fileSource{path: writeSource(t, dir, "a.pdf", 1)}
	b := &fileSource{path: writeSource(t, dir, "b.pdf", 1)}

	r := New(pdfout.New())
	size := geom.Size{Width: 100, Height: 200}
	full := document.Placement{Dest: geom.Rect{X1: 100, Y1: 200}, Transform: geom.Transform{Scale: 1}}

	s, err := r.NewPage(size)
	require.NoError(t, err)
	require.NoError(t, r.Place(s, a, full))
	assert.Error(t, r.Place(s, b, full), "one page cannot mix two files")

	sa := finish(t, r, size, a, full)
	sb := finish(t, r, size, b, full)
	out := filepath.Join(dir, "mixed.pdf")
	assert.Error(t, r.Save(context.Background(), out, []document.Surface{sa, sb}))
	assert.NoFileExists(t, out)
}

func TestPageLifecycle(t *testing.T) {
	dir := t.TempDir()
	src := &fileSource{path: writeSource(t, dir, "source.pdf", 1)}
	r := New(pdfout.New())

	_, err := r.NewPage(geom.Size{Width: 0, Height: 10})
	assert.Error(t, err)

	s, err := r.NewPage(geom.Size{Width: 100, Height: 200})
	require.NoError(t, err)
	assert.Error(t, r.Save(context.Background(), filepath.Join(dir, "open.pdf"), []document.Surface{s}), "unfinished page")
	assert.Error(t, r.Place(s, memSource{}, document.Placement{}))

	require.NoError(t, r.EndPage(s))
	assert.ErrorIs(t, r.EndPage(s), errFinished)
	assert.ErrorIs(t, r.Place(s, src, document.Placement{}), errFinished)
}

type countingWriter struct{ *pdfout.Writer }

func (w countingWriter) Commit(path string, data []byte, _ int) error {
	return w.Writer.Commit(path, data, 5)
}

func TestSaveVerifiesPageCount(t *testing.T) {
	dir := t.TempDir()
	r := New(countingWriter{pdfout.New()})
	s := finish(t, r, geom.Size{Width: 100, Height: 100}, nil)
	out := filepath.Join(dir, "short.pdf")
	err := r.Save(context.Background(), out, []document.Surface{s})
	assert.True(t, apperr.IsInvariant(err))
	assert.NoFileExists(t, out)
}
