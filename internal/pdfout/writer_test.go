package pdfout

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
	"github.com/local/pdfimposer/internal/geom"
)

func pngPage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(w/4, h/4, w/2, h/2), image.NewUniform(color.Black), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestWriteImagePagesMixedSizes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.pdf")
	pages := []ImagePage{
		{Size: geom.Size{Width: 200, Height: 100}, Data: pngPage(t, 200, 100)},
		{Size: geom.Size{Width: 200, Height: 100}, Data: pngPage(t, 200, 100)},
		{Size: geom.Size{Width: 100, Height: 200}, Data: pngPage(t, 100, 200)},
	}
	require.NoError(t, New().WriteImagePages(context.Background(), out, pages))

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not linger")
}

func TestWriteImagePagesKeepsDeclaredPageSize(t *testing.T) {
	// 150 dpi rasters: the page size comes from the declared points, not the pixels.
	out := filepath.Join(t.TempDir(), "out.pdf")
	pages := []ImagePage{
		{Size: geom.Size{Width: 612, Height: 792}, Data: pngPage(t, 1275, 1650)},
		{Size: geom.Size{Width: 792, Height: 612}, Data: pngPage(t, 1650, 1275)},
	}
	require.NoError(t, New().WriteImagePages(context.Background(), out, pages))

	dims, err := api.PageDimsFile(out)
	require.NoError(t, err)
	require.Len(t, dims, 2)
	assert.InDelta(t, 612, dims[0].Width, 0.01)
	assert.InDelta(t, 792, dims[0].Height, 0.01)
	assert.InDelta(t, 792, dims[1].Width, 0.01)
	assert.InDelta(t, 612, dims[1].Height, 0.01)
}

func TestCommitChecksPageCount(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	require.NoError(t, New().WriteImagePages(context.Background(), src, []ImagePage{
		{Size: geom.Size{Width: 100, Height: 100}, Data: pngPage(t, 100, 100)},
	}))
	data, err := os.ReadFile(src)
	require.NoError(t, err)

	out := filepath.Join(dir, "out.pdf")
	err = New().Commit(out, data, 3)
	assert.True(t, apperr.IsInvariant(err))
	assert.NoFileExists(t, out)

	require.NoError(t, New().Commit(out, data, 1))
	assert.FileExists(t, out)
}

func TestWriteImagePagesMissingDirLeavesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "out.pdf")
	err := New().WriteImagePages(context.Background(), out, []ImagePage{
		{Size: geom.Size{Width: 100, Height: 100}, Data: pngPage(t, 100, 100)},
	})
	require.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteImagePagesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "out.pdf")
	err := New().WriteImagePages(ctx, out, []ImagePage{
		{Size: geom.Size{Width: 100, Height: 100}, Data: pngPage(t, 100, 100)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
