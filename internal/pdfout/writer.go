// Package pdfout serializes rendered pages into a PDF file with pdfcpu.
package pdfout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfimposer/internal/apperr"
	"github.com/local/pdfimposer/internal/geom"
)

// ImagePage is one output page: an encoded JPEG or PNG image covering a page of Size points.
type ImagePage struct {
	Size geom.Size
	Data []byte
}

// Writer builds PDFs from page images.
type Writer struct {
	conf *model.Configuration
}

// New returns a Writer using pdfcpu's default configuration in relaxed validation mode.
func New() *Writer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Writer{conf: conf}
}

// WriteImagePages writes pages to path, one image per page. The file appears at
// path only when complete; on any failure nothing is left behind.
func (w *Writer) WriteImagePages(ctx context.Context, path string, pages []ImagePage) error {
	data, err := w.build(ctx, pages)
	if err != nil {
		return err
	}
	if err := w.Commit(path, data, len(pages)); err != nil {
		return err
	}
	log.Debug().Str("file", path).Int("pages", len(pages)).Int("bytes", len(data)).Msg("wrote pdf")
	return nil
}

// Commit places a serialized PDF at path through a temp file in the same
// directory, after checking it holds the expected number of pages.
func (w *Writer) Commit(path string, data []byte, pages int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdfimposer-*.pdf")
	if err != nil {
		return apperr.Resource("create output", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Resource("write output", path, err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Resource("write output", path, err)
	}

	if pages > 0 {
		n, err := api.PageCountFile(tmpName)
		if err != nil {
			return fmt.Errorf("pdf page count failed: %w", err)
		}
		if n != pages {
			return apperr.Invariant("pdfout.Commit", "wrote %d pages, expected %d", n, pages)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return apperr.Resource("write output", path, err)
	}
	committed = true
	return nil
}

// build imports the images run by run: pdfcpu applies one page size per import,
// so consecutive pages of equal size go in together and each run is appended to
// the document produced so far.
func (w *Writer) build(ctx context.Context, pages []ImagePage) ([]byte, error) {
	if len(pages) == 0 {
		return w.empty()
	}

	var cur []byte
	for start := 0; start < len(pages); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + 1
		for end < len(pages) && sameSize(pages[end].Size, pages[start].Size) {
			end++
		}

		imgs := make([]io.Reader, 0, end-start)
		for _, p := range pages[start:end] {
			imgs = append(imgs, bytes.NewReader(p.Data))
		}

		// Full would size the page from the image pixels; centering at relative
		// scale 1 fits the image to PageDim instead.
		imp := pdfcpu.DefaultImportConfig()
		imp.PageDim = &types.Dim{Width: pages[start].Size.Width, Height: pages[start].Size.Height}
		imp.UserDim = true
		imp.Pos = types.Center
		imp.Scale = 1
		imp.ScaleAbs = false
		imp.InpUnit = types.POINTS

		var rs io.ReadSeeker
		if cur != nil {
			rs = bytes.NewReader(cur)
		}
		var buf bytes.Buffer
		if err := api.ImportImages(rs, &buf, imgs, imp, w.conf); err != nil {
			return nil, fmt.Errorf("import page images %d-%d: %w", start+1, end, err)
		}
		cur = buf.Bytes()
		start = end
	}
	return cur, nil
}

func (w *Writer) empty() ([]byte, error) {
	ctx, err := pdfcpu.CreateContextWithXRefTable(w.conf, types.PaperSize["A4"])
	if err != nil {
		return nil, fmt.Errorf("create empty pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write empty pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sameSize(a, b geom.Size) bool {
	return math.Abs(a.Width-b.Width) < 0.01 && math.Abs(a.Height-b.Height) < 0.01
}
