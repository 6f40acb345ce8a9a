// Package vectorrender merges source PDF pages into output pages as form
// XObjects with pdfcpu. Text and vector graphics are carried over as they are;
// placements only add a clip path and a transformation matrix.
package vectorrender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/geom"
	"github.com/local/pdfimposer/internal/pdfout"
)

// PDFWriter commits serialized documents. *pdfout.Writer satisfies it.
type PDFWriter interface {
	Commit(path string, data []byte, pages int) error
	WriteImagePages(ctx context.Context, path string, pages []pdfout.ImagePage) error
}

// Vector is a document.SelectiveRenderer for PDF sources.
type Vector struct {
	writer PDFWriter
}

// New creates a vector renderer writing through w.
func New(w PDFWriter) *Vector {
	return &Vector{writer: w}
}

type placed struct {
	pl   document.Placement
	rect geom.Rect
}

type page struct {
	size  geom.Size
	src   string
	items []placed
	done  bool
}

func (p *page) Size() geom.Size { return p.size }

var errFinished = errors.New("page already finished")

// Accepts reports whether src is a PDF file on disk.
func (v *Vector) Accepts(src document.Source) bool {
	fb, ok := src.(document.FileBacked)
	if !ok {
		return false
	}
	mt, err := mimetype.DetectFile(fb.Path())
	if err != nil {
		return false
	}
	return mt.Is("application/pdf")
}

func (v *Vector) NewPage(size geom.Size) (document.Surface, error) {
	if !(size.Width > 0 && size.Height > 0) {
		return nil, fmt.Errorf("invalid page size %.2fx%.2f", size.Width, size.Height)
	}
	return &page{size: size}, nil
}

// Place records the placement; content is merged when the document is saved.
func (v *Vector) Place(dst document.Surface, src document.Source, p document.Placement) error {
	pg, ok := dst.(*page)
	if !ok {
		return fmt.Errorf("vector renderer cannot draw on %T", dst)
	}
	if pg.done {
		return errFinished
	}
	fb, ok := src.(document.FileBacked)
	if !ok {
		return fmt.Errorf("vector renderer needs a file-backed source, got %T", src)
	}
	if pg.src != "" && pg.src != fb.Path() {
		return fmt.Errorf("page draws from %s and %s", pg.src, fb.Path())
	}
	rect, err := src.PageRect(p.Page)
	if err != nil {
		return err
	}
	pg.src = fb.Path()
	pg.items = append(pg.items, placed{pl: p, rect: rect})
	return nil
}

func (v *Vector) EndPage(s document.Surface) error {
	pg, ok := s.(*page)
	if !ok {
		return fmt.Errorf("vector renderer cannot finish %T", s)
	}
	if pg.done {
		return errFinished
	}
	pg.done = true
	return nil
}

// Save builds the output inside the source document, the way pdfcpu's n-up
// does: new pages are added next to the old ones and replace the page tree,
// so no objects migrate between documents. All pages must share one source.
func (v *Vector) Save(ctx context.Context, path string, surfaces []document.Surface) error {
	if len(surfaces) == 0 {
		return v.writer.WriteImagePages(ctx, path, nil)
	}
	pages := make([]*page, 0, len(surfaces))
	src := ""
	for i, s := range surfaces {
		pg, ok := s.(*page)
		if !ok {
			return fmt.Errorf("vector renderer cannot save %T", s)
		}
		if !pg.done {
			return fmt.Errorf("page %d was not finished", i+1)
		}
		if pg.src != "" {
			if src != "" && src != pg.src {
				return fmt.Errorf("output draws from %s and %s", src, pg.src)
			}
			src = pg.src
		}
		pages = append(pages, pg)
	}

	data, err := build(ctx, src, pages)
	if err != nil {
		return err
	}
	if err := v.writer.Commit(path, data, len(pages)); err != nil {
		return err
	}
	log.Debug().Str("file", path).Str("source", src).Int("pages", len(pages)).Int("bytes", len(data)).Msg("wrote vector pdf")
	return nil
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func openContext(src string) (*model.Context, error) {
	if src == "" {
		return pdfcpu.CreateContextWithXRefTable(newConfig(), types.PaperSize["A4"])
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return api.ReadAndValidate(f, newConfig())
}

func build(ctx context.Context, src string, pages []*page) ([]byte, error) {
	pdf, err := openContext(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}

	pagesDict := types.Dict(map[string]types.Object{
		"Type":  types.Name("Pages"),
		"Count": types.Integer(0),
	})
	pagesRef, err := pdf.IndRefForNewObject(pagesDict)
	if err != nil {
		return nil, err
	}

	// Forms are read through the original page tree, which stays in place
	// until every page is built.
	forms := map[int]*form{}
	for i, pg := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var content bytes.Buffer
		xobjects := types.NewDict()
		for _, it := range pg.items {
			f, ok := forms[it.pl.Page]
			if !ok {
				if f, err = pageForm(pdf, it.pl.Page+1); err != nil {
					return nil, fmt.Errorf("page %d: %w", it.pl.Page+1, err)
				}
				forms[it.pl.Page] = f
			}
			if f == nil {
				continue
			}
			xobjects.Insert(f.id, *f.ref)
			writePlacement(&content, pg.size, it, f)
		}
		if err := appendPage(pdf, pagesDict, pagesRef, pg.size, xobjects, content.Bytes()); err != nil {
			return nil, fmt.Errorf("output page %d: %w", i+1, err)
		}
	}

	root, err := pdf.Catalog()
	if err != nil {
		return nil, err
	}
	root.Update("Pages", *pagesRef)
	// These point into the replaced page tree.
	for _, k := range []string{"Outlines", "PageLabels", "StructTreeRoot", "OpenAction"} {
		root.Delete(k)
	}
	pdf.PageCount = len(pages)

	var buf bytes.Buffer
	if err := api.WriteContext(pdf, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// form is a source page wrapped as a form XObject. Its visible area spans
// (0,0)-(w,h) in form space, y up.
type form struct {
	id   string
	ref  *types.IndirectRef
	w, h float64
}

// pageForm wraps page pageNr (1-based) into a form XObject. Pages without
// content yield nil.
func pageForm(pdf *model.Context, pageNr int) (*form, error) {
	d, _, inh, err := pdf.PageDict(pageNr, true)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("unknown page number %d", pageNr)
	}
	content, err := pdf.PageContent(d, pageNr)
	if errors.Is(err, model.ErrNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var box types.Rectangle
	switch {
	case inh.CropBox != nil:
		box = *inh.CropBox
	case inh.MediaBox != nil:
		box = *inh.MediaBox
	default:
		return nil, fmt.Errorf("page %d has no media box", pageNr)
	}
	if inh.Rotate%180 != 0 {
		w := box.Width()
		box.UR.X = box.LL.X + box.Height()
		box.UR.Y = box.LL.Y + w
	}
	if inh.Rotate != 0 {
		content = append(model.ContentBytesForPageRotation(inh.Rotate, box.Width(), box.Height()), content...)
	}
	if box.Width() <= 0 || box.Height() <= 0 {
		return nil, nil
	}

	res := inh.Resources
	if res == nil {
		res = types.NewDict()
	}
	resRef, err := pdf.IndRefForNewObject(res)
	if err != nil {
		return nil, err
	}

	sd := types.StreamDict{
		Dict: types.Dict(map[string]types.Object{
			"Type":      types.Name("XObject"),
			"Subtype":   types.Name("Form"),
			"BBox":      box.Array(),
			"Matrix":    types.NewNumberArray(1, 0, 0, 1, -box.LL.X, -box.LL.Y),
			"Resources": *resRef,
			"Filter":    types.Name(filter.Flate),
		}),
		Content:        content,
		FilterPipeline: []types.PDFFilter{{Name: filter.Flate}},
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	ref, err := pdf.IndRefForNewObject(sd)
	if err != nil {
		return nil, err
	}
	return &form{id: fmt.Sprintf("Fm%d", pageNr), ref: ref, w: box.Width(), h: box.Height()}, nil
}

// writePlacement draws f so that source point (x,y), top-down in the
// coordinates of it.rect, lands at Transform(x,y) on a page of size out.
// PDF user space is y up, hence the flips.
func writePlacement(w io.Writer, out geom.Size, it placed, f *form) {
	t := it.pl.Transform
	kx := it.rect.Width() / f.w
	ky := it.rect.Height() / f.h
	e := t.Scale*it.rect.X0 + t.TX
	fy := out.Height - t.Scale*it.rect.Y1 - t.TY

	fmt.Fprint(w, "q ")
	if it.pl.Clip != nil {
		c := t.ApplyRect(*it.pl.Clip)
		fmt.Fprintf(w, "%.4f %.4f %.4f %.4f re W n ", c.X0, out.Height-c.Y1, c.Width(), c.Height())
	}
	fmt.Fprintf(w, "%.6f 0 0 %.6f %.4f %.4f cm /%s Do Q\n", t.Scale*kx, t.Scale*ky, e, fy, f.id)
}

func appendPage(pdf *model.Context, parent types.Dict, parentRef *types.IndirectRef, size geom.Size, xobjects types.Dict, content []byte) error {
	resRef, err := pdf.IndRefForNewObject(types.Dict(map[string]types.Object{"XObject": xobjects}))
	if err != nil {
		return err
	}
	sd, err := pdf.NewStreamDictForBuf(content)
	if err != nil {
		return err
	}
	if err := sd.Encode(); err != nil {
		return err
	}
	contentRef, err := pdf.IndRefForNewObject(*sd)
	if err != nil {
		return err
	}

	pageDict := types.Dict(map[string]types.Object{
		"Type":      types.Name("Page"),
		"Parent":    *parentRef,
		"MediaBox":  types.RectForDim(size.Width, size.Height).Array(),
		"Resources": *resRef,
		"Contents":  *contentRef,
	})
	ref, err := pdf.IndRefForNewObject(pageDict)
	if err != nil {
		return err
	}
	if err := pdf.SetValid(*ref); err != nil {
		return err
	}
	return model.AppendPageTree(ref, 1, parent)
}
