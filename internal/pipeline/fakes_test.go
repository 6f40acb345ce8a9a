package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/geom"
)

var letter = geom.Rect{X1: 612, Y1: 792}

type fakePage struct {
	rect    geom.Rect
	regions []crop.Region
	fail    bool
}

type fakeSource struct {
	pages       []fakePage
	regionCalls atomic.Int32
	closed      atomic.Bool
}

func (s *fakeSource) NumPages() int { return len(s.pages) }

func (s *fakeSource) PageRect(i int) (geom.Rect, error) {
	if i < 0 || i >= len(s.pages) {
		return geom.Rect{}, fmt.Errorf("page %d out of range", i)
	}
	return s.pages[i].rect, nil
}

func (s *fakeSource) Regions(i int) ([]crop.Region, error) {
	s.regionCalls.Add(1)
	if s.pages[i].fail {
		return nil, errors.New("analysis exploded")
	}
	return s.pages[i].regions, nil
}

func (s *fakeSource) Raster(int, float64) (image.Image, error) {
	return nil, errors.New("not rendered in tests")
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func fullPage(r geom.Rect) fakePage {
	return fakePage{rect: r, regions: []crop.Region{{Kind: crop.TextRegion, Rect: r.Inset(50)}}}
}

// fakeOpener serves registered sources by path. Other files are parsed as
// written by fakeRenderer, or read as a single letter page.
type fakeOpener struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	opened  []string
}

func newOpener() *fakeOpener { return &fakeOpener{sources: map[string]*fakeSource{}} }

func (o *fakeOpener) add(path string, src *fakeSource) { o.sources[path] = src }

func (o *fakeOpener) Open(path string) (document.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	if src, ok := o.sources[path]; ok {
		return src, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, []byte(fakeHeader)) {
		return &fakeSource{pages: []fakePage{fullPage(letter)}}, nil
	}
	src := &fakeSource{}
	sc := bufio.NewScanner(bytes.NewReader(data[len(fakeHeader):]))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) != 2 {
			continue
		}
		w, _ := strconv.ParseFloat(f[0], 64)
		h, _ := strconv.ParseFloat(f[1], 64)
		src.pages = append(src.pages, fullPage(geom.Rect{X1: w, Y1: h}))
	}
	return src, nil
}

const fakeHeader = "%PDF-fake\n"

type fakeSurface struct {
	size       geom.Size
	placements []document.Placement
	ended      bool
}

func (s *fakeSurface) Size() geom.Size { return s.size }

// fakeRenderer records pages and writes one "width height" line per page.
type fakeRenderer struct {
	mu     sync.Mutex
	saved  map[string][]*fakeSurface
	failOn string
}

func newRenderer() *fakeRenderer { return &fakeRenderer{saved: map[string][]*fakeSurface{}} }

func (r *fakeRenderer) NewPage(size geom.Size) (document.Surface, error) {
	return &fakeSurface{size: size}, nil
}

func (r *fakeRenderer) Place(dst document.Surface, _ document.Source, p document.Placement) error {
	s := dst.(*fakeSurface)
	s.placements = append(s.placements, p)
	return nil
}

func (r *fakeRenderer) EndPage(s document.Surface) error {
	s.(*fakeSurface).ended = true
	return nil
}

func (r *fakeRenderer) Save(ctx context.Context, path string, pages []document.Surface) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.failOn != "" && path == r.failOn {
		return errors.New("disk full")
	}
	var buf bytes.Buffer
	buf.WriteString(fakeHeader)
	out := make([]*fakeSurface, 0, len(pages))
	for _, p := range pages {
		s := p.(*fakeSurface)
		out = append(out, s)
		fmt.Fprintf(&buf, "%g %g\n", s.size.Width, s.size.Height)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	r.mu.Lock()
	r.saved[path] = out
	r.mu.Unlock()
	return nil
}

// fakeVector is a fakeRenderer that claims the sources accept allows.
type fakeVector struct {
	*fakeRenderer
	accept bool
}

func (v *fakeVector) Accepts(document.Source) bool { return v.accept }

type cacheKey struct {
	digest, settings string
	page             int
}

type fakeCache struct {
	mu   sync.Mutex
	data map[cacheKey]crop.Bounds
	sets int
}

func newCache() *fakeCache { return &fakeCache{data: map[cacheKey]crop.Bounds{}} }

func (c *fakeCache) Get(_ context.Context, digest, settings string, page int) (crop.Bounds, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[cacheKey{digest, settings, page}]
	return b, ok, nil
}

func (c *fakeCache) Set(_ context.Context, digest, settings string, page int, b crop.Bounds) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cacheKey{digest, settings, page}] = b
	c.sets++
	return nil
}
