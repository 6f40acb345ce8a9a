// Package pipeline runs whole-document operations: margin cropping, booklet
// imposition and the two chained.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfimposer/internal/apperr"
	"github.com/local/pdfimposer/internal/booklet"
	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/geom"
	"github.com/local/pdfimposer/internal/imposer"
	"github.com/local/pdfimposer/internal/metrics"
)

// Op names a pipeline operation.
type Op string

const (
	OpCrop    Op = "crop"
	OpBooklet Op = "booklet"
	OpAuto    Op = "auto"
)

// BoundsCache stores detected bounds keyed by document digest, analysis
// settings and page. *store.BoundsStore satisfies it.
type BoundsCache interface {
	Get(ctx context.Context, digest, settings string, page int) (crop.Bounds, bool, error)
	Set(ctx context.Context, digest, settings string, page int, b crop.Bounds) error
}

// Options tunes the operations.
type Options struct {
	Margin        float64
	AllowUpscale  bool
	ReferencePage int
	Workers       int
	// TempDir holds intermediates; os.TempDir() when empty.
	TempDir string
	// AnalysisKey identifies the content analysis settings in cache keys.
	AnalysisKey string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Margin: 10, AllowUpscale: true, Workers: 4, AnalysisKey: "default"}
}

// Report summarizes a finished run.
type Report struct {
	RunID         string
	Op            Op
	PagesIn       int
	PagesOut      int
	Blanks        int
	Cropped       int
	PassedThrough int
	Duration      time.Duration
}

// Pipeline ties a document opener and its renderers together.
type Pipeline struct {
	opener   document.Opener
	renderer document.Renderer
	byOp     map[Op]document.Renderer
	vector   document.SelectiveRenderer
	opts     Options
	cache    BoundsCache
	resolver *Resolver
	progress func(step string)
}

// New creates a pipeline.
func New(opener document.Opener, renderer document.Renderer, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.AnalysisKey == "" {
		opts.AnalysisKey = "default"
	}
	return &Pipeline{opener: opener, renderer: renderer, opts: opts}
}

// WithCache enables the bounds cache.
func (p *Pipeline) WithCache(c BoundsCache) *Pipeline {
	p.cache = c
	return p
}

// WithVector sends every source r accepts to r. Other sources fall back to
// the raster renderers.
func (p *Pipeline) WithVector(r document.SelectiveRenderer) *Pipeline {
	p.vector = r
	return p
}

// WithRenderer replaces the default renderer for one operation.
func (p *Pipeline) WithRenderer(op Op, r document.Renderer) *Pipeline {
	if p.byOp == nil {
		p.byOp = map[Op]document.Renderer{}
	}
	p.byOp[op] = r
	return p
}

// WithResolver lets Run accept remote references and non-PDF inputs.
func (p *Pipeline) WithResolver(r *Resolver) *Pipeline {
	p.resolver = r
	return p
}

// WithProgress registers a callback for coarse progress steps of Auto.
func (p *Pipeline) WithProgress(fn func(step string)) *Pipeline {
	p.progress = fn
	return p
}

func (p *Pipeline) step(msg string) {
	if p.progress != nil {
		p.progress(msg)
	}
}

type runKey struct{}

// withRun attaches a run id and a logger carrying it to ctx, unless ctx
// already belongs to a run.
func withRun(ctx context.Context, op Op) (context.Context, string) {
	if id, ok := ctx.Value(runKey{}).(string); ok {
		return ctx, id
	}
	id := uuid.NewString()
	l := log.With().Str("run_id", id).Str("op", string(op)).Logger()
	ctx = context.WithValue(ctx, runKey{}, id)
	return l.WithContext(ctx), id
}

func logFrom(ctx context.Context) *zerolog.Logger {
	if _, ok := ctx.Value(runKey{}).(string); ok {
		return zerolog.Ctx(ctx)
	}
	return &log.Logger
}

// Run executes op from the input reference to the output reference, both of
// which may be remote when a resolver is configured.
func (p *Pipeline) Run(ctx context.Context, op Op, in, out string) (rep Report, err error) {
	ctx, runID := withRun(ctx, op)
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.ObserveOperation(string(op), result, time.Since(start))
	}()

	localIn, localOut := in, out
	publish := func(context.Context) error { return nil }
	if p.resolver != nil {
		var cleanupIn, cleanupOut func()
		localIn, cleanupIn, err = p.resolver.Prepare(ctx, in)
		if err != nil {
			return Report{RunID: runID, Op: op}, err
		}
		defer cleanupIn()
		localOut, publish, cleanupOut, err = p.resolver.Output(out)
		if err != nil {
			return Report{RunID: runID, Op: op}, err
		}
		defer cleanupOut()
	}

	switch op {
	case OpCrop:
		rep, err = p.Crop(ctx, localIn, localOut)
	case OpBooklet:
		rep, err = p.Booklet(ctx, localIn, localOut)
	case OpAuto:
		rep, err = p.Auto(ctx, localIn, localOut)
	default:
		return Report{RunID: runID, Op: op}, apperr.Invalid("pipeline.Run", op, "unknown operation")
	}
	if err != nil {
		return rep, err
	}
	if err := publish(ctx); err != nil {
		return rep, err
	}
	rep.Duration = time.Since(start)
	return rep, nil
}

// Crop rescales the content of every page so its margins become Options.Margin.
// Pages without detectable content are copied unchanged.
func (p *Pipeline) Crop(ctx context.Context, in, out string) (Report, error) {
	ctx, runID := withRun(ctx, OpCrop)
	logger := logFrom(ctx)
	start := time.Now()
	rep := Report{RunID: runID, Op: OpCrop}

	// reject a bad margin before any page is analyzed
	if _, err := crop.Rescale(crop.NotFound, geom.Rect{}, p.opts.Margin, p.opts.AllowUpscale); err != nil {
		return rep, err
	}

	src, err := p.opener.Open(in)
	if err != nil {
		return rep, apperr.Resource("open", in, err)
	}
	defer closeSource(src, in)

	n := src.NumPages()
	rep.PagesIn = n
	logger.Info().Str("input", in).Int("pages", n).Float64("margin", p.opts.Margin).Msg("cropping")

	bounds, err := p.detect(ctx, src, in)
	if err != nil {
		return rep, err
	}

	pages := make([]document.OutputPage, n)
	for i := 0; i < n; i++ {
		rect, err := src.PageRect(i)
		if err != nil {
			return rep, apperr.Resource("read", in, err)
		}
		plan, err := crop.Rescale(bounds[i], rect, p.opts.Margin, p.opts.AllowUpscale)
		if err != nil {
			return rep, err
		}
		pages[i] = cropPage(i, rect, plan)
		if plan.PassThrough {
			rep.PassedThrough++
			metrics.IncPage("passthrough")
			logger.Debug().Int("page", i+1).Str("reason", plan.Reason).Msg("page passed through")
			continue
		}
		rep.Cropped++
		metrics.IncPage("rescaled")
		logger.Debug().
			Int("page", i+1).
			Str("content", plan.Clip.String()).
			Str("dest", plan.Dest.String()).
			Float64("scale", plan.Transform.Scale).
			Msg("page rescaled")
	}

	if err := p.render(ctx, OpCrop, src, pages, out); err != nil {
		return rep, err
	}
	rep.PagesOut = n
	rep.Duration = time.Since(start)
	logger.Info().
		Str("output", out).
		Int("cropped", rep.Cropped).
		Int("passed_through", rep.PassedThrough).
		Dur("duration", rep.Duration).
		Msg("crop finished")
	return rep, nil
}

// cropPage builds the output page for one source page. Output pages start at
// the origin, so plans are shifted when the source page does not.
func cropPage(i int, rect geom.Rect, plan crop.Plan) document.OutputPage {
	size := rect.Size()
	if plan.PassThrough {
		return document.OutputPage{Size: size, Placements: []document.Placement{{
			Page:      i,
			Dest:      geom.RectFromSize(size),
			Transform: geom.Transform{Scale: 1, TX: -rect.X0, TY: -rect.Y0},
		}}}
	}
	clip := plan.Clip
	dest := plan.Dest
	dest.X0 -= rect.X0
	dest.X1 -= rect.X0
	dest.Y0 -= rect.Y0
	dest.Y1 -= rect.Y0
	t := plan.Transform
	t.TX -= rect.X0
	t.TY -= rect.Y0
	return document.OutputPage{Size: size, Placements: []document.Placement{{
		Page:      i,
		Clip:      &clip,
		Dest:      dest,
		Transform: t,
	}}}
}

// Booklet imposes the document onto 2-up sheet sides in print order.
func (p *Pipeline) Booklet(ctx context.Context, in, out string) (Report, error) {
	ctx, runID := withRun(ctx, OpBooklet)
	logger := logFrom(ctx)
	start := time.Now()
	rep := Report{RunID: runID, Op: OpBooklet}

	src, err := p.opener.Open(in)
	if err != nil {
		return rep, apperr.Resource("open", in, err)
	}
	defer closeSource(src, in)

	n := src.NumPages()
	rep.PagesIn = n
	order, err := booklet.PaddedOrder(n)
	if err != nil {
		return rep, err
	}
	for _, s := range order {
		if s.IsBlank() {
			rep.Blanks++
		}
	}
	logger.Info().Str("input", in).Int("pages", n).Int("padded", len(order)).Int("blanks", rep.Blanks).Msg("imposing booklet")

	sides, err := imposer.Composer{ReferencePage: p.opts.ReferencePage}.Compose(order, src)
	if err != nil {
		return rep, err
	}
	pages := make([]document.OutputPage, len(sides))
	for i, s := range sides {
		pages[i] = s.OutputPage()
	}

	if err := p.render(ctx, OpBooklet, src, pages, out); err != nil {
		return rep, err
	}
	rep.PagesOut = len(sides)
	rep.Duration = time.Since(start)
	metrics.AddSheetSides(len(sides))
	metrics.AddBlankSlots(rep.Blanks)
	logger.Info().
		Str("output", out).
		Int("sheets", len(sides)/2).
		Int("sides", len(sides)).
		Dur("duration", rep.Duration).
		Msg("booklet finished")
	return rep, nil
}

// Auto crops into a temporary intermediate and imposes that as a booklet. The
// intermediate is removed whatever the outcome.
func (p *Pipeline) Auto(ctx context.Context, in, out string) (Report, error) {
	ctx, runID := withRun(ctx, OpAuto)
	start := time.Now()
	rep := Report{RunID: runID, Op: OpAuto}

	tmp, err := os.CreateTemp(p.opts.TempDir, tempPrefix+"auto-*.pdf")
	if err != nil {
		return rep, apperr.Resource("create intermediate", p.opts.TempDir, err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logFrom(ctx).Warn().Err(err).Str("file", tmpPath).Msg("failed to remove intermediate")
		}
	}()

	p.step("Step 1: Cropping...")
	cropped, err := p.Crop(ctx, in, tmpPath)
	if err != nil {
		return rep, err
	}
	p.step("Step 2: Creating booklet...")
	imposed, err := p.Booklet(ctx, tmpPath, out)
	if err != nil {
		return rep, err
	}

	rep.PagesIn = cropped.PagesIn
	rep.Cropped = cropped.Cropped
	rep.PassedThrough = cropped.PassedThrough
	rep.PagesOut = imposed.PagesOut
	rep.Blanks = imposed.Blanks
	rep.Duration = time.Since(start)
	return rep, nil
}

func (p *Pipeline) rendererFor(op Op, src document.Source) (document.Renderer, string) {
	if p.vector != nil && p.vector.Accepts(src) {
		return p.vector, "vector"
	}
	if r, ok := p.byOp[op]; ok {
		return r, "raster"
	}
	return p.renderer, "raster"
}

func (p *Pipeline) render(ctx context.Context, op Op, src document.Source, pages []document.OutputPage, out string) error {
	r, mode := p.rendererFor(op, src)
	logFrom(ctx).Debug().Str("mode", mode).Int("pages", len(pages)).Msg("rendering")
	surfaces, err := document.Build(ctx, r, src, pages)
	if err != nil {
		return wrapRenderErr("render", out, err)
	}
	if err := r.Save(ctx, out, surfaces); err != nil {
		return wrapRenderErr("write", out, err)
	}
	return nil
}

func wrapRenderErr(op, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		apperr.IsInvariant(err) || apperr.IsInvalidArgument(err) || apperr.IsResource(err) {
		return err
	}
	return apperr.Resource(op, path, err)
}

func closeSource(src document.Source, path string) {
	if err := src.Close(); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("failed to close document")
	}
}
