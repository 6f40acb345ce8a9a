package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/document"
	"github.com/local/pdfimposer/internal/metrics"
)

// detect finds the content bounds of every page, Workers pages at a time.
// Results are indexed by page. A page whose analysis fails is NotFound.
func (p *Pipeline) detect(ctx context.Context, src document.Source, path string) ([]crop.Bounds, error) {
	logger := logFrom(ctx)
	n := src.NumPages()
	bounds := make([]crop.Bounds, n)

	digest := ""
	if p.cache != nil {
		d, err := fileDigest(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("cannot hash input; bounds cache disabled for this run")
		}
		digest = d
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if b, ok := p.cached(gctx, digest, i); ok {
				bounds[i] = b
				return nil
			}
			regions, err := src.Regions(i)
			if err != nil {
				logger.Warn().Err(err).Int("page", i+1).Msg("content analysis failed; page treated as empty")
				bounds[i] = crop.NotFound
				return nil
			}
			bounds[i] = crop.DetectBounds(regions)
			p.remember(gctx, digest, i, bounds[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return bounds, nil
}

func (p *Pipeline) cached(ctx context.Context, digest string, page int) (crop.Bounds, bool) {
	if p.cache == nil || digest == "" {
		return crop.Bounds{}, false
	}
	b, ok, err := p.cache.Get(ctx, digest, p.opts.AnalysisKey, page)
	switch {
	case err != nil:
		metrics.IncCacheLookup("error")
		logFrom(ctx).Warn().Err(err).Int("page", page+1).Msg("bounds cache lookup failed")
		return crop.Bounds{}, false
	case !ok:
		metrics.IncCacheLookup("miss")
		return crop.Bounds{}, false
	}
	metrics.IncCacheLookup("hit")
	return b, true
}

func (p *Pipeline) remember(ctx context.Context, digest string, page int, b crop.Bounds) {
	if p.cache == nil || digest == "" {
		return
	}
	if err := p.cache.Set(ctx, digest, p.opts.AnalysisKey, page, b); err != nil {
		logFrom(ctx).Warn().Err(err).Int("page", page+1).Msg("bounds cache store failed")
	}
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
