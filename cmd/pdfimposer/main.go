package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfimposer/internal/apperr"
	cfgpkg "github.com/local/pdfimposer/internal/config"
	"github.com/local/pdfimposer/internal/converter"
	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/filetype"
	"github.com/local/pdfimposer/internal/imagerender"
	logpkg "github.com/local/pdfimposer/internal/logger"
	"github.com/local/pdfimposer/internal/metrics"
	"github.com/local/pdfimposer/internal/mupdf"
	"github.com/local/pdfimposer/internal/pdfout"
	"github.com/local/pdfimposer/internal/pipeline"
	"github.com/local/pdfimposer/internal/storage"
	"github.com/local/pdfimposer/internal/store"
	"github.com/local/pdfimposer/internal/vectorrender"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `pdfimposer - optimize PDFs for printing.

Usage:
  pdfimposer crop    [--margin N] [--no-upscale] [--force] INPUT OUTPUT
  pdfimposer booklet [--force] INPUT OUTPUT
  pdfimposer auto    [--margin N] [--force] INPUT OUTPUT
  pdfimposer version

INPUT may be a path, file://, http(s):// or s3://bucket/key.
OUTPUT may be a path, file:// or s3://bucket/key.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// command is a parsed invocation.
type command struct {
	op        pipeline.Op
	in, out   string
	margin    float64
	noUpscale bool
	force     bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "pdfimposer version %s\n", version)
		return 0
	case "help", "--help", "-h":
		fmt.Fprint(stdout, usage)
		return 0
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(stderr, "Error: loading .env: %v\n", err)
			return 2
		}
	}
	cfg := cfgpkg.FromEnv()

	cmd, err := parse(args, cfg, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cfg.Crop.Margin = cmd.margin
	if cmd.noUpscale {
		cfg.Crop.AllowUpscale = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return apperr.ExitCode(err)
	}

	if err := logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Console:      stderr,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer logpkg.Close()

	metrics.Init()
	if cfg.Runtime.MetricsFile != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.Runtime.MetricsFile); err != nil {
				log.Warn().Err(err).Str("file", cfg.Runtime.MetricsFile).Msg("failed to write metrics")
			}
		}()
	}

	if err := execute(ctx, cmd, cfg, stdout); err != nil {
		log.Error().Err(err).Str("op", string(cmd.op)).Str("input", cmd.in).Msg("operation failed")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return apperr.ExitCode(err)
	}
	return 0
}

func parse(args []string, cfg cfgpkg.Config, stderr io.Writer) (command, error) {
	cmd := command{op: pipeline.Op(args[0])}
	fs := flag.NewFlagSet("pdfimposer "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&cmd.force, "force", false, "overwrite an existing output file")

	switch cmd.op {
	case pipeline.OpCrop:
		fs.Float64Var(&cmd.margin, "margin", cfg.Crop.Margin, "margin to preserve around content in points")
		fs.BoolVar(&cmd.noUpscale, "no-upscale", !cfg.Crop.AllowUpscale, "never enlarge content")
	case pipeline.OpAuto:
		fs.Float64Var(&cmd.margin, "margin", cfg.Crop.Margin, "margin to preserve around content in points")
	case pipeline.OpBooklet:
		cmd.margin = cfg.Crop.Margin
	default:
		return cmd, apperr.Invalid("cli", args[0], "unknown command (want crop, booklet, auto or version)")
	}

	if err := fs.Parse(args[1:]); err != nil {
		return cmd, err
	}
	if fs.NArg() != 2 {
		return cmd, apperr.Invalid("cli", strings.Join(fs.Args(), " "), "expected INPUT and OUTPUT")
	}
	cmd.in, cmd.out = fs.Arg(0), fs.Arg(1)
	return cmd, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func localPath(ref string) string { return strings.TrimPrefix(ref, "file://") }

// checkPaths mirrors what a user expects before any work starts: the input
// exists and an existing output is only replaced on request.
func checkPaths(cmd command) error {
	if !isRemote(cmd.in) {
		info, err := os.Stat(localPath(cmd.in))
		if err != nil {
			return apperr.Invalid("cli", cmd.in, "input does not exist")
		}
		if info.IsDir() {
			return apperr.Invalid("cli", cmd.in, "input is a directory")
		}
	}
	if !isRemote(cmd.out) && !cmd.force {
		if _, err := os.Stat(localPath(cmd.out)); err == nil {
			return apperr.Invalid("cli", cmd.out, "output already exists (use --force to overwrite)")
		}
	}
	return nil
}

func execute(ctx context.Context, cmd command, cfg cfgpkg.Config, stdout io.Writer) error {
	if err := checkPaths(cmd); err != nil {
		return err
	}
	pipeline.CleanupTemps(cfg.Runtime.TempDir, cfg.Runtime.TempMaxAge)

	p, closeDeps, err := build(ctx, cmd, cfg, stdout)
	if err != nil {
		return err
	}
	defer closeDeps()

	switch cmd.op {
	case pipeline.OpCrop:
		fmt.Fprintf(stdout, "Cropping %s...\n", cmd.in)
	case pipeline.OpBooklet:
		fmt.Fprintf(stdout, "Creating booklet from %s...\n", cmd.in)
	case pipeline.OpAuto:
		fmt.Fprintf(stdout, "Processing %s...\n", cmd.in)
	}

	rep, err := p.Run(ctx, cmd.op, cmd.in, cmd.out)
	if err != nil {
		return err
	}

	switch cmd.op {
	case pipeline.OpCrop:
		fmt.Fprintf(stdout, "Cropped PDF saved to %s\n", cmd.out)
	case pipeline.OpBooklet:
		fmt.Fprintf(stdout, "Booklet PDF saved to %s\n", cmd.out)
	case pipeline.OpAuto:
		fmt.Fprintf(stdout, "Processed PDF saved to %s\n", cmd.out)
	}
	log.Info().
		Str("run_id", rep.RunID).
		Str("op", string(rep.Op)).
		Int("pages_in", rep.PagesIn).
		Int("pages_out", rep.PagesOut).
		Int("blanks", rep.Blanks).
		Int("cropped", rep.Cropped).
		Int("passed_through", rep.PassedThrough).
		Dur("duration", rep.Duration).
		Msg("done")
	return nil
}

// build wires the pipeline from configuration.
func build(ctx context.Context, cmd command, cfg cfgpkg.Config, stdout io.Writer) (*pipeline.Pipeline, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opener := mupdf.Opener{
		AnalysisDPI: cfg.Analysis.DPI,
		Scan: crop.ScanOptions{
			Threshold:       uint8(cfg.Analysis.Threshold),
			MinPixels:       cfg.Analysis.MinPixels,
			MinGraphicsSize: cfg.Analysis.MinGraphicsSize,
		},
	}
	color := imagerender.ColorRGB
	if cfg.Render.Gray {
		color = imagerender.ColorGray
	}
	raster := func(dpi float64) *imagerender.Raster {
		return imagerender.New(imagerender.Options{
			DPI:     dpi,
			Format:  imagerender.Format(cfg.Render.Format),
			Quality: cfg.Render.JPEGQuality,
			Color:   color,
		}, pdfout.New())
	}

	p := pipeline.New(opener, raster(cfg.Render.DPI), pipeline.Options{
		Margin:        cfg.Crop.Margin,
		AllowUpscale:  cfg.Crop.AllowUpscale,
		ReferencePage: cfg.Impose.ReferencePage,
		Workers:       cfg.Runtime.Workers,
		TempDir:       cfg.Runtime.TempDir,
		AnalysisKey: fmt.Sprintf("dpi%g-t%d-px%d-g%g",
			cfg.Analysis.DPI, cfg.Analysis.Threshold, cfg.Analysis.MinPixels, cfg.Analysis.MinGraphicsSize),
	}).WithProgress(func(step string) { fmt.Fprintln(stdout, step) })
	p.WithRenderer(pipeline.OpBooklet, raster(cfg.Render.BookletDPI))
	if cfg.Render.Mode == "vector" {
		p.WithVector(vectorrender.New(pdfout.New()))
	}

	resolver := &pipeline.Resolver{
		TempDir:   cfg.Runtime.TempDir,
		Detector:  filetype.New(),
		Converter: converter.NewLibreOffice(cfg.Runtime.ConvertTimeout, 1),
	}
	if strings.HasPrefix(cmd.in, "s3://") || strings.HasPrefix(cmd.out, "s3://") {
		s3c, err := storage.NewS3Client(ctx, storage.S3Options{Endpoint: cfg.Runtime.S3Endpoint})
		if err != nil {
			return nil, closeAll, apperr.Resource("s3", cfg.Runtime.S3Endpoint, err)
		}
		resolver.S3 = s3c
	}
	p.WithResolver(resolver)

	if cfg.Runtime.RedisURL != "" {
		bs, err := store.NewBoundsStore(cfg.Runtime.RedisURL, cfg.Runtime.CacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("bounds cache unavailable; continuing without it")
		} else {
			closers = append(closers, func() { _ = bs.Close() })
			p.WithCache(bs)
		}
	}
	return p, closeAll, nil
}
