package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfimposer/internal/apperr"
	"github.com/local/pdfimposer/internal/filetype"
	"github.com/local/pdfimposer/internal/storage"
)

const tempPrefix = "pdfimposer-"

// ObjectStore moves files to and from s3://bucket/key references.
// *storage.S3Client satisfies it.
type ObjectStore interface {
	DownloadFile(ctx context.Context, bucket, key, path string) (int64, error)
	UploadFile(ctx context.Context, bucket, key, path, contentType string) error
}

// Converter turns office documents into PDF. *converter.LibreOffice satisfies it.
type Converter interface {
	ConvertToPDF(ctx context.Context, inputPath, outputDir string) (string, error)
}

// Resolver turns input and output references into local files. Supported
// references are filesystem paths, file://, http(s):// (input only) and
// s3://bucket/key.
type Resolver struct {
	TempDir   string
	HTTP      *http.Client
	S3        ObjectStore
	Detector  *filetype.Detector
	Converter Converter
}

func noop() {}

// Fetch returns a local path holding the referenced file. cleanup removes any
// download and is safe to call when err is non-nil.
func (r *Resolver) Fetch(ctx context.Context, ref string) (local string, cleanup func(), err error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return r.downloadS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return r.downloadHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), noop, nil
	default:
		return ref, noop, nil
	}
}

// Prepare fetches ref and makes sure the result can be opened: PDFs and
// natively readable formats are returned as is, office documents are
// converted to PDF, anything else is rejected.
func (r *Resolver) Prepare(ctx context.Context, ref string) (string, func(), error) {
	local, cleanup, err := r.Fetch(ctx, ref)
	if err != nil {
		return "", noop, err
	}
	if r.Detector == nil {
		return local, cleanup, nil
	}

	info, err := r.Detector.Detect(local)
	if err != nil {
		cleanup()
		return "", noop, apperr.Resource("detect", ref, err)
	}
	log.Debug().Str("input", ref).Str("mime", info.MIMEType).Str("kind", info.Kind.String()).Msg("input type")

	switch info.Kind {
	case filetype.PDF, filetype.Native:
		return local, cleanup, nil
	case filetype.Convertible:
		if r.Converter == nil {
			cleanup()
			return "", noop, apperr.Invalid("prepare", ref, "%s needs conversion and no converter is configured", info.Description)
		}
		dir, err := os.MkdirTemp(r.TempDir, tempPrefix+"conv-")
		if err != nil {
			cleanup()
			return "", noop, apperr.Resource("convert", ref, err)
		}
		pdf, err := r.Converter.ConvertToPDF(ctx, local, dir)
		if err != nil {
			cleanup()
			_ = os.RemoveAll(dir)
			return "", noop, apperr.Resource("convert", ref, err)
		}
		return pdf, func() {
			_ = os.RemoveAll(dir)
			cleanup()
		}, nil
	default:
		cleanup()
		return "", noop, apperr.Invalid("prepare", ref, "unsupported input: %s", info.Description)
	}
}

// Output returns the local path to write for ref and a publish step that
// delivers it. For local references publish does nothing.
func (r *Resolver) Output(ref string) (local string, publish func(context.Context) error, cleanup func(), err error) {
	none := func(context.Context) error { return nil }
	switch {
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, ok := storage.ParseURI(ref)
		if !ok {
			return "", none, noop, apperr.Invalid("output", ref, "expected s3://bucket/key")
		}
		if r.S3 == nil {
			return "", none, noop, apperr.Invalid("output", ref, "s3 storage is not configured")
		}
		f, err := os.CreateTemp(r.TempDir, tempPrefix+"out-*.pdf")
		if err != nil {
			return "", none, noop, apperr.Resource("output", ref, err)
		}
		tmp := f.Name()
		_ = f.Close()
		publish := func(ctx context.Context) error {
			return apperr.Resource("upload", ref, r.S3.UploadFile(ctx, bucket, key, tmp, "application/pdf"))
		}
		return tmp, publish, func() { _ = os.Remove(tmp) }, nil
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return "", none, noop, apperr.Invalid("output", ref, "http outputs are not supported")
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), none, noop, nil
	default:
		return ref, none, noop, nil
	}
}

func (r *Resolver) downloadHTTP(ctx context.Context, ref string) (string, func(), error) {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", noop, apperr.Invalid("download", ref, "%v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", noop, apperr.Resource("download", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", noop, apperr.Resource("download", ref, fmt.Errorf("http %d", resp.StatusCode))
	}

	f, err := os.CreateTemp(r.TempDir, tempPrefix+"dl-*"+refExt(ref))
	if err != nil {
		return "", noop, apperr.Resource("download", ref, err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", noop, apperr.Resource("download", ref, err)
	}
	log.Info().Str("url", ref).Int64("size", n).Str("file", filepath.Base(name)).Msg("downloaded input")
	return name, cleanup, nil
}

func (r *Resolver) downloadS3(ctx context.Context, ref string) (string, func(), error) {
	bucket, key, ok := storage.ParseURI(ref)
	if !ok {
		return "", noop, apperr.Invalid("download", ref, "expected s3://bucket/key")
	}
	if r.S3 == nil {
		return "", noop, apperr.Invalid("download", ref, "s3 storage is not configured")
	}
	f, err := os.CreateTemp(r.TempDir, tempPrefix+"s3-*"+path.Ext(key))
	if err != nil {
		return "", noop, apperr.Resource("download", ref, err)
	}
	name := f.Name()
	_ = f.Close()
	if _, err := r.S3.DownloadFile(ctx, bucket, key, name); err != nil {
		_ = os.Remove(name)
		return "", noop, apperr.Resource("download", ref, err)
	}
	return name, func() { _ = os.Remove(name) }, nil
}

// refExt keeps the extension of a URL path so format detection can use it.
func refExt(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
