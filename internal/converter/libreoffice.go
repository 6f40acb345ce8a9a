package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single conversion.
const DefaultTimeout = 180 * time.Second

// ErrPasswordProtected is returned for documents LibreOffice cannot open without a password.
var ErrPasswordProtected = errors.New("document is password protected")

// LibreOffice converts office documents to PDF with a headless LibreOffice per call.
type LibreOffice struct {
	Binary    string
	Timeout   time.Duration
	semaphore chan struct{}
}

// NewLibreOffice creates a converter allowing maxWorkers concurrent conversions.
func NewLibreOffice(timeout time.Duration, maxWorkers int) *LibreOffice {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LibreOffice{
		Binary:    "libreoffice",
		Timeout:   timeout,
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// ConvertToPDF converts inputPath into outputDir and returns the PDF path.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, inputPath, outputDir string) (string, error) {
	startTime := time.Now()

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.semaphore }()

	log.Info().Str("input", inputPath).Str("outdir", outputDir).Msg("starting conversion")

	if err := validateInput(inputPath); err != nil {
		return "", fmt.Errorf("input validation failed: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// Unique profile directory so parallel conversions do not share a lock file
	profileDir := filepath.Join(os.TempDir(), fmt.Sprintf("libreoffice_profile_%s", uuid.NewString()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}
	defer os.RemoveAll(profileDir)

	runCtx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx,
		l.Binary,
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outputDir,
		inputPath,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("conversion timeout after %v", l.Timeout)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		if looksProtected(string(output)) {
			return "", ErrPasswordProtected
		}
		return "", fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	out := expectedOutputPath(inputPath, outputDir)
	if _, err := os.Stat(out); err != nil {
		if looksProtected(string(output)) {
			return "", ErrPasswordProtected
		}
		return "", fmt.Errorf("output file not created: %w", err)
	}

	log.Info().Str("output", out).Dur("duration", time.Since(startTime)).Msg("conversion successful")
	return out, nil
}

func validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

func looksProtected(output string) bool {
	s := strings.ToLower(output)
	return strings.Contains(s, "password") || strings.Contains(s, "encrypted")
}

// expectedOutputPath is where LibreOffice writes the converted file.
func expectedOutputPath(inputPath, outputDir string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+".pdf")
}
