package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/local/pdfimposer/internal/apperr"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string `validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Pretty     bool
	File       string
	MaxSizeMB  int `validate:"gte=0"`
	MaxBackups int `validate:"gte=0"`
	MaxAgeDays int `validate:"gte=0"`
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string `validate:"required_if=Send true"`
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// CropConfig controls margin cropping.
type CropConfig struct {
	Margin       float64 `validate:"gte=0"`
	AllowUpscale bool
}

// RenderConfig controls how output pages are drawn. In vector mode PDF
// inputs keep their text and vector graphics; everything else is rasterized.
type RenderConfig struct {
	Mode        string  `validate:"oneof=vector raster"`
	DPI         float64 `validate:"gte=36,lte=1200"`
	BookletDPI  float64 `validate:"gte=36,lte=1200"`
	Format      string  `validate:"oneof=jpeg png"`
	JPEGQuality int     `validate:"gte=1,lte=100"`
	Gray        bool
}

// AnalysisConfig controls content detection.
type AnalysisConfig struct {
	DPI             float64 `validate:"gte=36,lte=600"`
	Threshold       int     `validate:"gte=1,lte=255"`
	MinPixels       int     `validate:"gte=1"`
	MinGraphicsSize float64 `validate:"gte=0"`
}

// ImposeConfig controls booklet sheet sizing.
type ImposeConfig struct {
	ReferencePage int `validate:"gte=0"`
}

// RuntimeConfig covers concurrency, temp files and external services.
type RuntimeConfig struct {
	Workers        int `validate:"gte=1,lte=64"`
	TempDir        string
	TempMaxAge     time.Duration
	RedisURL       string
	CacheTTL       time.Duration `validate:"gte=0"`
	S3Endpoint     string        `validate:"omitempty,url"`
	ConvertTimeout time.Duration `validate:"gt=0"`
	MetricsFile    string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Crop     CropConfig
	Render   RenderConfig
	Analysis AnalysisConfig
	Impose   ImposeConfig
	Runtime  RuntimeConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfimposer",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Crop = CropConfig{
		Margin:       parseFloat(getEnv("CROP_MARGIN", "10"), 10),
		AllowUpscale: parseBool(getEnv("CROP_ALLOW_UPSCALE", "true")),
	}

	cfg.Render = RenderConfig{
		Mode:        strings.ToLower(getEnv("RENDER_MODE", "vector")),
		DPI:         parseFloat(getEnv("RENDER_DPI", "300"), 300),
		BookletDPI:  parseFloat(getEnv("BOOKLET_RENDER_DPI", "450"), 450),
		Format:      strings.ToLower(getEnv("RENDER_FORMAT", "jpeg")),
		JPEGQuality: parseInt(getEnv("JPEG_QUALITY", "90"), 90),
		Gray:        parseBool(getEnv("RENDER_GRAY", "false")),
	}

	cfg.Analysis = AnalysisConfig{
		DPI:             parseFloat(getEnv("ANALYSIS_DPI", "150"), 150),
		Threshold:       parseInt(getEnv("ANALYSIS_THRESHOLD", "245"), 245),
		MinPixels:       parseInt(getEnv("ANALYSIS_MIN_PIXELS", "2"), 2),
		MinGraphicsSize: parseFloat(getEnv("MIN_GRAPHICS_SIZE_PT", "56.7"), 56.7),
	}

	cfg.Impose = ImposeConfig{
		ReferencePage: parseInt(getEnv("REFERENCE_PAGE", "0"), 0),
	}

	cfg.Runtime = RuntimeConfig{
		Workers:        parseInt(getEnv("WORKERS", "4"), 4),
		TempDir:        getEnv("TEMP_DIR", os.TempDir()),
		TempMaxAge:     parseDuration(getEnv("TEMP_MAX_AGE", "24h"), 24*time.Hour),
		RedisURL:       getEnv("REDIS_URL", ""),
		CacheTTL:       parseDuration(getEnv("BOUNDS_CACHE_TTL", "720h"), 720*time.Hour),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		ConvertTimeout: parseDuration(getEnv("CONVERT_TIMEOUT", "180s"), 180*time.Second),
		MetricsFile:    getEnv("METRICS_FILE", ""),
	}

	return cfg
}

var validate = validator.New()

// Validate checks value ranges. Violations are reported as invalid arguments
// naming the offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Invalid("config", fe.Value(), "%s failed %q (param %s)", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return apperr.Invalid("config", nil, "%v", err)
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
