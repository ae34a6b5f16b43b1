package config

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"docredact/internal/logger"
	"docredact/internal/pii"
)

// Config is the full pipeline configuration. Every component receives its own
// section at construction time; nothing reads configuration globally.
type Config struct {
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Detection DetectionConfig `mapstructure:"detection"`
	Redaction RedactionConfig `mapstructure:"redaction"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Generate  GenerateConfig  `mapstructure:"generate"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type DatasetConfig struct {
	RawDir       string   `mapstructure:"raw_dir"`
	RedactedDir  string   `mapstructure:"redacted_dir"`
	MetadataPath string   `mapstructure:"metadata_path"`
	DocTypes     []string `mapstructure:"doc_types"`
}

// DetectionConfig carries the PII pattern set and the confidence thresholds.
// Patterns left empty fall back to the built-in Vietnamese pattern set.
type DetectionConfig struct {
	Patterns         map[string]string `mapstructure:"patterns"`
	MinOCRConfidence float64           `mapstructure:"min_ocr_confidence"`
	MinConfidence    float64           `mapstructure:"min_confidence"`
	MatchWeight      float64           `mapstructure:"match_weight"`
	OCRWeight        float64           `mapstructure:"ocr_weight"`
}

type RedactionConfig struct {
	Padding int    `mapstructure:"padding"`
	Color   string `mapstructure:"color"` // #RRGGBB
	DPI     int    `mapstructure:"dpi"`
}

type OCRConfig struct {
	Engine       string        `mapstructure:"engine"` // vision, documentai, tesseract
	Languages    []string      `mapstructure:"languages"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Timeout      time.Duration `mapstructure:"timeout"`
	ProjectID    string        `mapstructure:"project_id"`
	Location     string        `mapstructure:"location"`
	ProcessorID  string        `mapstructure:"processor_id"`
	Rasterizer   string        `mapstructure:"rasterizer"` // mupdf, poppler
	PdftoppmPath string        `mapstructure:"pdftoppm_path"`
}

type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type PipelineConfig struct {
	Version string `mapstructure:"version"`
	Workers int    `mapstructure:"workers"`
}

type GenerateConfig struct {
	ImageCount  int   `mapstructure:"image_count"`
	PDFCount    int   `mapstructure:"pdf_count"`
	MinPages    int   `mapstructure:"min_pages"`
	MaxPages    int   `mapstructure:"max_pages"`
	Seed        int64 `mapstructure:"seed"`
	ScanEffects bool  `mapstructure:"scan_effects"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
	Output     string `mapstructure:"output"`
}

var defaults = map[string]interface{}{
	"dataset.raw_dir":              "dataset/raw",
	"dataset.redacted_dir":         "dataset/raw/redacted",
	"dataset.metadata_path":        "dataset/raw/metadata.json",
	"dataset.doc_types":            []string{"sales_contract", "deposit_contract", "lease_agreement"},
	"detection.patterns":           map[string]string{},
	"detection.min_ocr_confidence": 0.3,
	"detection.min_confidence":     0.5,
	"detection.match_weight":       0.6,
	"detection.ocr_weight":         0.4,
	"redaction.padding":            5,
	"redaction.color":              "#000000",
	"redaction.dpi":                300,
	"ocr.engine":                   "vision",
	"ocr.languages":                []string{"vi", "en"},
	"ocr.rate_limit":               5.0,
	"ocr.timeout":                  60 * time.Second,
	"ocr.project_id":               "",
	"ocr.location":                 "us",
	"ocr.processor_id":             "",
	"ocr.rasterizer":               "mupdf",
	"ocr.pdftoppm_path":            "pdftoppm",
	"cache.redis_url":              "",
	"cache.ttl":                    24 * time.Hour,
	"storage.endpoint":             "",
	"storage.access_key":           "",
	"storage.secret_key":           "",
	"storage.bucket":               "redacted-dataset",
	"storage.use_ssl":              false,
	"storage.prefix":               "",
	"database.url":                 "",
	"pipeline.version":             "1.0.0",
	"pipeline.workers":             1,
	"generate.image_count":         10,
	"generate.pdf_count":           30,
	"generate.min_pages":           3,
	"generate.max_pages":           5,
	"generate.scan_effects":        true,
	"generate.seed":                0,
	"logging.level":                "info",
	"logging.format":               "console",
	"logging.time_format":          time.RFC3339,
	"logging.output":               "stdout",
}

// Load reads configuration from defaults, an optional YAML file and
// PIPELINE_* environment variables (e.g. PIPELINE_OCR_ENGINE), in increasing
// order of precedence. An empty path searches for pipeline.yaml in the usual
// places; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("pipeline")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("$HOME/.docredact/")

	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Dataset.RawDir == "" {
		return fmt.Errorf("dataset.raw_dir is required")
	}
	if c.Dataset.MetadataPath == "" {
		return fmt.Errorf("dataset.metadata_path is required")
	}
	if c.Detection.MinOCRConfidence < 0 || c.Detection.MinOCRConfidence > 1 {
		return fmt.Errorf("detection.min_ocr_confidence must be within [0,1], got %v", c.Detection.MinOCRConfidence)
	}
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be within [0,1], got %v", c.Detection.MinConfidence)
	}
	if c.Detection.MatchWeight < 0 || c.Detection.OCRWeight < 0 {
		return fmt.Errorf("detection weights must be non-negative")
	}
	if c.Redaction.Padding < 0 {
		return fmt.Errorf("redaction.padding must be non-negative, got %d", c.Redaction.Padding)
	}
	if c.Redaction.DPI <= 0 {
		return fmt.Errorf("redaction.dpi must be positive, got %d", c.Redaction.DPI)
	}
	if _, err := c.RedactionColor(); err != nil {
		return err
	}
	switch c.OCR.Engine {
	case "vision", "documentai", "tesseract":
	default:
		return fmt.Errorf("invalid ocr.engine: %s (must be vision, documentai or tesseract)", c.OCR.Engine)
	}
	switch c.OCR.Rasterizer {
	case "mupdf", "poppler":
	default:
		return fmt.Errorf("invalid ocr.rasterizer: %s (must be mupdf or poppler)", c.OCR.Rasterizer)
	}
	if c.OCR.Engine == "documentai" && (c.OCR.ProjectID == "" || c.OCR.ProcessorID == "") {
		return fmt.Errorf("ocr.project_id and ocr.processor_id are required for the documentai engine")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Generate.ImageCount < 0 {
		return fmt.Errorf("generate.image_count must not be negative, got %d", c.Generate.ImageCount)
	}
	if c.Generate.PDFCount < 0 {
		return fmt.Errorf("generate.pdf_count must not be negative, got %d", c.Generate.PDFCount)
	}
	if c.Generate.MinPages < 1 || c.Generate.MaxPages < c.Generate.MinPages {
		return fmt.Errorf("generate page range must satisfy 1 <= min_pages <= max_pages, got %d..%d", c.Generate.MinPages, c.Generate.MaxPages)
	}
	return nil
}

// RedactionColor parses Redaction.Color (#RRGGBB) into an opaque color.
func (c *Config) RedactionColor() (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(c.Redaction.Color), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("redaction.color must be #RRGGBB, got %q", c.Redaction.Color)
	}
	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("redaction.color must be #RRGGBB, got %q", c.Redaction.Color)
	}
	return color.RGBA{R: uint8(value >> 16), G: uint8(value >> 8), B: uint8(value), A: 0xff}, nil
}

// Snapshot returns the run-level configuration recorded in the metadata ledger.
func (c *Config) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ocr_engine":         c.OCR.Engine,
		"ocr_languages":      c.OCR.Languages,
		"dpi":                c.Redaction.DPI,
		"redaction_padding":  c.Redaction.Padding,
		"redaction_color":    c.Redaction.Color,
		"min_ocr_confidence": c.Detection.MinOCRConfidence,
		"min_confidence":     c.Detection.MinConfidence,
		"target_image_count": c.Generate.ImageCount,
		"target_pdf_count":   c.Generate.PDFCount,
		"doc_types":          c.Dataset.DocTypes,
		"pii_patterns":       piiPatternKeys(),
	}
}

// piiPatternKeys lists the PII type keys the detector matches, in enumeration order.
func piiPatternKeys() []string {
	keys := make([]string, len(pii.AllTypes))
	for i, t := range pii.AllTypes {
		keys[i] = string(t)
	}
	return keys
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		TimeFormat: c.Logging.TimeFormat,
		Output:     c.Logging.Output,
	}
}
