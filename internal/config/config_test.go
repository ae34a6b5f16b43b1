package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Redaction.Padding != 5 {
		t.Errorf("Redaction.Padding = %d, want 5", cfg.Redaction.Padding)
	}
	if cfg.Redaction.DPI != 300 {
		t.Errorf("Redaction.DPI = %d, want 300", cfg.Redaction.DPI)
	}
	if cfg.Detection.MinOCRConfidence != 0.3 || cfg.Detection.MinConfidence != 0.5 {
		t.Errorf("thresholds = %v/%v, want 0.3/0.5", cfg.Detection.MinOCRConfidence, cfg.Detection.MinConfidence)
	}
	if cfg.OCR.Engine != "vision" {
		t.Errorf("OCR.Engine = %q, want vision", cfg.OCR.Engine)
	}
	if cfg.OCR.Timeout != 60*time.Second {
		t.Errorf("OCR.Timeout = %v, want 60s", cfg.OCR.Timeout)
	}
	if len(cfg.Dataset.DocTypes) != 3 {
		t.Errorf("Dataset.DocTypes = %v, want 3 entries", cfg.Dataset.DocTypes)
	}
	if cfg.OCR.Rasterizer != "mupdf" {
		t.Errorf("OCR.Rasterizer = %q, want mupdf", cfg.OCR.Rasterizer)
	}
	if cfg.Generate.PDFCount != 30 || cfg.Generate.MinPages != 3 || cfg.Generate.MaxPages != 5 {
		t.Errorf("Generate = %+v, want 30 PDFs of 3..5 pages", cfg.Generate)
	}
	if cfg.Pipeline.Version != "1.0.0" {
		t.Errorf("Pipeline.Version = %q, want 1.0.0", cfg.Pipeline.Version)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
dataset:
  raw_dir: /data/raw
  metadata_path: /data/raw/metadata.json
redaction:
  padding: 8
  color: "#FF0000"
ocr:
  engine: tesseract
  languages: [vie, eng]
pipeline:
  workers: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dataset.RawDir != "/data/raw" {
		t.Errorf("Dataset.RawDir = %q", cfg.Dataset.RawDir)
	}
	if cfg.Redaction.Padding != 8 {
		t.Errorf("Redaction.Padding = %d, want 8", cfg.Redaction.Padding)
	}
	if cfg.OCR.Engine != "tesseract" {
		t.Errorf("OCR.Engine = %q, want tesseract", cfg.OCR.Engine)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Pipeline.Workers = %d, want 4", cfg.Pipeline.Workers)
	}

	got, err := cfg.RedactionColor()
	if err != nil {
		t.Fatalf("RedactionColor() error = %v", err)
	}
	if want := (color.RGBA{R: 0xff, A: 0xff}); got != want {
		t.Errorf("RedactionColor() = %v, want %v", got, want)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PIPELINE_REDACTION_PADDING", "12")
	t.Setenv("PIPELINE_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redaction.Padding != 12 {
		t.Errorf("Redaction.Padding = %d, want 12", cfg.Redaction.Padding)
	}
	if cfg.GetLoggerConfig().Level != "debug" {
		t.Errorf("logger level = %q, want debug", cfg.GetLoggerConfig().Level)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative padding", "redaction:\n  padding: -1\n"},
		{"bad color", "redaction:\n  color: black\n"},
		{"unknown engine", "ocr:\n  engine: abbyy\n"},
		{"documentai without processor", "ocr:\n  engine: documentai\n  project_id: p\n"},
		{"threshold above one", "detection:\n  min_confidence: 1.5\n"},
		{"zero workers", "pipeline:\n  workers: 0\n"},
		{"negative image count", "generate:\n  image_count: -1\n"},
		{"negative pdf count", "generate:\n  pdf_count: -2\n"},
		{"inverted page range", "generate:\n  min_pages: 4\n  max_pages: 2\n"},
		{"unknown rasterizer", "ocr:\n  rasterizer: ghostscript\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("Load() expected validation error")
			}
		})
	}
}

func TestSnapshotRecordsPatternKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snapshot := cfg.Snapshot()
	keys, ok := snapshot["pii_patterns"].([]string)
	if !ok {
		t.Fatalf("pii_patterns = %T, want []string", snapshot["pii_patterns"])
	}
	want := []string{"cccd", "dob", "name", "phone", "address"}
	if len(keys) != len(want) {
		t.Fatalf("pii_patterns = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("pii_patterns[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	if snapshot["target_pdf_count"] != 30 {
		t.Errorf("target_pdf_count = %v, want 30", snapshot["target_pdf_count"])
	}
}
