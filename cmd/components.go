package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"docredact/internal/config"
	"docredact/internal/ledger"
	"docredact/internal/logger"
	"docredact/internal/ocr"
	"docredact/internal/ocr/tesseract"
	"docredact/internal/pii"
	"docredact/internal/raster"
	"docredact/internal/raster/mupdf"
	"docredact/internal/redaction"
	"docredact/internal/storage"
)

// components holds the processing stack shared by run, detect and redact.
type components struct {
	engine      ocr.Engine
	rasterizer  raster.Rasterizer
	detector    *pii.Detector
	coordinator *redaction.Coordinator

	closers []io.Closer
}

// Close releases engine clients and cache connections.
func (c *components) Close() {
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			logger.WithComponent("cmd").Warn().Err(err).Msg("Failed to close client")
		}
	}
}

// createComponents builds the OCR engine, rasterizer, detector and redaction coordinator from cfg.
func createComponents(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*components, error) {
	c := &components{}

	engine, err := createEngine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if closer, ok := engine.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
	c.engine = withCache(ctx, engine, cfg.Cache, c, log)

	matcher, err := pii.NewMatcherFromConfig(cfg.Detection.Patterns)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("invalid detection patterns: %w", err)
	}
	c.detector, err = pii.NewDetector(matcher, pii.Thresholds{
		MinOCRConfidence: cfg.Detection.MinOCRConfidence,
		MinConfidence:    cfg.Detection.MinConfidence,
		MatchWeight:      cfg.Detection.MatchWeight,
		OCRWeight:        cfg.Detection.OCRWeight,
	}, logger.WithComponent("detector"))
	if err != nil {
		c.Close()
		return nil, err
	}

	fill, err := cfg.RedactionColor()
	if err != nil {
		c.Close()
		return nil, err
	}
	renderer := redaction.NewRenderer(redaction.Options{Padding: cfg.Redaction.Padding, Color: fill}, logger.WithComponent("renderer"))

	c.rasterizer = createRasterizer(cfg.OCR, cfg.Redaction.DPI)
	c.coordinator = redaction.NewCoordinator(renderer, c.rasterizer, logger.WithComponent("redaction"))

	log.Debug().
		Str("engine", c.engine.Name()).
		Int("dpi", cfg.Redaction.DPI).
		Msg("Processing components created")

	return c, nil
}

// createRasterizer creates the PDF rasterizer selected by ocr.rasterizer.
func createRasterizer(cfg config.OCRConfig, dpi int) raster.Rasterizer {
	log := logger.WithComponent("rasterizer")
	if cfg.Rasterizer == "poppler" {
		return raster.NewPopplerRasterizer(cfg.PdftoppmPath, dpi, log)
	}
	return mupdf.New(dpi, log)
}

// createEngine creates the OCR engine selected by ocr.engine.
func createEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Engine, error) {
	switch cfg.OCR.Engine {
	case "tesseract":
		return tesseract.New(cfg.Redaction.DPI), nil
	case "documentai":
		if err := checkGoogleCredentials(log); err != nil {
			return nil, err
		}
		engine, err := ocr.NewDocumentAIEngine(ctx, ocr.DocumentAIConfig{
			ProjectID:   cfg.OCR.ProjectID,
			Location:    cfg.OCR.Location,
			ProcessorID: cfg.OCR.ProcessorID,
			Timeout:     cfg.OCR.Timeout,
			RateLimit:   cfg.OCR.RateLimit,
		})
		if err != nil {
			return nil, engineError(err, log)
		}
		return engine, nil
	default:
		if err := checkGoogleCredentials(log); err != nil {
			return nil, err
		}
		engine, err := ocr.NewVisionEngine(ctx, cfg.OCR.RateLimit)
		if err != nil {
			return nil, engineError(err, log)
		}
		return engine, nil
	}
}

// withCache wraps engine with the Redis result cache when one is configured.
// An unreachable Redis only disables caching.
func withCache(ctx context.Context, engine ocr.Engine, cache config.CacheConfig, c *components, log zerolog.Logger) ocr.Engine {
	if cache.RedisURL == "" {
		return engine
	}

	store, err := ocr.NewRedisStore(ctx, cache.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("OCR cache unavailable, continuing without cache")
		return engine
	}
	c.closers = append(c.closers, store)

	log.Info().Dur("ttl", cache.TTL).Msg("OCR result cache enabled")
	return ocr.NewCachedEngine(engine, store, cache.TTL)
}

// checkGoogleCredentials fails early with setup instructions when no Google credentials are configured.
func checkGoogleCredentials(log zerolog.Logger) error {
	hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
	if hasCredentials {
		return nil
	}

	log.Error().Msg("Google Cloud credentials not configured")
	return fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
		"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
		"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
		"2. Export GOOGLE_CREDENTIALS with inline JSON:\n" +
		"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
		"3. Or run without Google Cloud:\n" +
		"   export PIPELINE_OCR_ENGINE=tesseract")
}

func engineError(err error, log zerolog.Logger) error {
	if errors.Is(err, ocr.ErrMissingCredentials) {
		log.Error().
			Err(err).
			Msg("Google Cloud credentials validation failed")
		return fmt.Errorf("Google Cloud credentials validation failed. Please verify:\n\n" +
			"1. Credentials file exists and is readable\n" +
			"2. JSON format is valid\n" +
			"3. Service account has proper permissions\n\n" +
			"Original error: %w", err)
	}
	log.Error().
		Err(err).
		Msg("Failed to create OCR engine")
	return fmt.Errorf("failed to create OCR engine: %w", err)
}

// createPublisher returns nil when no object storage endpoint is configured.
func createPublisher(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (*storage.Publisher, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	publisher, err := storage.NewPublisher(cfg, logger.WithComponent("storage"))
	if err != nil {
		return nil, err
	}
	if err := publisher.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Msg("Object storage publishing enabled")
	return publisher, nil
}

// createSink returns nil when no database URL is configured.
func createSink(ctx context.Context, cfg config.DatabaseConfig) (*ledger.PostgresSink, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return ledger.NewPostgresSink(ctx, cfg.URL, logger.WithComponent("postgres"))
}

// openLedger returns the ledger at path, loading it when it already exists.
func openLedger(path string, log zerolog.Logger) (*ledger.Ledger, error) {
	l := ledger.New(path, logger.WithComponent("ledger"))
	found, err := l.Load()
	if err != nil {
		return nil, err
	}
	if found {
		log.Info().
			Str("path", path).
			Int("documents", len(l.Documents())).
			Msg("Existing metadata loaded")
	}
	return l, nil
}
