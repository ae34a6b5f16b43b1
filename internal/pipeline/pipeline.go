// Package pipeline runs the dataset redaction pipeline end to end.
//
// Documents are rasterized, recognized, scanned for PII and redacted by a pool
// of workers. Only the goroutine calling Run touches the ledger: it registers
// every document before processing starts and applies worker results in
// input order once the pool drains.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docredact/internal/ledger"
	"docredact/internal/ocr"
	"docredact/internal/pii"
	"docredact/internal/raster"
	"docredact/internal/redaction"
	"docredact/internal/storage"
	"docredact/internal/synth"
)

// Publisher uploads a saved run.
type Publisher interface {
	Publish(ctx context.Context, l *ledger.Ledger, redactedDir string) (*storage.Result, error)
}

// Sink mirrors a saved run into an external store.
type Sink interface {
	Sync(ctx context.Context, l *ledger.Ledger) error
}

// Components are the collaborators of a run. Generator, Publisher and Sink are optional.
type Components struct {
	Engine      ocr.Engine
	Rasterizer  raster.Rasterizer
	Detector    *pii.Detector
	Coordinator *redaction.Coordinator
	Ledger      *ledger.Ledger

	Generator *synth.Generator
	Publisher Publisher
	Sink      Sink
}

// Options control a run.
type Options struct {
	RawDir      string
	RedactedDir string
	Languages   []string
	DocTypes    []string
	Workers     int

	Version       string
	Configuration map[string]interface{}

	// Generate is written to RawDir first when a Generator is set.
	Generate synth.Plan
}

// DocumentResult is the outcome of one document, produced by a worker.
type DocumentResult struct {
	Index    int
	Path     string
	Filename string
	Pages    int
	Findings []pii.Finding
	Detected bool
	Report   *redaction.Report
	Err      error
	Duration time.Duration
}

// Stats summarizes a run.
type Stats struct {
	Processed  int
	Successful int
	Failed     int
	TotalPII   int
	Duration   time.Duration
}

// Pipeline orchestrates one run.
type Pipeline struct {
	c    Components
	opts Options
	log  zerolog.Logger
}

// New creates a pipeline.
func New(c Components, opts Options, log zerolog.Logger) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{c: c, opts: opts, log: log}
}

// Run generates (optionally), discovers, processes and records every document,
// then saves the ledger. Per-document failures are recorded, not returned; Run
// fails only when the dataset cannot be listed or the ledger cannot be saved,
// published or synced.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()

	p.c.Ledger.InitDatasetInfo(p.opts.Version, p.opts.Configuration)

	generated := make(map[string]ledger.DocumentRecord)
	if p.c.Generator != nil && p.opts.Generate.Total() > 0 {
		records, err := p.c.Generator.Generate(ctx, p.opts.RawDir, p.opts.Generate, p.opts.DocTypes)
		if err != nil {
			return nil, fmt.Errorf("document generation failed: %w", err)
		}
		for _, rec := range records {
			generated[rec.Filename] = rec
		}
	}

	files, err := DiscoverDocuments(p.opts.RawDir)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Str("dir", p.opts.RawDir).
		Int("documents", len(files)).
		Int("workers", p.opts.Workers).
		Msg("Starting pipeline")

	// Register first so results always have a record to attach to.
	for _, path := range files {
		name := filepath.Base(path)
		if rec, ok := generated[name]; ok {
			// The file was just rewritten, so its ground truth replaces any loaded record.
			if err := p.c.Ledger.ReplaceGenerated(rec); err != nil {
				p.log.Warn().Err(err).Str("file", name).Msg("Failed to register generated document")
			}
			continue
		}
		rec := ledger.DocumentRecord{Filename: name, DocType: inferDocType(name, p.opts.DocTypes)}
		if err := p.c.Ledger.AddDocument(rec); err != nil && !errors.Is(err, ledger.ErrDuplicateDocument) {
			p.log.Warn().Err(err).Str("file", name).Msg("Failed to register document")
		}
	}

	results := p.processInParallel(ctx, files)

	stats := &Stats{}
	for _, result := range results {
		stats.Processed++
		p.record(result, stats)
	}
	stats.Duration = time.Since(start)

	p.c.Ledger.UpdateProcessingStats(map[string]interface{}{
		"total_processing_time_seconds": pii.Round(stats.Duration.Seconds(), 2),
		"documents_processed":           stats.Processed,
		"documents_successful":          stats.Successful,
		"documents_failed":              stats.Failed,
		"total_pii_detected":            stats.TotalPII,
		"ocr_engine":                    p.c.Engine.Name(),
	})

	if err := p.c.Ledger.Save(); err != nil {
		return stats, err
	}

	if p.c.Publisher != nil {
		if _, err := p.c.Publisher.Publish(ctx, p.c.Ledger, p.opts.RedactedDir); err != nil {
			return stats, fmt.Errorf("publish failed: %w", err)
		}
	}
	if p.c.Sink != nil {
		if err := p.c.Sink.Sync(ctx, p.c.Ledger); err != nil {
			return stats, fmt.Errorf("database sync failed: %w", err)
		}
	}

	p.log.Info().
		Int("processed", stats.Processed).
		Int("successful", stats.Successful).
		Int("failed", stats.Failed).
		Int("total_pii", stats.TotalPII).
		Dur("duration", stats.Duration).
		Msg("Pipeline completed")
	p.log.Info().Msg("\n" + p.c.Ledger.Summary())

	return stats, nil
}

// record applies one worker result to the ledger.
func (p *Pipeline) record(result DocumentResult, stats *Stats) {
	l := p.c.Ledger

	if result.Detected {
		stats.TotalPII += len(result.Findings)
		if err := l.AttachFindings(result.Filename, result.Findings); err != nil {
			p.log.Warn().Err(err).Str("file", result.Filename).Msg("Failed to record findings")
		}
	}

	if result.Err != nil {
		stats.Failed++
		if err := l.MarkFailed(result.Filename, result.Err); err != nil {
			p.log.Warn().Err(err).Str("file", result.Filename).Msg("Failed to record failure")
		}
		return
	}

	stats.Successful++
	if err := l.AttachRedaction(result.Filename, result.Report); err != nil {
		p.log.Warn().Err(err).Str("file", result.Filename).Msg("Failed to record redaction")
	}
}

// workerJob is one document queued for a worker.
type workerJob struct {
	Path  string
	Index int
}

// processInParallel processes documents using a worker pool pattern
func (p *Pipeline) processInParallel(ctx context.Context, files []string) []DocumentResult {
	jobs := make(chan workerJob, len(files))
	results := make([]DocumentResult, len(files))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				p.log.Debug().
					Int("worker", workerID).
					Str("file", job.Path).
					Int("index", job.Index+1).
					Msg("Worker processing document")

				result := p.ProcessDocument(ctx, job.Path)
				result.Index = job.Index

				// Each worker owns distinct indices.
				results[job.Index] = result

				mu.Lock()
				processedCount++
				current := processedCount
				mu.Unlock()

				event := p.log.Info()
				if result.Err != nil {
					event = p.log.Error().Err(result.Err)
				}
				event.
					Str("file", result.Filename).
					Int("progress", current).
					Int("total", len(files)).
					Int("pii", len(result.Findings)).
					Dur("duration", result.Duration).
					Msg("Document processed")
			}
		}(w)
	}

	for i, path := range files {
		jobs <- workerJob{Path: path, Index: i}
	}
	close(jobs)

	wg.Wait()

	return results
}

// ProcessDocument rasterizes, recognizes, detects and redacts one document.
// It does not touch the ledger. Findings are returned even when redaction fails.
func (p *Pipeline) ProcessDocument(ctx context.Context, path string) DocumentResult {
	start := time.Now()
	result := DocumentResult{Path: path, Filename: filepath.Base(path)}

	pages, err := raster.LoadDocument(ctx, p.c.Rasterizer, path)
	if err != nil {
		result.Err = fmt.Errorf("failed to load document: %w", err)
		return finish(result, start)
	}
	result.Pages = len(pages)

	findings, err := p.detect(ctx, result.Filename, pages)
	if err != nil {
		result.Err = err
		return finish(result, start)
	}
	result.Findings = findings
	result.Detected = true

	outputPath := filepath.Join(p.opts.RedactedDir, "redacted_"+result.Filename)
	report, err := p.c.Coordinator.RedactPages(ctx, path, pages, findings, outputPath, raster.IsPDF(path))
	if err != nil {
		result.Err = fmt.Errorf("redaction failed: %w", err)
		return finish(result, start)
	}
	result.Report = report

	return finish(result, start)
}

func (p *Pipeline) detect(ctx context.Context, id string, pages []image.Image) ([]pii.Finding, error) {
	extracted, err := ocr.Extract(ctx, p.c.Engine, id, pages, p.opts.Languages)
	if err != nil {
		return nil, fmt.Errorf("ocr failed: %w", err)
	}
	return p.c.Detector.Detect(extracted.Pages), nil
}

func finish(result DocumentResult, start time.Time) DocumentResult {
	result.Duration = time.Since(start)
	return result
}
