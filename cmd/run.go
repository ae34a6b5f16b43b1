package cmd

import (
	"github.com/spf13/cobra"

	"docredact/internal/logger"
	"docredact/internal/pipeline"
	"docredact/internal/synth"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Redact every document in the dataset directory",
	Long: `Process every PDF and image in dataset.raw_dir: rasterize, OCR, detect PII,
write redacted copies to dataset.redacted_dir and record the run in
dataset.metadata_path.

A document that fails is recorded with its error and does not stop the run.
When storage.endpoint is set the redacted files and metadata are uploaded to
object storage; when database.url is set the records are mirrored to Postgres.`,
	Example: `  # Redact the configured dataset
  docredact run

  # Generate 10 contract images first, then redact with 4 workers
  docredact run --generate 10 --workers 4

  # Also generate 5 multi-page contract PDFs
  docredact run --generate 10 --generate-pdfs 5`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("generate", 0, "Generate this many synthetic contract images before processing")
	runCmd.Flags().Int("generate-pdfs", 0, "Generate this many synthetic multi-page contract PDFs before processing")
	runCmd.Flags().Int("workers", 0, "Number of concurrent workers (default: pipeline.workers)")
	runCmd.Flags().Int("timeout", 0, "Overall timeout in seconds (0 = none)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("run")

	generateImages, _ := cmd.Flags().GetInt("generate")
	generatePDFs, _ := cmd.Flags().GetInt("generate-pdfs")
	plan := generationPlan(generatePDFs, generateImages)
	workers, _ := cmd.Flags().GetInt("workers")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	if workers <= 0 {
		workers = cfg.Pipeline.Workers
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	c, err := createComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	l, err := openLedger(cfg.Dataset.MetadataPath, log)
	if err != nil {
		return err
	}

	components := pipeline.Components{
		Engine:      c.engine,
		Rasterizer:  c.rasterizer,
		Detector:    c.detector,
		Coordinator: c.coordinator,
		Ledger:      l,
	}

	if plan.Total() > 0 {
		opts := synth.DefaultOptions()
		opts.ScanEffects = cfg.Generate.ScanEffects
		components.Generator, err = synth.NewGenerator(cfg.Generate.Seed, opts, logger.WithComponent("synth"))
		if err != nil {
			return err
		}
	}

	publisher, err := createPublisher(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	if publisher != nil {
		components.Publisher = publisher
	}

	sink, err := createSink(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
		components.Sink = sink
	}

	p := pipeline.New(components, pipeline.Options{
		RawDir:        cfg.Dataset.RawDir,
		RedactedDir:   cfg.Dataset.RedactedDir,
		Languages:     cfg.OCR.Languages,
		DocTypes:      cfg.Dataset.DocTypes,
		Workers:       workers,
		Version:       cfg.Pipeline.Version,
		Configuration: cfg.Snapshot(),
		Generate:      plan,
	}, logger.WithComponent("pipeline"))

	stats, err := p.Run(ctx)
	if err != nil {
		return handleProcessingError(err, log)
	}

	log.Info().
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Str("metadata", l.Path()).
		Msg("Run finished")
	return nil
}
