package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docredact/internal/logger"
	"docredact/internal/pipeline"
)

var redactCmd = &cobra.Command{
	Use:   "redact [file]",
	Short: "Redact PII in a single PDF or image",
	Long: `Run OCR, PII detection and redaction over one document.

A PDF produces one PNG per page (redacted_<name>_page_<n>.png); an image
produces redacted_<name> in its own format. The metadata ledger is not touched.`,
	Example: `  # Redact into the configured redacted directory
  docredact redact contract.pdf

  # Redact into a specific directory
  docredact redact scan.jpg --output-dir out/`,
	Args: cobra.ExactArgs(1),
	RunE: runRedact,
}

func init() {
	rootCmd.AddCommand(redactCmd)

	redactCmd.Flags().String("output-dir", "", "Directory for redacted output (default: dataset.redacted_dir)")
	redactCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runRedact(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("redact")

	outputDir, _ := cmd.Flags().GetString("output-dir")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	if outputDir == "" {
		outputDir = cfg.Dataset.RedactedDir
	}

	path := args[0]
	if _, err := validateDocumentFile(path, log); err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	c, err := createComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	p := pipeline.New(pipeline.Components{
		Engine:      c.engine,
		Rasterizer:  c.rasterizer,
		Detector:    c.detector,
		Coordinator: c.coordinator,
	}, pipeline.Options{
		RedactedDir: outputDir,
		Languages:   cfg.OCR.Languages,
	}, logger.WithComponent("pipeline"))

	result := p.ProcessDocument(ctx, path)
	if result.Err != nil {
		return handleProcessingError(result.Err, log)
	}

	log.Info().
		Str("file", result.Filename).
		Int("pages", result.Pages).
		Int("pii", len(result.Findings)).
		Int("redactions", result.Report.TotalRedactions).
		Dur("duration", result.Duration).
		Msg("Document redacted")

	fmt.Fprintf(os.Stdout, "Redacted %d PII region(s) in %s\n", result.Report.TotalRedactions, result.Filename)
	for _, name := range result.Report.RedactedFiles {
		fmt.Fprintf(os.Stdout, "  %s\n", filepath.Join(outputDir, name))
	}
	if len(result.Report.FailedPages) > 0 {
		pages := make([]string, len(result.Report.FailedPages))
		for i, page := range result.Report.FailedPages {
			pages[i] = fmt.Sprint(page)
		}
		fmt.Fprintf(os.Stdout, "Pages that could not be written: %s\n", strings.Join(pages, ", "))
	}
	return nil
}
