package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docredact/internal/logger"
	"docredact/internal/ocr"
	"docredact/internal/pii"
	"docredact/internal/raster"
	"docredact/internal/redaction"
)

var detectCmd = &cobra.Command{
	Use:   "detect [file]",
	Short: "Find PII in a single PDF or image without redacting it",
	Long: `Run OCR and PII detection over one document and report what was found.

Findings carry the PII type, page, confidence, bounding box and value length.
The matched values themselves are never printed or written.

The OCR engine is chosen by ocr.engine (vision, documentai or tesseract).
The Google engines need GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.`,
	Example: `  # Print findings for a contract
  docredact detect dataset/raw/sales_contract_01.pdf

  # Write findings as JSON
  docredact detect scan.png --json -o findings.json

  # Use the local Tesseract engine
  PIPELINE_OCR_ENGINE=tesseract docredact detect scan.png`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

// DetectOutput represents the JSON output structure when --json flag is used
type DetectOutput struct {
	FileName           string         `json:"file_name"`
	FileSize           int64          `json:"file_size"`
	Engine             string         `json:"engine"`
	PageCount          int            `json:"page_count"`
	PIICount           int            `json:"pii_count"`
	PIIStatistics      map[string]int `json:"pii_statistics"`
	Findings           []pii.Summary  `json:"findings"`
	ProcessedAt        time.Time      `json:"processed_at"`
	ProcessingDuration string         `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	detectCmd.Flags().Bool("json", false, "Output as JSON")
	detectCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runDetect(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("detect")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	log.Info().
		Str("file", path).
		Str("output", outputPath).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting PII detection")

	fileInfo, err := validateDocumentFile(path, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	c, err := createComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	startTime := time.Now()

	pages, err := raster.LoadDocument(ctx, c.rasterizer, path)
	if err != nil {
		return handleProcessingError(err, log)
	}

	extracted, err := ocr.Extract(ctx, c.engine, filepath.Base(path), pages, cfg.OCR.Languages)
	if err != nil {
		return handleProcessingError(err, log)
	}
	findings := c.detector.Detect(extracted.Pages)

	output := DetectOutput{
		FileName:           filepath.Base(path),
		FileSize:           fileInfo.Size(),
		Engine:             c.engine.Name(),
		PageCount:          len(pages),
		PIICount:           len(findings),
		PIIStatistics:      make(map[string]int),
		Findings:           pii.Summaries(findings),
		ProcessedAt:        time.Now(),
		ProcessingDuration: time.Since(startTime).String(),
	}
	for t, n := range pii.Statistics(findings) {
		output.PIIStatistics[string(t)] = n
	}

	log.Info().
		Int("page_count", output.PageCount).
		Int("pii_count", output.PIICount).
		Float64("ocr_confidence", extracted.Confidence).
		Dur("duration", time.Since(startTime)).
		Msg("PII detection completed successfully")

	return outputFindings(output, outputPath, jsonOutput, log)
}

// validateDocumentFile checks that path is a readable, non-empty PDF or image
func validateDocumentFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", path).
				Msg("Document not found")
			return nil, fmt.Errorf("document not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", path).
				Msg("Permission denied accessing document")
			return nil, fmt.Errorf("permission denied accessing document: %s", path)
		}
		return nil, fmt.Errorf("error accessing document: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", path).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	if !raster.IsPDF(path) && !raster.IsImage(path) {
		log.Error().
			Str("file", path).
			Msg("Unsupported document type")
		return nil, fmt.Errorf("unsupported document type: %s (expected .pdf, .png, .jpg, .jpeg, .tif, .tiff or .bmp)", path)
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", path).
			Msg("Document is empty")
		return nil, fmt.Errorf("document is empty: %s", path)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling.
// A timeout of zero or less means no deadline.
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeoutSecs > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}

// handleProcessingError provides user-friendly error messages for OCR, rasterization and redaction failures
func handleProcessingError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Document processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled), errors.Is(err, ocr.ErrContextCanceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, raster.ErrSourceUnreadable):
		return fmt.Errorf("the document could not be read. Please check the file path and permissions: %w", err)
	case errors.Is(err, raster.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported or corrupted image file: %w", err)
	case errors.Is(err, raster.ErrRasterizeFailed):
		return fmt.Errorf("PDF rasterization failed. Check that the PDF is not corrupted; with ocr.rasterizer=poppler also that pdftoppm is installed (or set ocr.pdftoppm_path): %w", err)
	case errors.Is(err, ocr.ErrImageTooLarge):
		var ocrErr *ocr.OCRError
		if errors.As(err, &ocrErr) && ocrErr.Document != "" {
			return fmt.Errorf("page %d of %s is too large for the OCR API (maximum 20MB). Try lowering redaction.dpi", ocrErr.Page, ocrErr.Document)
		}
		return fmt.Errorf("a page image is too large for the OCR API (maximum 20MB). Try lowering redaction.dpi")
	case errors.Is(err, ocr.ErrInvalidImage):
		return fmt.Errorf("invalid or corrupted page image. Please check the file integrity")
	case errors.Is(err, ocr.ErrQuotaExceeded):
		return fmt.Errorf("OCR API quota exceeded. Lower ocr.rate_limit or check your project quotas in the Google Cloud Console")
	case errors.Is(err, redaction.ErrNoPagesWritten):
		return fmt.Errorf("no redacted page could be written. Check that the output directory is writable: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "invalid_rapt") ||
		strings.Contains(errStr, "auth:") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials:\n\n" +
			"1. Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file path:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Or set GOOGLE_CREDENTIALS with inline JSON:\n" +
			"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
			"3. If using Application Default Credentials, run:\n" +
			"   gcloud auth application-default login\n\n" +
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "forbidden"):
		return fmt.Errorf("permission denied. Please ensure your Google Cloud service account can use the Vision or Document AI API")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("document processing failed: %w", err)
	}
}

// outputFindings formats and outputs the detection results
func outputFindings(result DetectOutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		outputData = append(data, '\n')
	} else {
		outputData = []byte(formatFindings(result))
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, outputData, 0o644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("Detection results written to file")
		return nil
	}

	if _, err := os.Stdout.Write(outputData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func formatFindings(result DetectOutput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== PII findings for %s ===\n", result.FileName)
	fmt.Fprintf(&b, "Engine: %s\n", result.Engine)
	fmt.Fprintf(&b, "Pages processed: %d\n", result.PageCount)
	fmt.Fprintf(&b, "PII found: %d\n", result.PIICount)

	types := make([]string, 0, len(result.PIIStatistics))
	for t := range result.PIIStatistics {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "  %s: %d\n", t, result.PIIStatistics[t])
	}

	if len(result.Findings) > 0 {
		b.WriteString("\n")
	}
	for _, f := range result.Findings {
		fmt.Fprintf(&b, "page %d  %-8s confidence %.3f  box x=%d y=%d w=%d h=%d  %s\n",
			f.Page, f.Type, f.Confidence, f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3], strings.Repeat("*", f.ValueLength))
	}

	return b.String()
}
