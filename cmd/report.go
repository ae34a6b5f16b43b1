package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docredact/internal/logger"
	"docredact/internal/sheets"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the metadata ledger of the last run",
	Long: `Load dataset.metadata_path and print the dataset summary: documents, total
PII detected, average PII per document and counts per PII and document type.

The ledger can also be exported as a flat Parquet table of findings, appended
to a Google Sheet for review, uploaded to object storage or mirrored to Postgres.`,
	Example: `  # Print the summary
  docredact report

  # Export one row per finding for analysis
  docredact report --parquet findings.parquet

  # Mirror the ledger into the configured database
  docredact report --sync

  # Append one review row per document to a Google Sheet
  docredact report --sheet "https://docs.google.com/spreadsheets/d/<id>/edit"`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("parquet", "", "Export findings to this Parquet file")
	reportCmd.Flags().Bool("sync", false, "Mirror the ledger into database.url")
	reportCmd.Flags().Bool("publish", false, "Upload redacted files and metadata to object storage")
	reportCmd.Flags().String("sheet", "", "Append review rows to this Google Sheets URL")
	reportCmd.Flags().String("sheet-name", sheets.DefaultSheetName, "Tab name for --sheet")
	reportCmd.Flags().Int("timeout", 300, "Timeout in seconds for --sync, --publish and --sheet")
}

func runReport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")

	parquetPath, _ := cmd.Flags().GetString("parquet")
	sync, _ := cmd.Flags().GetBool("sync")
	publish, _ := cmd.Flags().GetBool("publish")
	sheetURL, _ := cmd.Flags().GetString("sheet")
	sheetName, _ := cmd.Flags().GetString("sheet-name")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	l, err := openLedger(cfg.Dataset.MetadataPath, log)
	if err != nil {
		return err
	}
	if len(l.Documents()) == 0 {
		return fmt.Errorf("no documents recorded in %s. Run 'docredact run' first", cfg.Dataset.MetadataPath)
	}

	fmt.Fprintln(os.Stdout, l.Summary())

	if parquetPath != "" {
		rows, err := l.ExportParquet(parquetPath)
		if err != nil {
			return err
		}
		log.Info().
			Str("path", parquetPath).
			Int("rows", rows).
			Msg("Findings exported")
	}

	if !sync && !publish && sheetURL == "" {
		return nil
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	if sheetURL != "" {
		service, err := sheets.NewSheetsService(ctx, sheetURL)
		if err != nil {
			return err
		}
		rows, err := service.WriteReview(ctx, l, sheetName)
		if err != nil {
			return err
		}
		log.Info().Int("rows", rows).Str("sheet", sheetName).Msg("Review sheet updated")
	}

	if publish {
		publisher, err := createPublisher(ctx, cfg.Storage, log)
		if err != nil {
			return err
		}
		if publisher == nil {
			return fmt.Errorf("--publish needs storage.endpoint to be configured")
		}
		result, err := publisher.Publish(ctx, l, cfg.Dataset.RedactedDir)
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			log.Warn().Strs("failed", result.Failed).Msg("Some files were not uploaded")
		}
	}

	if sync {
		sink, err := createSink(ctx, cfg.Database)
		if err != nil {
			return err
		}
		if sink == nil {
			return fmt.Errorf("--sync needs database.url to be configured")
		}
		defer sink.Close()
		if err := sink.Sync(ctx, l); err != nil {
			return err
		}
	}

	return nil
}
