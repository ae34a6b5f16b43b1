package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docredact/internal/config"
	"docredact/internal/logger"
)

var version = "1.0.0"

// cfg is loaded once per invocation, before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "docredact",
	Short: "docredact - PII redaction for Vietnamese contract datasets",
	Long: `docredact finds personal information in scanned Vietnamese real-estate
contracts (names, CCCD numbers, dates of birth, phone numbers, addresses)
and writes copies with every detected value covered by an opaque box.

Every run is recorded in a metadata ledger (metadata.json) holding per-document
PII statistics and box locations, never the PII values themselves.

Configuration is read from pipeline.yaml (or --config) and PIPELINE_* environment
variables, e.g. PIPELINE_OCR_ENGINE=tesseract.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Setup(loaded.GetLoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("docredact executed")

		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		// Fetched after the run so the failure lands in the configured log output.
		log := logger.WithComponent("cmd")
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
	}
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the pipeline configuration file (default: ./pipeline.yaml)")
}
