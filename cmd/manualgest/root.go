package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/manualgest/internal/config"
)

var (
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "manualgest",
	Short: "Section-aware chunking and vector ingestion for training manuals",
	Long: `manualgest turns training manuals into section-level chunk records.

Commands:
  extract  split a manual into section, image and TOC records
  ingest   embed a chunks file and load it into a Qdrant collection
  search   embed a question and return the nearest chunks`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setOutputFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./manualgest.yaml)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "output", "json", "output format: json or yaml",
	)

	rootCmd.AddCommand(extractCmd, ingestCmd, searchCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the configuration and lets adjust change it before it
// is validated for mode.
func loadConfig(mode config.Mode, adjust func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	if err := cfg.ValidateFor(mode); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
