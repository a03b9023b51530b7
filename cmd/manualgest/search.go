package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/manualgest/internal/config"
	"github.com/dgallion1/manualgest/internal/ingest"
	"github.com/dgallion1/manualgest/internal/llm"
	"github.com/dgallion1/manualgest/internal/qdrant"
)

var searchTopK int

var searchCmd = &cobra.Command{
	Use:   "search <collection> <question>",
	Short: "Return the chunks nearest to a question",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(config.ModeSearch, nil)
		if err != nil {
			return err
		}
		model, err := llm.New(ctx, cfg.LLMOptions(), nil)
		if err != nil {
			return err
		}
		searcher := ingest.NewSearcher(model, qdrant.NewClient(cfg.Qdrant.URL, cfg.Qdrant.APIKey))
		sources, err := searcher.Search(ctx, args[0], strings.Join(args[1:], " "), searchTopK)
		if err != nil {
			return err
		}
		if sources == nil {
			sources = []ingest.Source{}
		}
		return outputTo(cmd.OutOrStdout(), globalOutputFormat, map[string]any{"raw_sources": sources})
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", ingest.DefaultTopK, "number of chunks to return")
}
