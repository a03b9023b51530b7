package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/manualgest/internal/chunker"
	"github.com/dgallion1/manualgest/internal/config"
	"github.com/dgallion1/manualgest/internal/ingest"
	"github.com/dgallion1/manualgest/internal/llm"
	"github.com/dgallion1/manualgest/internal/qdrant"
)

var ingestCollection string

var ingestCmd = &cobra.Command{
	Use:   "ingest <chunks.json>",
	Short: "Embed chunk records and load them into Qdrant",
	Long: `Ingest reads a records file written by extract, embeds every record with
content and replaces the target collection with the result. The collection
defaults to a name derived from the records' document.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "target collection (default: derived from the document name)")
}

// readRecords loads and validates a records file.
func readRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if err := chunker.ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("validate records: %w", err)
	}
	return records, nil
}

// collectionFor picks the collection for records read from path.
func collectionFor(records []map[string]any, path string) string {
	for _, r := range records {
		if doc, ok := r["document"].(string); ok && doc != "" {
			return qdrant.CollectionName(doc)
		}
	}
	return qdrant.CollectionName(path)
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := cmd.Context()

	cfg, err := loadConfig(config.ModeIngest, nil)
	if err != nil {
		return err
	}
	records, err := readRecords(args[0])
	if err != nil {
		return err
	}
	collection := ingestCollection
	if collection == "" {
		collection = collectionFor(records, args[0])
	}

	model, err := llm.New(ctx, cfg.LLMOptions(), nil)
	if err != nil {
		return err
	}
	vectors := qdrant.NewClient(cfg.Qdrant.URL, cfg.Qdrant.APIKey)
	report, err := ingest.NewIngester(model, vectors, cfg.IngestOptions(), log).Ingest(ctx, collection, records)
	if err != nil {
		return err
	}
	return outputTo(cmd.OutOrStdout(), globalOutputFormat, report)
}
