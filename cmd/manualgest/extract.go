package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/manualgest/internal/chunker"
	"github.com/dgallion1/manualgest/internal/config"
	"github.com/dgallion1/manualgest/internal/llm"
	"github.com/dgallion1/manualgest/internal/parser"
)

var (
	extractOut      string
	extractImages   string
	extractCaptions bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Split a manual into chunk records",
	Long: `Extract walks a manual page by page and writes its section, image and
table-of-contents records as a JSON array. Images are written to the
--images directory and captioned unless --captions=false.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "extracted_content.json", "records file to write")
	extractCmd.Flags().StringVar(&extractImages, "images", "extracted_images", "directory for extracted images")
	extractCmd.Flags().BoolVar(&extractCaptions, "captions", true, "caption images with the configured llm provider")
}

type extractSummary struct {
	Document string        `json:"document"`
	Title    *string       `json:"title"`
	Output   string        `json:"output"`
	Chunks   int           `json:"chunks"`
	TOCPages []int         `json:"toc_pages"`
	Stats    chunker.Stats `json:"stats"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := cmd.Context()

	cfg, err := loadConfig(config.ModeExtract, func(c *config.Config) {
		if cmd.Flags().Changed("captions") {
			c.Extract.Captions = extractCaptions
		}
	})
	if err != nil {
		return err
	}

	doc, err := parser.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer doc.Close()

	var captioner chunker.Captioner
	if cfg.Extract.Captions {
		client, err := llm.New(ctx, cfg.LLMOptions(), nil)
		if err != nil {
			return err
		}
		captioner = client
	}

	res, err := chunker.NewExtractor(cfg.ChunkerConfig(extractImages), captioner, log).Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	records, err := chunker.ToRecords(res.Chunks)
	if err != nil {
		return err
	}
	if err := chunker.ValidateRecords(records); err != nil {
		return fmt.Errorf("validate records: %w", err)
	}

	f, err := os.Create(extractOut)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := chunker.WriteJSON(f, res.Chunks); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	return outputTo(cmd.OutOrStdout(), globalOutputFormat, extractSummary{
		Document: res.Document,
		Title:    res.Title,
		Output:   extractOut,
		Chunks:   len(res.Chunks),
		TOCPages: res.TOCPages,
		Stats:    res.Stats,
	})
}
