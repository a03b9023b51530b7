package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgallion1/manualgest/internal/llm"
)

// DefaultTopK is used when a query does not ask for a count.
const DefaultTopK = 3

const notAvailable = "N/A"

// Source is one retrieved chunk.
type Source struct {
	Document      string  `json:"document"`
	SectionNumber string  `json:"section_number"`
	SectionTitle  string  `json:"section_title"`
	PageNumber    int     `json:"page_number"`
	Chunk         string  `json:"chunk"`
	Score         float64 `json:"similarity_score"`
}

// Searcher embeds questions and looks them up in a collection.
type Searcher struct {
	embedder llm.Embedder
	store    Store
}

func NewSearcher(embedder llm.Embedder, store Store) *Searcher {
	return &Searcher{embedder: embedder, store: store}
}

// Search returns up to topK sources in the order the index returns them.
func (s *Searcher) Search(ctx context.Context, collection, question string, topK int) ([]Source, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := s.store.Search(ctx, collection, vec, topK)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, Source{
			Document:      stringField(h.Payload, "document", ""),
			SectionNumber: stringField(h.Payload, "section_number", notAvailable),
			SectionTitle:  stringField(h.Payload, "section_title", notAvailable),
			PageNumber:    intField(h.Payload, "page_number", -1),
			Chunk:         stringField(h.Payload, "content", ""),
			Score:         h.Score,
		})
	}
	return sources, nil
}

func stringField(p map[string]any, key, def string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return def
}

func intField(p map[string]any, key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
