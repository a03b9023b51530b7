// Package llm wraps the model providers used for image captions and
// chunk embeddings.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Captioner describes an image in natural language.
type Captioner interface {
	Caption(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider names accepted by New.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNoop   = "noop"
)

// Options selects and configures a provider.
type Options struct {
	Provider string

	APIKey     string
	BaseURL    string
	Endpoint   string // azure only
	APIVersion string // azure only

	CaptionModel   string
	EmbeddingModel string
	MaxRetries     int
}

// Client is a provider that can both caption and embed.
type Client interface {
	Captioner
	Embedder
}

// New builds the client for opts.Provider.
func New(ctx context.Context, opts Options, stats *Stats) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case ProviderAzure, ProviderOpenAI:
		return NewOpenAIClient(opts, stats), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, opts, stats)
	case ProviderNoop, "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
