package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiCaptionModel   = "gemini-2.5-flash"
	defaultGeminiEmbeddingModel = "gemini-embedding-001"
)

// GeminiClient captions and embeds through the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	captionModel   string
	embeddingModel string
	stats          *Stats
}

func NewGeminiClient(ctx context.Context, opts Options, stats *Stats) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	c := &GeminiClient{
		client:         client,
		captionModel:   opts.CaptionModel,
		embeddingModel: opts.EmbeddingModel,
		stats:          stats,
	}
	if c.captionModel == "" {
		c.captionModel = defaultGeminiCaptionModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultGeminiEmbeddingModel
	}
	return c, nil
}

func (c *GeminiClient) Caption(ctx context.Context, image []byte, mimeType, prompt string) (caption string, err error) {
	done := c.stats.track(OpCaption)
	defer func() { done(err) }()

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
		},
	}}
	res, err := c.client.Models.GenerateContent(ctx, c.captionModel, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", mapGeminiError("caption", err)
	}
	return strings.TrimSpace(res.Text()), nil
}

func (c *GeminiClient) Embed(ctx context.Context, text string) (vec []float32, err error) {
	done := c.stats.track(OpEmbed)
	defer func() { done(err) }()

	res, err := c.client.Models.EmbedContent(ctx, c.embeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return nil, mapGeminiError("embed", err)
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return res.Embeddings[0].Values, nil
}
