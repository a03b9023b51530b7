package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultCaptionModel   = "gpt-4.1"
	defaultEmbeddingModel = "text-embedding-3-large"
	defaultAzureVersion   = "2024-10-21"
)

// OpenAIClient captions images with chat completions and embeds text with
// the embeddings endpoint. It talks to OpenAI or an Azure OpenAI resource;
// on Azure the model names are deployment names.
type OpenAIClient struct {
	client         openai.Client
	captionModel   string
	embeddingModel string
	stats          *Stats
}

func NewOpenAIClient(opts Options, stats *Stats) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if strings.EqualFold(opts.Provider, ProviderAzure) {
		version := opts.APIVersion
		if version == "" {
			version = defaultAzureVersion
		}
		reqOpts = append(reqOpts,
			azure.WithEndpoint(opts.Endpoint, version),
			azure.WithAPIKey(opts.APIKey),
		)
	} else {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
		if opts.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
		}
	}

	c := &OpenAIClient{
		client:         openai.NewClient(reqOpts...),
		captionModel:   opts.CaptionModel,
		embeddingModel: opts.EmbeddingModel,
		stats:          stats,
	}
	if c.captionModel == "" {
		c.captionModel = defaultCaptionModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultEmbeddingModel
	}
	return c
}

// Caption sends prompt and the image as a base64 data URL.
func (c *OpenAIClient) Caption(ctx context.Context, image []byte, mimeType, prompt string) (caption string, err error) {
	done := c.stats.track(OpCaption)
	defer func() { done(err) }()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.captionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(mimeType, image),
				}),
			}),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", mapOpenAIError("caption", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai caption: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns the embedding of text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) (vec []float32, err error) {
	done := c.stats.track(OpEmbed)
	defer func() { done(err) }()

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, mapOpenAIError("embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}

	raw := resp.Data[0].Embedding
	vec = make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
