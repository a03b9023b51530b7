package llm

import (
	"context"
	"errors"
)

// ErrNoEmbeddings is returned by Noop.Embed.
var ErrNoEmbeddings = errors.New("embeddings are disabled")

// Noop returns empty captions and refuses to embed.
type Noop struct{}

func (Noop) Caption(context.Context, []byte, string, string) (string, error) { return "", nil }

func (Noop) Embed(context.Context, string) ([]float32, error) { return nil, ErrNoEmbeddings }
