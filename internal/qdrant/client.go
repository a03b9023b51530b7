// Package qdrant is a small client for the Qdrant REST API covering the
// collection, upsert and search calls used by ingestion and retrieval.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Distance metrics accepted by CreateCollection.
const (
	Cosine    = "Cosine"
	Dot       = "Dot"
	Euclidean = "Euclid"
)

// Client communicates with a Qdrant server over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Point is a vector with its payload.
type Point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ScoredPoint is a single search hit.
type ScoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// RetryableError is returned for 429 and 5xx responses.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("qdrant: retryable error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err wraps a *RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// ErrNotFound is returned when a collection does not exist.
var ErrNotFound = errors.New("qdrant: not found")

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

type upsertRequest struct {
	Points []Point `json:"points"`
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []ScoredPoint `json:"result"`
}

// CreateCollection creates a collection with a single unnamed vector.
func (c *Client) CreateCollection(ctx context.Context, name string, size int, distance string) error {
	if distance == "" {
		distance = Cosine
	}
	req := createCollectionRequest{Vectors: vectorParams{Size: size, Distance: distance}}
	if err := c.do(ctx, http.MethodPut, collectionPath(name), req, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection removes a collection. A missing collection is not an error.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, collectionPath(name), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// RecreateCollection drops any existing collection and creates it empty.
func (c *Client) RecreateCollection(ctx context.Context, name string, size int, distance string) error {
	if err := c.DeleteCollection(ctx, name); err != nil {
		return err
	}
	return c.CreateCollection(ctx, name, size, distance)
}

// CollectionExists reports whether the collection is present.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	err := c.do(ctx, http.MethodGet, collectionPath(name), nil, nil)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("get collection %s: %w", name, err)
	}
}

// EnsureCollection creates the collection if it does not exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, size int, distance string) error {
	ok, err := c.CollectionExists(ctx, name)
	if err != nil || ok {
		return err
	}
	return c.CreateCollection(ctx, name, size, distance)
}

// Upsert writes points and waits for them to be indexed.
func (c *Client) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	u := collectionPath(name) + "/points?wait=true"
	if err := c.do(ctx, http.MethodPut, u, upsertRequest{Points: points}, nil); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), name, err)
	}
	return nil
}

// Search returns the limit nearest points to vector, with payloads.
func (c *Client) Search(ctx context.Context, name string, vector []float32, limit int) ([]ScoredPoint, error) {
	var resp searchResponse
	req := searchRequest{Vector: vector, Limit: limit, WithPayload: true}
	if err := c.do(ctx, http.MethodPost, collectionPath(name)+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	return resp.Result, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

var (
	nonSlug  = regexp.MustCompile(`[^a-z0-9_-]`)
	dashRuns = regexp.MustCompile(`[-_]{2,}`)
)

// CollectionName derives a collection name from a document name: the
// extension is dropped and the rest lowercased and slugged.
func CollectionName(doc string) string {
	base := doc
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	s := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(base)), "_")
	s = dashRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_-")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		s = "documents"
	}
	return s
}
