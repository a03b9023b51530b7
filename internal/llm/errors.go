package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// RetryableError indicates a transient provider failure.
type RetryableError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: retryable error (status %d): %s", e.Provider, e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable reports whether err wraps a *RetryableError.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// mapOpenAIError turns transient API failures into *RetryableError and
// passes everything else through with context.
func mapOpenAIError(op string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("openai %s: %w", op, err)
	}
	if retryableStatus(apiErr.StatusCode) {
		re := &RetryableError{Provider: "openai", StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		if apiErr.Response != nil {
			re.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return fmt.Errorf("openai %s: %w", op, re)
	}
	if apiErr.Message != "" {
		return fmt.Errorf("openai %s (status %d): %s", op, apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("openai %s (status %d)", op, apiErr.StatusCode)
}

func mapGeminiError(op string, err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr):
		apiErr = *apiErrPtr
	default:
		return fmt.Errorf("gemini %s: %w", op, err)
	}
	if retryableStatus(apiErr.Code) {
		return fmt.Errorf("gemini %s: %w", op, &RetryableError{Provider: "gemini", StatusCode: apiErr.Code, Message: apiErr.Message})
	}
	return fmt.Errorf("gemini %s (status %d): %s", op, apiErr.Code, apiErr.Message)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
