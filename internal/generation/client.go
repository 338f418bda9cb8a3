// Package generation talks to the language model service that writes SQL and
// phrases answers.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dbtalk/dbtalk/internal/config"
)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Client generates text for a prompt with the named model.
type Client interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// StatusError reports a non-success HTTP response from the model service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation failed status=%d body=%s", e.StatusCode, e.Body)
}

const defaultTimeout = 60 * time.Second

// New builds the client for the configured provider.
func New(cfg config.GenerationConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", config.ProviderOllama:
		return NewOllama(OllamaConfig{
			BaseURL:     cfg.BaseURL(),
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL(),
			APIKey:      cfg.APIKey,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func normalizeBaseURL(raw string) (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(raw), "/")
	if baseURL == "" {
		return "", fmt.Errorf("base URL is required")
	}
	return baseURL, nil
}
