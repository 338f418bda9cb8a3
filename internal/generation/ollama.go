package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OllamaConfig struct {
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// Ollama calls the non-streaming /api/generate endpoint.
type Ollama struct {
	baseURL     string
	temperature float64
	client      *http.Client
}

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Ollama{
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		client:      newHTTPClient(cfg.Timeout),
	}, nil
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// Temperature is always sent; Ollama's own default is not 0.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

func (o *Ollama) Generate(ctx context.Context, model, prompt string) (string, error) {
	payload := ollamaRequest{Model: model, Prompt: prompt, Options: ollamaOptions{Temperature: o.temperature}}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request generation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(rawRespBody)}
	}

	var parsed struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("generation failed: %s", parsed.Error)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Response, nil
}
