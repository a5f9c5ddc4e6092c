// Package llm talks to OpenAI-compatible chat completion endpoints, OpenRouter by default.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/bill-assistant/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-4"
	defaultTimeout = 120 * time.Second

	// errorBodyLimit caps how much of a failed response ends up in the error.
	errorBodyLimit = 512
)

// Config holds client configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
	Referer     string // OpenRouter attribution, optional
	Title       string
	Retry       *RetryConfig
}

// Client is a domain.ChatCompleter over HTTP.
type Client struct {
	cfg        Config
	baseURL    string
	retry      *RetryConfig
	httpClient *http.Client
}

// NewClient fills defaults for anything left empty in cfg.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		retry:      retry,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	// Some providers report failures inside a 200 response.
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the ordered messages and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if len(messages) == 0 {
		return "", domain.ValidationError("no messages to send", nil)
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", domain.APIError("failed to encode request", err)
	}

	resp, err := DoWithRetry(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return "", domain.APIError("chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", domain.APIError(fmt.Sprintf("chat completion returned %d: %s", resp.StatusCode, snippet), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", domain.APIError("malformed chat completion", err)
	}
	switch {
	case parsed.Error != nil && parsed.Error.Message != "":
		return "", domain.APIError("provider error: "+parsed.Error.Message, nil)
	case len(parsed.Choices) == 0:
		return "", domain.APIError("chat completion has no choices", nil)
	}

	reply := parsed.Choices[0].Message.Content
	if strings.TrimSpace(reply) == "" {
		return "", domain.APIError("chat completion is empty", nil)
	}
	return reply, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
}
