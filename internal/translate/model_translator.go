package translate

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
	"github.com/spherical/bill-assistant/internal/llm"
)

const (
	// DefaultModelBaseURL is the hosted inference endpoint prefix.
	DefaultModelBaseURL = "https://api-inference.huggingface.co/models"
	// DefaultTranslationModel is the German to Chinese seq2seq model.
	DefaultTranslationModel = "Helsinki-NLP/opus-mt-de-zh"
)

// ModelConfig configures a ModelTranslator.
type ModelConfig struct {
	BaseURL  string
	Model    string
	APIToken string
	Timeout  time.Duration
	Retry    *llm.RetryConfig
}

// ModelTranslator calls a hosted seq2seq translation model.
type ModelTranslator struct {
	endpoint   string
	model      string
	token      string
	retry      *llm.RetryConfig
	httpClient *http.Client
}

type modelRequest struct {
	Inputs string `json:"inputs"`
}

type modelOutput struct {
	TranslationText string `json:"translation_text"`
	GeneratedText   string `json:"generated_text"`
}

type modelError struct {
	Error string `json:"error"`
}

// NewModelTranslator creates a translator for the configured model endpoint.
func NewModelTranslator(cfg ModelConfig) *ModelTranslator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultModelBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultTranslationModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &ModelTranslator{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Model,
		model:      cfg.Model,
		token:      cfg.APIToken,
		retry:      cfg.Retry,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements domain.Translator.
func (t *ModelTranslator) Name() string {
	return "model:" + t.model
}

// Translate implements domain.Translator.
func (t *ModelTranslator) Translate(ctx context.Context, chunk string) (string, error) {
	body, err := json.Marshal(modelRequest{Inputs: chunk})
	if err != nil {
		return "", domain.TranslationError("Failed to marshal request", err)
	}

	resp, err := llm.DoWithRetry(ctx, t.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if t.token != "" {
			req.Header.Set("Authorization", "Bearer "+t.token)
		}
		return t.httpClient.Do(req)
	})
	if err != nil {
		return "", domain.TranslationError("translation request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.TranslationError("Failed to read response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr modelError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return "", domain.TranslationError(fmt.Sprintf("model returned status %d: %s", resp.StatusCode, apiErr.Error), nil)
		}
		return "", domain.TranslationError(fmt.Sprintf("model returned status %d", resp.StatusCode), nil)
	}

	var outputs []modelOutput
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return "", domain.TranslationError("Malformed model response", err)
	}
	if len(outputs) == 0 {
		return "", domain.TranslationError("model returned no translation", nil)
	}

	text := outputs[0].TranslationText
	if text == "" {
		text = outputs[0].GeneratedText
	}
	if strings.TrimSpace(text) == "" && strings.TrimSpace(chunk) != "" {
		return "", domain.TranslationError("model returned an empty translation", nil)
	}
	return text, nil
}
