package qa

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
	defaultReaderBaseURL = "https://api-inference.huggingface.co/models"
	// DefaultReaderModel is the extractive reader used when none is configured.
	DefaultReaderModel = "deepset/roberta-base-squad2"
)

// HTTPReaderConfig configures an HTTPReader.
type HTTPReaderConfig struct {
	BaseURL  string
	Model    string
	APIToken string
	Timeout  time.Duration
	Retry    *llm.RetryConfig
}

// HTTPReader queries a hosted extractive question-answering model, one call per document.
type HTTPReader struct {
	endpoint   string
	token      string
	retry      *llm.RetryConfig
	httpClient *http.Client
}

type readerRequest struct {
	Inputs     readerInputs     `json:"inputs"`
	Parameters readerParameters `json:"parameters"`
}

type readerInputs struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

type readerParameters struct {
	TopK int `json:"top_k"`
}

type readerAnswer struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

// NewHTTPReader creates a reader for the configured model endpoint.
func NewHTTPReader(cfg HTTPReaderConfig) *HTTPReader {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultReaderBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultReaderModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &HTTPReader{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Model,
		token:      cfg.APIToken,
		retry:      cfg.Retry,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Read implements Reader.
func (r *HTTPReader) Read(ctx context.Context, question string, corpus []domain.DocumentContext, topK int) ([]Candidate, error) {
	var candidates []Candidate
	for _, doc := range corpus {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		answers, err := r.readOne(ctx, question, doc.Text, topK)
		if err != nil {
			return nil, err
		}
		for _, a := range answers {
			candidates = append(candidates, Candidate{
				Answer:  strings.TrimSpace(a.Answer),
				Score:   a.Score,
				Source:  doc.SourceName,
				Context: spanContext(doc.Text, a.Start, a.End),
			})
		}
	}
	return candidates, nil
}

func (r *HTTPReader) readOne(ctx context.Context, question, context string, topK int) ([]readerAnswer, error) {
	body, err := json.Marshal(readerRequest{
		Inputs:     readerInputs{Question: question, Context: context},
		Parameters: readerParameters{TopK: topK},
	})
	if err != nil {
		return nil, domain.APIError("Failed to marshal request", err)
	}

	resp, err := llm.DoWithRetry(ctx, r.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}
		return r.httpClient.Do(req)
	})
	if err != nil {
		return nil, domain.APIError("reader request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.APIError("Failed to read response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.APIError(fmt.Sprintf("reader returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	return decodeAnswers(raw)
}

// decodeAnswers accepts both the single-object (top_k=1) and list response shapes.
func decodeAnswers(raw []byte) ([]readerAnswer, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, domain.APIError("reader returned an empty body", nil)
	}

	if trimmed[0] == '[' {
		var answers []readerAnswer
		if err := json.Unmarshal(trimmed, &answers); err != nil {
			return nil, domain.APIError("Malformed reader response", err)
		}
		return answers, nil
	}

	var single readerAnswer
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, domain.APIError("Malformed reader response", err)
	}
	if single.Answer == "" {
		return nil, nil
	}
	return []readerAnswer{single}, nil
}

// spanContext returns the text around a character span, clamped to text.
func spanContext(text string, start, end int) string {
	runes := []rune(text)
	if start < 0 || end > len(runes) || start >= end {
		return ""
	}
	const pad = 40
	from, to := start-pad, end+pad
	if from < 0 {
		from = 0
	}
	if to > len(runes) {
		to = len(runes)
	}
	return string(runes[from:to])
}
