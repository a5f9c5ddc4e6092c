// Package qa provides the question-answering backends behind the conversation accumulator.
package qa

import (
	"fmt"
	"strings"
	"time"

	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/llm"
)

// Backend names accepted by New.
const (
	BackendChat       = "chat"
	BackendExtractive = "extractive"

	ReaderHTTP    = "http"
	ReaderLexical = "lexical"
)

// Config selects and configures a QA backend.
type Config struct {
	Backend string // chat or extractive
	Reader  string // http or lexical, extractive only
	TopK    int

	ReaderBaseURL string
	ReaderModel   string
	APIToken      string
	Timeout       time.Duration
	Retry         *llm.RetryConfig
}

// New builds the backend named by cfg.Backend. chat is required for the chat backend.
func New(cfg Config, chat domain.ChatCompleter) (domain.QABackend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendChat:
		if chat == nil {
			return nil, domain.ConfigError("chat backend needs a chat-completion client", nil)
		}
		return NewChatBackend(chat), nil

	case BackendExtractive:
		var reader Reader
		switch strings.ToLower(strings.TrimSpace(cfg.Reader)) {
		case "", ReaderLexical:
			reader = NewLexicalReader()
		case ReaderHTTP:
			reader = NewHTTPReader(HTTPReaderConfig{
				BaseURL:  cfg.ReaderBaseURL,
				Model:    cfg.ReaderModel,
				APIToken: cfg.APIToken,
				Timeout:  cfg.Timeout,
				Retry:    cfg.Retry,
			})
		default:
			return nil, domain.ConfigError(fmt.Sprintf("unknown qa reader %q", cfg.Reader), nil)
		}
		return NewExtractiveBackend(reader, cfg.TopK), nil

	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown qa backend %q", cfg.Backend), nil)
	}
}
