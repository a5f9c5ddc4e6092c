package domain

import "context"

// Message is the role/content pair sent to a chat-completion backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatCompleter turns an ordered message list into a reply
type ChatCompleter interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Translator translates one chunk of source-language text
type Translator interface {
	// Name identifies the translator, used to scope cached translations
	Name() string
	Translate(ctx context.Context, chunk string) (string, error)
}

// Extractor turns raw PDF bytes into ordered page texts
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]string, error)
}

// Query is what a QA backend receives for one question. Chat backends read
// Messages; extractive backends read Question and Corpus.
type Query struct {
	Messages []Message
	Question string
	Corpus   []DocumentContext
}

// QABackend answers a single query
type QABackend interface {
	Answer(ctx context.Context, q Query) (string, error)
}
