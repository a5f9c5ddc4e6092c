package domain

import (
	"time"
)

// DefaultSourceName labels a document context when the upload carried no name.
const DefaultSourceName = "hospital_bill"

// Role identifies the author of a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one labeled message in a conversation transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the ordered turn history of one session.
type Transcript []Turn

// DocumentContext is the most recently translated document text.
type DocumentContext struct {
	Text       string `json:"text"`
	SourceName string `json:"source_name"`
}

// Answer is the reply produced for a single question.
type Answer struct {
	Content string `json:"content"`
}

// ExtractedDocument holds the page texts pulled out of an uploaded PDF.
type ExtractedDocument struct {
	Name  string   `json:"name"`
	Pages []string `json:"pages"`
	Text  string   `json:"text"`
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart            EventType = "start"
	EventChunkTranslating EventType = "chunk_translating"
	EventChunkComplete    EventType = "chunk_complete"
	EventError            EventType = "error"
	EventComplete         EventType = "complete"
)

// StreamEvent represents an event emitted during translation
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Chunk     int         `json:"chunk,omitempty"` // 1-based
	Total     int         `json:"total,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ProcessingStats contains metadata about a translation run
type ProcessingStats struct {
	TotalTime   time.Duration
	Chunks      int
	CachedHits  int
	SourceRunes int
}
