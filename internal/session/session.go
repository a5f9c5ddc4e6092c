// Package session keeps per-user conversation state isolated from other sessions.
package session

import (
	"sync"
	"time"

	"github.com/spherical/bill-assistant/internal/conversation"
	"github.com/spherical/bill-assistant/internal/domain"
)

// Session is one user's document, context and transcript.
type Session struct {
	ID        string
	CreatedAt time.Time

	conv *conversation.Accumulator

	mu         sync.RWMutex
	document   *domain.ExtractedDocument
	lastActive time.Time
	persist    *persister
}

// Summary is a read-only view of a session for listings.
type Summary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	LastActive  time.Time `json:"lastActive"`
	Turns       int       `json:"turns"`
	HasDocument bool      `json:"hasDocument"`
	HasContext  bool      `json:"hasContext"`
	SourceName  string    `json:"sourceName,omitempty"`
}

// Conversation returns the session's accumulator.
func (s *Session) Conversation() *conversation.Accumulator {
	s.touch()
	return s.conv
}

// Document returns the last extracted document, if any.
func (s *Session) Document() (domain.ExtractedDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.document == nil {
		return domain.ExtractedDocument{}, false
	}
	return *s.document, true
}

// SetDocument replaces the extracted document. The active context is not
// touched until the new document is translated.
func (s *Session) SetDocument(doc domain.ExtractedDocument) {
	s.mu.Lock()
	s.document = &doc
	s.lastActive = time.Now()
	p := s.persist
	s.mu.Unlock()

	if p != nil {
		p.documentChanged(doc)
	}
}

// Summary describes the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	sum := Summary{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		LastActive:  s.lastActive,
		HasDocument: s.document != nil,
	}
	s.mu.RUnlock()

	sum.Turns = s.conv.Len()
	if dc, ok := s.conv.DocumentContext(); ok {
		sum.HasContext = true
		sum.SourceName = dc.SourceName
	}
	return sum
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive.Before(cutoff)
}
