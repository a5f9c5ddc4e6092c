// Package storage persists sessions, transcripts and documents on SQLite or Postgres.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// Session is a persisted conversation session.
type Session struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TurnRecord is one transcript turn at its position in the session.
type TurnRecord struct {
	SessionID uuid.UUID `json:"session_id" db:"session_id"`
	Seq       int       `json:"seq" db:"seq"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DocumentRecord is the extracted text of the session's uploaded PDF.
type DocumentRecord struct {
	SessionID uuid.UUID `json:"session_id" db:"session_id"`
	Name      string    `json:"name" db:"name"`
	Pages     []string  `json:"pages" db:"pages"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ContextRecord is the session's active translated document context.
type ContextRecord struct {
	SessionID  uuid.UUID `json:"session_id" db:"session_id"`
	Text       string    `json:"text" db:"text"`
	SourceName string    `json:"source_name" db:"source_name"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
