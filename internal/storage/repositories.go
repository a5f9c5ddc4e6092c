package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionRepository handles session CRUD operations.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session.
func (r *SessionRepository) Create(ctx context.Context, session *Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	query := `
		INSERT INTO sessions (id, created_at, updated_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.ExecContext(ctx, query, session.ID.String(), session.CreatedAt, session.UpdatedAt)
	return err
}

// GetByID retrieves a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, created_at, updated_at
		FROM sessions WHERE id = $1
	`
	session := &Session{}
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return session, err
}

// List lists sessions, most recently updated first.
func (r *SessionRepository) List(ctx context.Context) ([]*Session, error) {
	query := `
		SELECT id, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Touch bumps updated_at.
func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Delete removes a session; turns, documents and contexts cascade.
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	return expectRow(res)
}

// TurnRepository handles transcript persistence.
type TurnRepository struct {
	db DB
}

// NewTurnRepository creates a new turn repository.
func NewTurnRepository(db DB) *TurnRepository {
	return &TurnRepository{db: db}
}

// Append stores a turn at its transcript position.
func (r *TurnRepository) Append(ctx context.Context, turn *TurnRecord) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO turns (session_id, seq, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		turn.SessionID.String(), turn.Seq, turn.Role, turn.Content, turn.CreatedAt,
	)
	return err
}

// DeleteBySession removes every turn of a session.
func (r *TurnRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = $1`, sessionID.String())
	return err
}

// ListBySession returns a session's turns in transcript order.
func (r *TurnRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*TurnRecord, error) {
	query := `
		SELECT session_id, seq, role, content, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []*TurnRecord
	for rows.Next() {
		turn := &TurnRecord{}
		if err := rows.Scan(&turn.SessionID, &turn.Seq, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// DocumentRepository handles extracted document persistence.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Put stores or replaces the session's document.
func (r *DocumentRepository) Put(ctx context.Context, doc *DocumentRecord) error {
	pages, err := json.Marshal(doc.Pages)
	if err != nil {
		return fmt.Errorf("marshal pages: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (session_id, name, pages, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			name = excluded.name, pages = excluded.pages,
			text = excluded.text, created_at = excluded.created_at
	`
	_, err = r.db.ExecContext(ctx, query, doc.SessionID.String(), doc.Name, string(pages), doc.Text, doc.CreatedAt)
	return err
}

// Get retrieves the session's document.
func (r *DocumentRepository) Get(ctx context.Context, sessionID uuid.UUID) (*DocumentRecord, error) {
	query := `
		SELECT session_id, name, pages, text, created_at
		FROM documents WHERE session_id = $1
	`
	doc := &DocumentRecord{}
	var pages string
	err := r.db.QueryRowContext(ctx, query, sessionID.String()).Scan(
		&doc.SessionID, &doc.Name, &pages, &doc.Text, &doc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pages), &doc.Pages); err != nil {
		return nil, fmt.Errorf("unmarshal pages: %w", err)
	}
	return doc, nil
}

// ContextRepository handles the active document context.
type ContextRepository struct {
	db DB
}

// NewContextRepository creates a new context repository.
func NewContextRepository(db DB) *ContextRepository {
	return &ContextRepository{db: db}
}

// Put stores or replaces the session's context.
func (r *ContextRepository) Put(ctx context.Context, rec *ContextRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO contexts (session_id, text, source_name, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			text = excluded.text, source_name = excluded.source_name,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, rec.SessionID.String(), rec.Text, rec.SourceName, rec.UpdatedAt)
	return err
}

// Get retrieves the session's context.
func (r *ContextRepository) Get(ctx context.Context, sessionID uuid.UUID) (*ContextRecord, error) {
	query := `
		SELECT session_id, text, source_name, updated_at
		FROM contexts WHERE session_id = $1
	`
	rec := &ContextRecord{}
	err := r.db.QueryRowContext(ctx, query, sessionID.String()).Scan(
		&rec.SessionID, &rec.Text, &rec.SourceName, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
