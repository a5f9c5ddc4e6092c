package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/bill-assistant/internal/conversation"
	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/storage"
)

// Options configures a Manager.
type Options struct {
	SystemInstruction string
	MaxWindowTurns    int
	// TTL evicts idle sessions from memory; persisted sessions are restored on demand.
	TTL           time.Duration
	SweepInterval time.Duration
	Store         *storage.Store // optional
	Logger        *observability.Logger
}

// Manager owns all live sessions.
type Manager struct {
	backend domain.QABackend
	opts    Options
	logger  *observability.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a manager answering through backend and starts the idle janitor when TTL is set.
func NewManager(backend domain.QABackend, opts Options) *Manager {
	if opts.SystemInstruction == "" {
		opts.SystemInstruction = conversation.DefaultSystemInstruction
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Nop()
	}

	m := &Manager{
		backend:  backend,
		opts:     opts,
		logger:   logger.WithOperation("session"),
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}

	if opts.TTL > 0 {
		m.wg.Add(1)
		go m.janitor()
	}
	return m
}

// Create starts a new session with a freshly initialized transcript.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.New()
	now := time.Now()

	if m.opts.Store != nil {
		if err := m.opts.Store.Sessions.Create(ctx, &storage.Session{ID: id, CreatedAt: now.UTC()}); err != nil {
			return nil, domain.IOError("failed to persist session", err)
		}
	}

	s := m.newSession(id, now)
	s.conv.Initialize(m.opts.SystemInstruction)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info().Str("session_id", s.ID).Msg("Session created")
	return s, nil
}

// Get returns a live session, restoring it from storage if it was evicted.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
		return s, nil
	}

	if m.opts.Store == nil {
		return nil, domain.NotFoundError(fmt.Sprintf("session %s not found", id), nil)
	}

	restored, err := m.restore(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A concurrent Get may have restored it first
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = restored
	return restored, nil
}

// Delete removes a session from memory and storage.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, found := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.opts.Store != nil {
		if uid, err := uuid.Parse(id); err == nil {
			err = m.opts.Store.Sessions.Delete(ctx, uid)
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, storage.ErrNotFound):
				return domain.IOError("failed to delete session", err)
			}
		}
	}

	if !found {
		return domain.NotFoundError(fmt.Sprintf("session %s not found", id), nil)
	}

	m.logger.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// List returns summaries of live sessions, newest first. Persisted sessions
// that are not in memory are listed by ID only.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	seen := make(map[string]struct{}, len(live))
	summaries := make([]Summary, 0, len(live))
	for _, s := range live {
		seen[s.ID] = struct{}{}
		summaries = append(summaries, s.Summary())
	}

	if m.opts.Store != nil {
		stored, err := m.opts.Store.Sessions.List(ctx)
		if err != nil {
			return nil, domain.IOError("failed to list sessions", err)
		}
		for _, rec := range stored {
			if _, ok := seen[rec.ID.String()]; ok {
				continue
			}
			summaries = append(summaries, Summary{ID: rec.ID.String(), CreatedAt: rec.CreatedAt, LastActive: rec.UpdatedAt})
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the janitor. Sessions are left in storage.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Manager) newSession(id uuid.UUID, createdAt time.Time) *Session {
	opts := []conversation.Option{conversation.WithMaxWindowTurns(m.opts.MaxWindowTurns)}

	var p *persister
	if m.opts.Store != nil {
		p = &persister{store: m.opts.Store, id: id, logger: m.logger}
		opts = append(opts, conversation.WithObserver(p))
	}

	return &Session{
		ID:         id.String(),
		CreatedAt:  createdAt,
		conv:       conversation.New(m.backend, opts...),
		lastActive: time.Now(),
		persist:    p,
	}
}

func (m *Manager) restore(ctx context.Context, id string) (*Session, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.NotFoundError(fmt.Sprintf("session %s not found", id), nil)
	}

	store := m.opts.Store
	rec, err := store.Sessions.GetByID(ctx, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NotFoundError(fmt.Sprintf("session %s not found", id), nil)
	}
	if err != nil {
		return nil, domain.IOError("failed to load session", err)
	}

	records, err := store.Turns.ListBySession(ctx, uid)
	if err != nil {
		return nil, domain.IOError("failed to load transcript", err)
	}

	s := m.newSession(uid, rec.CreatedAt)

	var dc *domain.DocumentContext
	ctxRec, err := store.Contexts.Get(ctx, uid)
	switch {
	case err == nil:
		dc = &domain.DocumentContext{Text: ctxRec.Text, SourceName: ctxRec.SourceName}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, domain.IOError("failed to load document context", err)
	}

	if len(records) == 0 {
		// Created but never seeded
		s.conv.Initialize(m.opts.SystemInstruction)
		if dc != nil {
			s.conv.SetDocumentContext(*dc)
		}
	} else {
		if s.persist != nil {
			s.persist.resumeAfter(records)
		}
		turns := make([]domain.Turn, len(records))
		for i, r := range records {
			turns[i] = domain.Turn{Role: domain.Role(r.Role), Content: r.Content, CreatedAt: r.CreatedAt}
		}
		if err := s.conv.Restore(turns, dc); err != nil {
			return nil, err
		}
	}

	doc, err := store.Documents.Get(ctx, uid)
	switch {
	case err == nil:
		s.document = &domain.ExtractedDocument{Name: doc.Name, Pages: doc.Pages, Text: doc.Text}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, domain.IOError("failed to load document", err)
	}

	m.logger.Info().Str("session_id", id).Int("turns", len(records)).Msg("Session restored")
	return s, nil
}

func (m *Manager) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle(time.Now().Add(-m.opts.TTL))
		}
	}
}

// evictIdle drops sessions idle since before cutoff from memory.
func (m *Manager) evictIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if s.idleSince(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Debug().Int("evicted", evicted).Msg("Evicted idle sessions")
	}
	return evicted
}
