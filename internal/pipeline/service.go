// Package pipeline orchestrates upload, extraction, translation and questions for a session.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/pdf"
	"github.com/spherical/bill-assistant/internal/session"
	"github.com/spherical/bill-assistant/internal/translate"
)

// Service runs each user action to completion against one session.
type Service struct {
	extractor  domain.Extractor
	translator *translate.Service
	sessions   *session.Manager
	logger     *observability.Logger
}

// NewService creates a new pipeline service
func NewService(extractor domain.Extractor, translator *translate.Service, sessions *session.Manager, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		extractor:  extractor,
		translator: translator,
		sessions:   sessions,
		logger:     logger.WithOperation("pipeline"),
	}
}

// Sessions returns the session manager.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Extract pulls the page texts out of a PDF without touching any session.
func (s *Service) Extract(ctx context.Context, name string, data []byte) (domain.ExtractedDocument, error) {
	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		if domain.TypeOf(err) == "" {
			err = domain.ExtractionError("failed to extract PDF text", err)
		}
		return domain.ExtractedDocument{}, err
	}

	text := pdf.JoinPages(pages)
	if strings.TrimSpace(text) == "" {
		return domain.ExtractedDocument{}, domain.ExtractionError("PDF contains no extractable text", nil)
	}

	return domain.ExtractedDocument{
		Name:  documentName(name),
		Pages: pages,
		Text:  text,
	}, nil
}

// Upload extracts the PDF and stores it on the session. The active
// translation context is left as is until Translate succeeds.
func (s *Service) Upload(ctx context.Context, sessionID, name string, data []byte) (domain.ExtractedDocument, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.ExtractedDocument{}, err
	}

	logger := s.logger.WithSession(sessionID)
	doc, err := s.Extract(ctx, name, data)
	if err != nil {
		logger.Warn().Err(err).Str("document", name).Msg("Extraction failed")
		return domain.ExtractedDocument{}, err
	}

	sess.SetDocument(doc)
	logger.Info().
		Str("document", doc.Name).
		Int("pages", len(doc.Pages)).
		Int("bytes", len(data)).
		Msg("Document extracted")
	return doc, nil
}

// TranslateText translates arbitrary text without touching any session.
func (s *Service) TranslateText(ctx context.Context, text string, eventCh chan<- domain.StreamEvent) (string, domain.ProcessingStats, error) {
	return s.translator.TranslateWithStats(ctx, text, eventCh)
}

// Translate translates the session's uploaded document and makes it the
// active context. On failure the previous context stays active.
func (s *Service) Translate(ctx context.Context, sessionID string, eventCh chan<- domain.StreamEvent) (domain.DocumentContext, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.DocumentContext{}, err
	}

	doc, ok := sess.Document()
	if !ok {
		return domain.DocumentContext{}, domain.ValidationError("no document uploaded, upload a PDF first", nil)
	}

	translated, stats, err := s.translator.TranslateWithStats(ctx, doc.Text, eventCh)
	if err != nil {
		return domain.DocumentContext{}, err
	}

	dc := domain.DocumentContext{Text: translated, SourceName: doc.Name}
	sess.Conversation().SetDocumentContext(dc)

	s.logger.WithSession(sessionID).Info().
		Int("chunks", stats.Chunks).
		Int("cached", stats.CachedHits).
		Dur("duration", stats.TotalTime).
		Msg("Document context updated")
	return dc, nil
}

// Ask forwards a question to the session's conversation.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (domain.Answer, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Answer{}, err
	}

	answer, err := sess.Conversation().Ask(ctx, question)
	if err != nil {
		s.logger.WithSession(sessionID).Warn().Err(err).Msg("Question failed")
		return domain.Answer{}, err
	}
	return answer, nil
}

// History returns the session transcript.
func (s *Service) History(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Conversation().History(), nil
}

// Reset clears the session transcript and keeps its document context.
func (s *Service) Reset(ctx context.Context, sessionID string) (domain.Transcript, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Conversation().Reset(), nil
}

func documentName(name string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return domain.DefaultSourceName
	}
	return name
}
