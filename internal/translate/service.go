// Package translate turns extracted German text into simplified Chinese, chunk by chunk.
package translate

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spherical/bill-assistant/internal/cache"
	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/observability"
)

// Service splits text, translates the chunks in order and joins the results.
type Service struct {
	translator domain.Translator
	chunkSize  int
	cache      *cache.Translations
	logger     *observability.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithCache reuses translated chunks from c. A nil c disables caching.
func WithCache(c *cache.Translations) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new translation service
func NewService(translator domain.Translator, opts ...Option) *Service {
	s := &Service{
		translator: translator,
		chunkSize:  DefaultChunkSize,
		logger:     observability.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithOperation("translate")
	return s
}

// ChunkSize returns the configured chunk size in runes.
func (s *Service) ChunkSize() int {
	return s.chunkSize
}

// Translate translates text chunk by chunk and joins the outputs with "\n".
// Any failing chunk fails the whole call and no partial text is returned.
func (s *Service) Translate(ctx context.Context, text string, eventCh chan<- domain.StreamEvent) (string, error) {
	translated, _, err := s.TranslateWithStats(ctx, text, eventCh)
	return translated, err
}

// TranslateWithStats is Translate plus run statistics.
func (s *Service) TranslateWithStats(ctx context.Context, text string, eventCh chan<- domain.StreamEvent) (string, domain.ProcessingStats, error) {
	startTime := time.Now()
	chunks := Split(text, s.chunkSize)
	stats := domain.ProcessingStats{Chunks: len(chunks), SourceRunes: utf8.RuneCountInString(text)}

	if len(chunks) == 0 {
		err := domain.TranslationError("nothing to translate", nil)
		s.emitError(eventCh, err)
		return "", stats, err
	}

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		Total:     len(chunks),
		Payload:   fmt.Sprintf("Translating %d chunks with %s", len(chunks), s.translator.Name()),
		Timestamp: time.Now(),
	})

	s.logger.Info().
		Str("translator", s.translator.Name()).
		Int("chunks", len(chunks)).
		Int("runes", stats.SourceRunes).
		Msg("Starting translation")

	outputs := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			err := domain.TranslationError("translation cancelled", ctx.Err())
			s.emitError(eventCh, err)
			return "", stats, err
		default:
		}

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:      domain.EventChunkTranslating,
			Chunk:     i + 1,
			Total:     len(chunks),
			Timestamp: time.Now(),
		})

		out, cached, err := s.translateChunk(ctx, chunk)
		if err != nil {
			s.logger.Error().Err(err).Int("chunk", i+1).Msg("Chunk translation failed")
			wrapped := domain.TranslationError(fmt.Sprintf("chunk %d of %d failed", i+1, len(chunks)), err)
			s.emitError(eventCh, wrapped)
			return "", stats, wrapped
		}
		if cached {
			stats.CachedHits++
		}
		outputs = append(outputs, out)

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:      domain.EventChunkComplete,
			Chunk:     i + 1,
			Total:     len(chunks),
			Payload:   out,
			Timestamp: time.Now(),
		})
	}

	stats.TotalTime = time.Since(startTime)
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventComplete,
		Total:     len(chunks),
		Payload:   fmt.Sprintf("Translation complete: %d chunks in %v", len(chunks), stats.TotalTime.Round(time.Millisecond)),
		Timestamp: time.Now(),
	})

	s.logger.Info().
		Int("chunks", len(chunks)).
		Int("cached", stats.CachedHits).
		Dur("duration", stats.TotalTime).
		Msg("Translation complete")

	return strings.Join(outputs, "\n"), stats, nil
}

func (s *Service) translateChunk(ctx context.Context, chunk string) (string, bool, error) {
	if s.cache == nil {
		out, err := s.translator.Translate(ctx, chunk)
		return out, false, err
	}

	name := s.translator.Name()
	cached, ok, err := s.cache.Lookup(ctx, name, s.chunkSize, chunk)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Translation cache read failed")
	} else if ok {
		return cached, true, nil
	}

	out, err := s.translator.Translate(ctx, chunk)
	if err != nil {
		return "", false, err
	}

	if err := s.cache.Store(ctx, name, s.chunkSize, chunk, out); err != nil {
		s.logger.Warn().Err(err).Msg("Translation cache write failed")
	}
	return out, false, nil
}

// emitEvent emits an event without blocking; a full channel drops it.
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh == nil {
		return
	}
	select {
	case eventCh <- event:
	default:
		s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
	}
}

func (s *Service) emitError(eventCh chan<- domain.StreamEvent, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventError,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	})
}
