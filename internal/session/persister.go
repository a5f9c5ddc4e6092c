package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/storage"
)

const writeTimeout = 5 * time.Second

// persister writes session changes through to storage. Failures are logged;
// the in-memory session stays authoritative.
//
// Stored turns carry their own sequence, independent of the in-memory index:
// a failed write leaves a gap, and later turns must still land after the
// highest stored seq.
type persister struct {
	store  *storage.Store
	id     uuid.UUID
	logger *observability.Logger

	mu      sync.Mutex
	nextSeq int
}

// resumeAfter continues numbering after the last stored turn.
func (p *persister) resumeAfter(records []*storage.TurnRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSeq = 0
	if n := len(records); n > 0 {
		p.nextSeq = records[n-1].Seq + 1
	}
}

func (p *persister) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), writeTimeout)
}

// TranscriptReset implements conversation.Observer.
func (p *persister) TranscriptReset(seed domain.Turn) {
	ctx, cancel := p.ctx()
	defer cancel()

	p.mu.Lock()
	p.nextSeq = 1
	p.mu.Unlock()

	err := p.store.ResetTranscript(ctx, &storage.TurnRecord{
		SessionID: p.id,
		Role:      string(seed.Role),
		Content:   seed.Content,
		CreatedAt: seed.CreatedAt,
	})
	p.check(ctx, err, "reset transcript")
}

// TurnAppended implements conversation.Observer. The in-memory index is only
// used for logging.
func (p *persister) TurnAppended(index int, turn domain.Turn) {
	ctx, cancel := p.ctx()
	defer cancel()

	// A seq is consumed even when the write fails, since a timed-out insert
	// may still have committed.
	p.mu.Lock()
	seq := p.nextSeq
	p.nextSeq++
	p.mu.Unlock()

	err := p.store.Turns.Append(ctx, &storage.TurnRecord{
		SessionID: p.id,
		Seq:       seq,
		Role:      string(turn.Role),
		Content:   turn.Content,
		CreatedAt: turn.CreatedAt,
	})
	if err != nil {
		p.logger.Warn().Int("index", index).Int("seq", seq).Str("session_id", p.id.String()).Msg("Turn not persisted, stored transcript has a gap")
	}
	p.check(ctx, err, "append turn")
}

// ContextChanged implements conversation.Observer.
func (p *persister) ContextChanged(dc domain.DocumentContext) {
	ctx, cancel := p.ctx()
	defer cancel()

	err := p.store.Contexts.Put(ctx, &storage.ContextRecord{
		SessionID:  p.id,
		Text:       dc.Text,
		SourceName: dc.SourceName,
	})
	p.check(ctx, err, "store context")
}

func (p *persister) documentChanged(doc domain.ExtractedDocument) {
	ctx, cancel := p.ctx()
	defer cancel()

	err := p.store.Documents.Put(ctx, &storage.DocumentRecord{
		SessionID: p.id,
		Name:      doc.Name,
		Pages:     doc.Pages,
		Text:      doc.Text,
	})
	p.check(ctx, err, "store document")
}

func (p *persister) check(ctx context.Context, err error, what string) {
	if err == nil {
		err = p.store.Sessions.Touch(ctx, p.id)
	}
	if err != nil {
		p.logger.Error().Err(err).Str("session_id", p.id.String()).Msgf("Failed to %s", what)
	}
}
