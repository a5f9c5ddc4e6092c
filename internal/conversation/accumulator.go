// Package conversation builds the ordered message history sent to the QA backend.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/spherical/bill-assistant/internal/domain"
)

const (
	// DefaultSystemInstruction seeds every new transcript.
	DefaultSystemInstruction = "你是一个中文助手，帮助用户理解上传的医院账单内容，用简体中文回答问题，语言要通俗易懂。"
	// ContextPrefix frames the document text injected before each question.
	ContextPrefix = "这是账单内容：\n"
	// NoAnswerFallback is returned when an extractive backend finds no candidate.
	NoAnswerFallback = "对不起，我没有找到答案。"

	// minWindowTurns keeps the live context and question in every window.
	minWindowTurns = 2
)

// Observer receives every transcript mutation in order, while the accumulator lock is held.
type Observer interface {
	TranscriptReset(seed domain.Turn)
	TurnAppended(seq int, turn domain.Turn)
	ContextChanged(dc domain.DocumentContext)
}

// Accumulator owns one session's transcript and active document context.
type Accumulator struct {
	// askMu serializes Ask so each question's turns stay grouped.
	// mu guards the fields below and is never held across a backend call.
	askMu       sync.Mutex
	mu          sync.Mutex
	generation  int
	backend     domain.QABackend
	instruction string
	transcript  domain.Transcript
	docContext  *domain.DocumentContext
	maxWindow   int
	observer    Observer
	now         func() time.Time
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithMaxWindowTurns bounds the turns sent to the backend, not the stored transcript.
// Zero sends everything.
func WithMaxWindowTurns(n int) Option {
	return func(a *Accumulator) {
		if n < 0 {
			n = 0
		}
		if n > 0 && n < minWindowTurns {
			n = minWindowTurns
		}
		a.maxWindow = n
	}
}

// WithObserver registers o for transcript and context changes.
func WithObserver(o Observer) Option {
	return func(a *Accumulator) {
		a.observer = o
	}
}

// WithClock overrides time.Now for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an accumulator answering through backend. Initialize must be called before Ask.
func New(backend domain.QABackend, opts ...Option) *Accumulator {
	a := &Accumulator{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize starts a fresh transcript holding one system turn. Prior history is discarded.
func (a *Accumulator) Initialize(systemInstruction string) domain.Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.instruction = systemInstruction
	seed := domain.Turn{Role: domain.RoleSystem, Content: systemInstruction, CreatedAt: a.now()}
	a.transcript = domain.Transcript{seed}
	a.generation++
	if a.observer != nil {
		a.observer.TranscriptReset(seed)
	}
	return a.snapshot()
}

// Restore replaces the accumulator state with previously persisted turns.
// The first turn must be the system seed. The observer is not notified.
func (a *Accumulator) Restore(turns []domain.Turn, dc *domain.DocumentContext) error {
	if len(turns) == 0 || turns[0].Role != domain.RoleSystem {
		return domain.ValidationError("transcript must start with a system turn", nil)
	}
	for _, t := range turns {
		if !t.Role.Valid() {
			return domain.ValidationError("transcript has an unknown role: "+string(t.Role), nil)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.instruction = turns[0].Content
	a.transcript = append(domain.Transcript(nil), turns...)
	a.generation++
	a.docContext = nil
	if dc != nil {
		copied := *dc
		a.docContext = &copied
	}
	return nil
}

// SetDocumentContext makes dc the active context. The transcript is untouched;
// the context is injected when the next question is asked.
func (a *Accumulator) SetDocumentContext(dc domain.DocumentContext) {
	if dc.SourceName == "" {
		dc.SourceName = domain.DefaultSourceName
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.docContext = &dc
	if a.observer != nil {
		a.observer.ContextChanged(dc)
	}
}

// DocumentContext returns the active context, if any.
func (a *Accumulator) DocumentContext() (domain.DocumentContext, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.docContext == nil {
		return domain.DocumentContext{}, false
	}
	return *a.docContext, true
}

// HasContext reports whether a document context has been set.
func (a *Accumulator) HasContext() bool {
	_, ok := a.DocumentContext()
	return ok
}

// Ask injects the active context and the question, queries the backend and
// records its reply. On backend failure the context and question turns stay
// in the transcript and no assistant turn is added.
func (a *Accumulator) Ask(ctx context.Context, question string) (domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, domain.ValidationError("question is empty", nil)
	}

	a.askMu.Lock()
	defer a.askMu.Unlock()

	a.mu.Lock()
	if len(a.transcript) == 0 {
		a.mu.Unlock()
		return domain.Answer{}, domain.ValidationError("conversation is not initialized", nil)
	}
	if a.docContext == nil {
		a.mu.Unlock()
		return domain.Answer{}, domain.NoContextError()
	}
	dc := *a.docContext
	a.append(domain.RoleUser, ContextPrefix+dc.Text)
	a.append(domain.RoleUser, question)
	messages := a.window()
	generation := a.generation
	a.mu.Unlock()

	reply, err := a.backend.Answer(ctx, domain.Query{
		Messages: messages,
		Question: question,
		Corpus:   []domain.DocumentContext{dc},
	})
	switch {
	case errors.Is(err, domain.ErrNoAnswer):
		reply = NoAnswerFallback
	case err != nil:
		return domain.Answer{}, domain.BackendError("question answering failed", err)
	case strings.TrimSpace(reply) == "":
		return domain.Answer{}, domain.BackendError("backend returned an empty answer", nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// A reset while the backend was answering started a new transcript;
	// the reply belongs to the old one.
	if a.generation == generation {
		a.append(domain.RoleAssistant, reply)
	}
	return domain.Answer{Content: reply}, nil
}

// History returns a copy of the transcript in insertion order, system seed included.
func (a *Accumulator) History() []domain.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

// Len returns the number of turns in the transcript.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transcript)
}

// Reset starts a fresh transcript with the current instruction and keeps the document context.
func (a *Accumulator) Reset() domain.Transcript {
	a.mu.Lock()
	instruction := a.instruction
	a.mu.Unlock()

	if instruction == "" {
		instruction = DefaultSystemInstruction
	}
	return a.Initialize(instruction)
}

func (a *Accumulator) append(role domain.Role, content string) {
	turn := domain.Turn{Role: role, Content: content, CreatedAt: a.now()}
	a.transcript = append(a.transcript, turn)
	if a.observer != nil {
		a.observer.TurnAppended(len(a.transcript)-1, turn)
	}
}

// window builds the outgoing message list: the system seed followed by the
// most recent maxWindow turns, never opening on an assistant turn.
func (a *Accumulator) window() []domain.Message {
	turns := a.transcript[1:]
	if a.maxWindow > 0 && len(turns) > a.maxWindow {
		turns = turns[len(turns)-a.maxWindow:]
		for len(turns) > 0 && turns[0].Role == domain.RoleAssistant {
			turns = turns[1:]
		}
	}

	messages := make([]domain.Message, 0, len(turns)+1)
	messages = append(messages, domain.Message{Role: a.transcript[0].Role, Content: a.transcript[0].Content})
	for _, t := range turns {
		messages = append(messages, domain.Message{Role: t.Role, Content: t.Content})
	}
	return messages
}

func (a *Accumulator) snapshot() domain.Transcript {
	return append(domain.Transcript(nil), a.transcript...)
}
