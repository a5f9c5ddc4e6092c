package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/bill-assistant/internal/domain"
)

type stubBackend struct {
	mu      sync.Mutex
	replies []string
	err     error
	queries []domain.Query
}

func (s *stubBackend) Answer(ctx context.Context, q domain.Query) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return fmt.Sprintf("reply %d", len(s.queries)), nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *stubBackend) last() domain.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

type recordingObserver struct {
	resets   []domain.Turn
	appended []int
	contexts []domain.DocumentContext
}

func (r *recordingObserver) TranscriptReset(seed domain.Turn) {
	r.resets = append(r.resets, seed)
}

func (r *recordingObserver) TurnAppended(seq int, _ domain.Turn) {
	r.appended = append(r.appended, seq)
}

func (r *recordingObserver) ContextChanged(dc domain.DocumentContext) {
	r.contexts = append(r.contexts, dc)
}

func roles(turns []domain.Turn) []domain.Role {
	out := make([]domain.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

func TestInitialize_SeedsSystemTurn(t *testing.T) {
	acc := New(&stubBackend{})

	transcript := acc.Initialize("系统指令")

	require.Len(t, transcript, 1)
	assert.Equal(t, domain.RoleSystem, transcript[0].Role)
	assert.Equal(t, "系统指令", transcript[0].Content)

	history := acc.History()
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Equal(t, "系统指令", history[0].Content)
}

func TestAsk_AppendsContextQuestionAnswer(t *testing.T) {
	backend := &stubBackend{replies: []string{"总金额是 120 欧元。"}}
	acc := New(backend)
	acc.Initialize("系统指令")
	acc.SetDocumentContext(domain.DocumentContext{Text: "账单内容示例"})

	answer, err := acc.Ask(context.Background(), "多少钱？")

	require.NoError(t, err)
	assert.Equal(t, "总金额是 120 欧元。", answer.Content)

	history := acc.History()
	require.Len(t, history, 4)
	assert.Equal(t, []domain.Role{domain.RoleSystem, domain.RoleUser, domain.RoleUser, domain.RoleAssistant}, roles(history))
	assert.Contains(t, history[1].Content, "账单内容示例")
	assert.Equal(t, ContextPrefix+"账单内容示例", history[1].Content)
	assert.Equal(t, "多少钱？", history[2].Content)
	assert.Equal(t, "总金额是 120 欧元。", history[3].Content)

	q := backend.last()
	assert.Equal(t, "多少钱？", q.Question)
	require.Len(t, q.Corpus, 1)
	assert.Equal(t, "账单内容示例", q.Corpus[0].Text)
	assert.Equal(t, domain.DefaultSourceName, q.Corpus[0].SourceName)
	require.Len(t, q.Messages, 3, "backend sees the transcript up to the live question")
	assert.Equal(t, "多少钱？", q.Messages[2].Content)
}

func TestAsk_WithoutContextFails(t *testing.T) {
	backend := &stubBackend{}
	acc := New(backend)
	acc.Initialize("系统指令")

	_, err := acc.Ask(context.Background(), "问题")

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeNoContext))
	assert.Len(t, acc.History(), 1)
	assert.Empty(t, backend.queries)
}

func TestAsk_BackendFailureKeepsQuestion(t *testing.T) {
	cause := errors.New("upstream timeout")
	acc := New(&stubBackend{err: cause})
	acc.Initialize("系统指令")
	acc.SetDocumentContext(domain.DocumentContext{Text: "账单"})

	_, err := acc.Ask(context.Background(), "多少钱？")

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeBackend))
	assert.ErrorIs(t, err, cause)

	history := acc.History()
	require.Len(t, history, 3)
	assert.Equal(t, []domain.Role{domain.RoleSystem, domain.RoleUser, domain.RoleUser}, roles(history))
	assert.Equal(t, "多少钱？", history[2].Content)
}

func TestAsk_EmptyReplyIsBackendError(t *testing.T) {
	acc := New(&stubBackend{replies: []string{"   "}})
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	_, err := acc.Ask(context.Background(), "q")

	assert.True(t, domain.IsType(err, domain.ErrorTypeBackend))
	assert.Equal(t, 3, acc.Len())
}

func TestAsk_NoAnswerFallback(t *testing.T) {
	acc := New(&stubBackend{err: fmt.Errorf("reader: %w", domain.ErrNoAnswer)})
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	answer, err := acc.Ask(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, NoAnswerFallback, answer.Content)
	history := acc.History()
	require.Len(t, history, 4)
	assert.Equal(t, NoAnswerFallback, history[3].Content)
}

func TestAsk_Validation(t *testing.T) {
	acc := New(&stubBackend{})

	_, err := acc.Ask(context.Background(), "q")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation), "not initialized")

	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	_, err = acc.Ask(context.Background(), "  \n")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation), "blank question")
	assert.Equal(t, 1, acc.Len())
}

func TestAsk_EachSuccessAddsThreeTurns(t *testing.T) {
	acc := New(&stubBackend{})
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	for i := 1; i <= 5; i++ {
		_, err := acc.Ask(context.Background(), fmt.Sprintf("question %d", i))
		require.NoError(t, err)
		assert.Equal(t, 1+3*i, acc.Len())
	}

	history := acc.History()
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	for i := 1; i < len(history); i++ {
		assert.NotEqual(t, domain.RoleSystem, history[i].Role)
	}
}

func TestAsk_ResendsFullTranscript(t *testing.T) {
	backend := &stubBackend{}
	acc := New(backend)
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	_, err := acc.Ask(context.Background(), "first")
	require.NoError(t, err)
	_, err = acc.Ask(context.Background(), "second")
	require.NoError(t, err)

	msgs := backend.last().Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, "first", msgs[2].Content)
	assert.Equal(t, "reply 1", msgs[3].Content)
	assert.Equal(t, "second", msgs[5].Content)
}

func TestSetDocumentContext_LastWriteWins(t *testing.T) {
	backend := &stubBackend{}
	acc := New(backend)
	acc.Initialize("sys")

	acc.SetDocumentContext(domain.DocumentContext{Text: "A-Rechnung", SourceName: "a.pdf"})
	acc.SetDocumentContext(domain.DocumentContext{Text: "B-Rechnung", SourceName: "b.pdf"})
	assert.Equal(t, 1, acc.Len(), "setting context does not touch the transcript")

	_, err := acc.Ask(context.Background(), "q")
	require.NoError(t, err)

	history := acc.History()
	assert.Equal(t, ContextPrefix+"B-Rechnung", history[1].Content)
	assert.NotContains(t, history[1].Content, "A-Rechnung")

	dc, ok := acc.DocumentContext()
	require.True(t, ok)
	assert.Equal(t, "b.pdf", dc.SourceName)
}

func TestHistory_IsACopy(t *testing.T) {
	acc := New(&stubBackend{})
	acc.Initialize("sys")

	history := acc.History()
	history[0].Content = "mutated"

	assert.Equal(t, "sys", acc.History()[0].Content)
}

func TestReset_KeepsContext(t *testing.T) {
	acc := New(&stubBackend{})
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})
	_, err := acc.Ask(context.Background(), "q")
	require.NoError(t, err)

	transcript := acc.Reset()

	require.Len(t, transcript, 1)
	assert.Equal(t, "sys", transcript[0].Content)
	assert.True(t, acc.HasContext())

	_, err = acc.Ask(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, 4, acc.Len())
}

func TestReset_Uninitialized(t *testing.T) {
	acc := New(&stubBackend{})
	transcript := acc.Reset()
	require.Len(t, transcript, 1)
	assert.Equal(t, DefaultSystemInstruction, transcript[0].Content)
}

func TestWindow_BoundsOutgoingMessages(t *testing.T) {
	backend := &stubBackend{}
	acc := New(backend, WithMaxWindowTurns(4))
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	for i := 0; i < 3; i++ {
		_, err := acc.Ask(context.Background(), fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	// Stored transcript is never trimmed
	assert.Equal(t, 10, acc.Len())

	// seed + [q1, reply 2, ctx, q2]
	msgs := backend.last().Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, "sys", msgs[0].Content)
	assert.Equal(t, "q1", msgs[1].Content)
	assert.Equal(t, "q2", msgs[4].Content)
}

func TestWindow_DoesNotOpenOnAssistantTurn(t *testing.T) {
	backend := &stubBackend{}
	acc := New(backend, WithMaxWindowTurns(3))
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	_, err := acc.Ask(context.Background(), "q0")
	require.NoError(t, err)
	_, err = acc.Ask(context.Background(), "q1")
	require.NoError(t, err)

	// Last 3 turns are [reply 1, ctx, q1]; the leading reply is dropped
	msgs := backend.last().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, ContextPrefix+"doc", msgs[1].Content)
	assert.Equal(t, "q1", msgs[2].Content)
}

func TestWindow_NeverDropsLiveQuestion(t *testing.T) {
	backend := &stubBackend{}
	acc := New(backend, WithMaxWindowTurns(1))
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	_, err := acc.Ask(context.Background(), "q0")
	require.NoError(t, err)
	_, err = acc.Ask(context.Background(), "q1")
	require.NoError(t, err)

	msgs := backend.last().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, ContextPrefix+"doc", msgs[1].Content)
	assert.Equal(t, "q1", msgs[2].Content)
}

func TestObserver_SeesMutationsInOrder(t *testing.T) {
	obs := &recordingObserver{}
	acc := New(&stubBackend{}, WithObserver(obs))

	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc", SourceName: "rechnung.pdf"})
	_, err := acc.Ask(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, obs.resets, 1)
	assert.Equal(t, "sys", obs.resets[0].Content)
	assert.Equal(t, []int{1, 2, 3}, obs.appended)
	require.Len(t, obs.contexts, 1)
	assert.Equal(t, "rechnung.pdf", obs.contexts[0].SourceName)
}

func TestRestore(t *testing.T) {
	acc := New(&stubBackend{})

	err := acc.Restore([]domain.Turn{{Role: domain.RoleUser, Content: "x"}}, nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	turns := []domain.Turn{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: ContextPrefix + "doc"},
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "a"},
	}
	require.NoError(t, acc.Restore(turns, &domain.DocumentContext{Text: "doc"}))

	assert.Equal(t, 4, acc.Len())
	assert.True(t, acc.HasContext())

	_, err = acc.Ask(context.Background(), "next")
	require.NoError(t, err)
	assert.Equal(t, 7, acc.Len())
}

func TestAsk_ConcurrentCallsKeepTurnsGrouped(t *testing.T) {
	acc := New(&stubBackend{})
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := acc.Ask(context.Background(), fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history := acc.History()
	require.Len(t, history, 31)
	for i := 1; i < len(history); i += 3 {
		assert.Equal(t, ContextPrefix+"doc", history[i].Content)
		assert.Equal(t, domain.RoleUser, history[i+1].Role)
		assert.Equal(t, domain.RoleAssistant, history[i+2].Role)
	}
}

// gatedBackend answers only once release is closed.
type gatedBackend struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedBackend) Answer(ctx context.Context, q domain.Query) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return "答：" + q.Question, nil
}

func TestAsk_ReadersDoNotWaitForBackend(t *testing.T) {
	backend := newGatedBackend()
	acc := New(backend)
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "Gesamtbetrag 120 EUR"})

	done := make(chan error, 1)
	go func() {
		_, err := acc.Ask(context.Background(), "多少钱？")
		done <- err
	}()
	<-backend.entered

	read := make(chan int, 1)
	go func() {
		acc.SetDocumentContext(domain.DocumentContext{Text: "Zimmer 80 EUR"})
		_ = acc.HasContext()
		read <- len(acc.History()) + acc.Len()
	}()

	select {
	case n := <-read:
		assert.Equal(t, 6, n, "context and question are visible while the backend runs")
	case <-time.After(2 * time.Second):
		t.Fatal("readers blocked by an in-flight Ask")
	}

	close(backend.release)
	require.NoError(t, <-done)
	assert.Equal(t, []domain.Role{domain.RoleSystem, domain.RoleUser, domain.RoleUser, domain.RoleAssistant}, roles(acc.History()))
}

func TestAsk_ResetDuringBackendDropsReply(t *testing.T) {
	backend := newGatedBackend()
	acc := New(backend)
	acc.Initialize("sys")
	acc.SetDocumentContext(domain.DocumentContext{Text: "doc"})

	done := make(chan error, 1)
	go func() {
		answer, err := acc.Ask(context.Background(), "q")
		assert.Equal(t, "答：q", answer.Content)
		done <- err
	}()
	<-backend.entered

	acc.Reset()
	close(backend.release)
	require.NoError(t, <-done)

	history := acc.History()
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
}
