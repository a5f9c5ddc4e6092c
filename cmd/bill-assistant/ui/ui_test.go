package ui

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/bill-assistant/internal/domain"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("  erste Frage \nlast"), &out)

	line, err := p.Prompt("问题")
	require.NoError(t, err)
	assert.Equal(t, "erste Frage", line)
	assert.Equal(t, "问题: ", out.String())

	line, err = p.Prompt("问题")
	require.NoError(t, err)
	assert.Equal(t, "last", line, "unterminated final line is returned")

	_, err = p.Prompt("问题")
	assert.ErrorIs(t, err, io.EOF)
}

func TestSectionUnderlineFitsWideRunes(t *testing.T) {
	var out bytes.Buffer
	prev := Out
	Out = &out
	defer func() { Out = prev }()
	InitUI(true, false)

	Section("账单")
	assert.Contains(t, out.String(), "\n====\n")
}

type recordingTracker struct {
	events []domain.EventType
}

func (r *recordingTracker) Track(ev domain.StreamEvent) { r.events = append(r.events, ev.Type) }
func (r *recordingTracker) Finish(error)                {}

func TestFollow_DrainsInOrder(t *testing.T) {
	events := make(chan domain.StreamEvent, 4)
	rec := &recordingTracker{}
	done := Follow(events, rec)

	events <- domain.StreamEvent{Type: domain.EventStart, Total: 2}
	events <- domain.StreamEvent{Type: domain.EventChunkComplete, Chunk: 1, Total: 2}
	events <- domain.StreamEvent{Type: domain.EventChunkComplete, Chunk: 2, Total: 2}
	events <- domain.StreamEvent{Type: domain.EventComplete}
	close(events)
	<-done

	assert.Equal(t, []domain.EventType{
		domain.EventStart, domain.EventChunkComplete, domain.EventChunkComplete, domain.EventComplete,
	}, rec.events)
}

func TestFollow_NilTracker(t *testing.T) {
	events := make(chan domain.StreamEvent, 1)
	done := Follow(events, nil)
	events <- domain.StreamEvent{Type: domain.EventStart}
	close(events)
	<-done
}

func TestChunkBar_WritesToErr(t *testing.T) {
	var buf bytes.Buffer
	prev := Err
	Err = &buf
	t.Cleanup(func() { Err = prev })

	bar := NewChunkBar("翻译中")
	bar.Finish(nil) // no start yet: nothing drawn
	assert.Zero(t, buf.Len())

	bar.Track(domain.StreamEvent{Type: domain.EventStart, Total: 2})
	bar.Track(domain.StreamEvent{Type: domain.EventChunkComplete, Chunk: 2, Total: 2})
	bar.Finish(nil)
	assert.Contains(t, buf.String(), "翻译中")
}
