package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical/bill-assistant/internal/domain"
)

// Tracker renders translation progress. Track receives every event of one
// translation; Finish is called exactly once afterwards.
type Tracker interface {
	Track(ev domain.StreamEvent)
	Finish(err error)
}

// Follow drains events into t on a goroutine. The returned channel closes
// once events is closed and drained.
func Follow(events <-chan domain.StreamEvent, t Tracker) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if t != nil {
				t.Track(ev)
			}
		}
	}()
	return done
}

// ChunkBar is a single chunk counter for the interactive chat.
// The bar is drawn once the chunk count is known.
type ChunkBar struct {
	label string
	bar   *progressbar.ProgressBar
}

// NewChunkBar returns a ChunkBar captioned with label.
func NewChunkBar(label string) *ChunkBar {
	return &ChunkBar{label: label}
}

// Track implements Tracker.
func (c *ChunkBar) Track(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventStart:
		c.bar = progressbar.NewOptions(ev.Total,
			progressbar.OptionSetWriter(Err),
			progressbar.OptionSetDescription(c.label),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetTheme(progressbar.Theme{Saucer: "▇", SaucerPadding: "·", BarStart: "[", BarEnd: "]"}),
		)
	case domain.EventChunkComplete:
		if c.bar != nil {
			_ = c.bar.Set(ev.Chunk)
		}
	}
}

// Finish implements Tracker. A failed run leaves the bar where it stopped.
func (c *ChunkBar) Finish(err error) {
	if c.bar == nil {
		return
	}
	if err == nil {
		_ = c.bar.Finish()
	}
	fmt.Fprintln(Err)
}

// Spinner shows that a question is being answered.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner returns a stopped spinner labelled with message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(Err))
	s.Suffix = " " + message
	return &Spinner{s: s}
}

// Start starts the animation.
func (s *Spinner) Start() { s.s.Start() }

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() { s.s.Stop() }

// Batch shows one bar per file of a batch translation.
type Batch struct {
	p *mpb.Progress
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{p: mpb.New(mpb.WithWidth(40), mpb.WithOutput(Err))}
}

// File adds a bar for the named file.
func (b *Batch) File(name string) Tracker {
	bar := b.p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d 块", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnAbort(decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO), "完成"), "失败"),
		),
	)
	return &fileBar{bar: bar}
}

// Wait blocks until every file bar has finished.
func (b *Batch) Wait() {
	b.p.Wait()
}

type fileBar struct {
	bar  *mpb.Bar
	once sync.Once
}

func (f *fileBar) Track(ev domain.StreamEvent) {
	switch ev.Type {
	case domain.EventStart:
		f.bar.SetTotal(int64(ev.Total), false)
	case domain.EventChunkComplete:
		f.bar.SetCurrent(int64(ev.Chunk))
	}
}

func (f *fileBar) Finish(err error) {
	f.once.Do(func() {
		if err != nil {
			f.bar.Abort(false)
			return
		}
		f.bar.SetTotal(-1, true)
	})
}
