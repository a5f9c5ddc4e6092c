package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/bill-assistant/cmd/bill-assistant/ui"
	"github.com/spherical/bill-assistant/pkg/assistant"
)

var (
	translateOutDir      string
	translateConcurrency int
)

var translateCmd = &cobra.Command{
	Use:   "translate [pdf...]",
	Short: "Translate one or more bills and write <name>-zh.md next to each",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTranslate,
}

func init() {
	translateCmd.Flags().StringVarP(&translateOutDir, "out", "o", "", "output directory (default: next to each PDF)")
	translateCmd.Flags().IntVarP(&translateConcurrency, "concurrency", "j", 2, "files translated at the same time")
	rootCmd.AddCommand(translateCmd)
}

// documentTranslator is the part of the client batch translation needs.
type documentTranslator interface {
	ExtractFile(ctx context.Context, path string) (assistant.ExtractedDocument, error)
	TranslateText(ctx context.Context, text string, eventCh chan<- assistant.StreamEvent) (string, assistant.ProcessingStats, error)
}

type fileResult struct {
	path   string
	output string
	stats  assistant.ProcessingStats
	err    error
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newInteractiveClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if translateOutDir != "" {
		if err := os.MkdirAll(translateOutDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	ui.Section("翻译账单")
	batch := ui.NewBatch()
	results := translateAll(ctx, client, args, translateOutDir, translateConcurrency, batch.File)
	batch.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			ui.Error("%s: %v", r.path, r.err)
			continue
		}
		ui.Success("%s → %s (%d chunks, %d cached, %s)", r.path, r.output, r.stats.Chunks, r.stats.CachedHits, ui.FormatDuration(r.stats.TotalTime))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// translateAll translates paths with at most concurrency files in flight.
// Results keep the order of paths. track may be nil.
func translateAll(ctx context.Context, client documentTranslator, paths []string, outDir string, concurrency int, track func(name string) ui.Tracker) []fileResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]fileResult, len(paths))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, path := range paths {
		// Trackers are created up front so the bars keep the argument order.
		var tracker ui.Tracker
		if track != nil {
			tracker = track(filepath.Base(path))
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out, stats, err := translateFile(ctx, client, path, outDir, tracker)
			if tracker != nil {
				tracker.Finish(err)
			}
			results[i] = fileResult{path: path, output: out, stats: stats, err: err}
		}()
	}

	wg.Wait()
	return results
}

func translateFile(ctx context.Context, client documentTranslator, path, outDir string, tracker ui.Tracker) (string, assistant.ProcessingStats, error) {
	doc, err := client.ExtractFile(ctx, path)
	if err != nil {
		return "", assistant.ProcessingStats{}, err
	}

	events := make(chan assistant.StreamEvent, 64)
	done := ui.Follow(events, tracker)
	text, stats, err := client.TranslateText(ctx, doc.Text, events)
	close(events)
	<-done
	if err != nil {
		return "", stats, err
	}

	output := outputPath(path, outDir)
	if err := os.WriteFile(output, []byte(renderMarkdown(doc, text, time.Now())), 0o644); err != nil {
		return "", stats, fmt.Errorf("write %s: %w", output, err)
	}
	return output, stats, nil
}

// outputPath maps /a/b/rechnung.pdf to <outDir or /a/b>/rechnung-zh.md.
func outputPath(pdfPath, outDir string) string {
	dir := filepath.Dir(pdfPath)
	if outDir != "" {
		dir = outDir
	}
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(dir, base+"-zh.md")
}

func renderMarkdown(doc assistant.ExtractedDocument, translated string, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s 中文翻译\n\n", doc.Name)
	fmt.Fprintf(&sb, "> 原文件：%s · 页数：%d · 生成时间：%s\n\n", doc.Name, len(doc.Pages), at.Format("2006-01-02 15:04"))
	sb.WriteString(strings.TrimSpace(translated))
	sb.WriteString("\n")
	return sb.String()
}
