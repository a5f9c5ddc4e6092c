//go:build integration

package assistant

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env")
}

// TestLiveBillFlow runs extraction, translation and one question against the
// real endpoints. BILL_PDF names a German bill on disk.
func TestLiveBillFlow(t *testing.T) {
	pdfPath := os.Getenv("BILL_PDF")
	if pdfPath == "" {
		t.Skip("BILL_PDF not set")
	}
	if os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Skip("OPENROUTER_API_KEY not set")
	}
	t.Setenv("DATABASE_URL", "memory")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := NewClient()
	require.NoError(t, err)
	defer client.Close()

	id, err := client.NewSession(ctx)
	require.NoError(t, err)

	doc, err := client.LoadPDF(ctx, id, pdfPath)
	require.NoError(t, err)
	t.Logf("Extracted %d pages from %s", len(doc.Pages), doc.Name)

	events := make(chan StreamEvent, 256)
	dc, err := client.Translate(ctx, id, events)
	require.NoError(t, err)
	close(events)
	assert.NotEmpty(t, dc.Text)

	var completed int
	for ev := range events {
		if ev.Type == EventChunkComplete {
			completed++
		}
	}
	assert.Positive(t, completed)

	answer, err := client.Ask(ctx, id, "这张账单的总金额是多少？")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Content)
	t.Logf("Answer: %s", answer.Content)

	history, err := client.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}
