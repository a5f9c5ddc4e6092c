package qa

import (
	"context"
	"sort"

	"github.com/spherical/bill-assistant/internal/domain"
)

// DefaultTopK is how many candidates a reader is asked for.
const DefaultTopK = 1

// Candidate is one extracted answer span.
type Candidate struct {
	Answer  string  `json:"answer"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
	Context string  `json:"context,omitempty"`
}

// Reader selects answer spans for a question from a corpus.
type Reader interface {
	Read(ctx context.Context, question string, corpus []domain.DocumentContext, topK int) ([]Candidate, error)
}

// ExtractiveBackend answers with the best-scoring span a Reader returns.
type ExtractiveBackend struct {
	reader Reader
	topK   int
}

// NewExtractiveBackend creates an extractive backend.
func NewExtractiveBackend(reader Reader, topK int) *ExtractiveBackend {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ExtractiveBackend{reader: reader, topK: topK}
}

// Answer implements domain.QABackend. No candidates yields domain.ErrNoAnswer.
func (b *ExtractiveBackend) Answer(ctx context.Context, q domain.Query) (string, error) {
	candidates, err := b.Candidates(ctx, q.Question, q.Corpus)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", domain.ErrNoAnswer
	}
	return candidates[0].Answer, nil
}

// Candidates returns the reader's non-empty candidates ranked by descending score.
func (b *ExtractiveBackend) Candidates(ctx context.Context, question string, corpus []domain.DocumentContext) ([]Candidate, error) {
	if len(corpus) == 0 {
		return nil, nil
	}

	raw, err := b.reader.Read(ctx, question, corpus, b.topK)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if c.Answer != "" {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > b.topK {
		candidates = candidates[:b.topK]
	}
	return candidates, nil
}
