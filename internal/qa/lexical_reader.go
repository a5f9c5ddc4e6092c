package qa

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/spherical/bill-assistant/internal/domain"
)

// Question particles and pronouns that carry no content.
var stopTokens = map[string]struct{}{
	"的": {}, "了": {}, "是": {}, "吗": {}, "呢": {}, "么": {}, "什": {}, "吧": {}, "啊": {},
	"我": {}, "你": {}, "他": {}, "她": {}, "这": {}, "那": {}, "在": {}, "有": {}, "和": {},
	"个": {}, "要": {}, "请": {}, "哪": {}, "怎": {}, "为": {}, "谁": {}, "几": {}, "多": {},
	"the": {}, "a": {}, "is": {}, "was": {}, "what": {}, "der": {}, "die": {}, "das": {}, "ist": {},
}

// LexicalReader is an in-process reader that returns the sentences sharing the
// most tokens with the question. Han characters count as single tokens.
type LexicalReader struct{}

// NewLexicalReader creates a lexical reader.
func NewLexicalReader() *LexicalReader {
	return &LexicalReader{}
}

// Read implements Reader.
func (r *LexicalReader) Read(ctx context.Context, question string, corpus []domain.DocumentContext, topK int) ([]Candidate, error) {
	queryTokens := tokenSet(question)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	var candidates []Candidate
	for _, doc := range corpus {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, sentence := range splitSentences(doc.Text) {
			overlap := 0
			for tok := range tokenSet(sentence) {
				if _, ok := queryTokens[tok]; ok {
					overlap++
				}
			}
			if overlap == 0 {
				continue
			}
			candidates = append(candidates, Candidate{
				Answer:  sentence,
				Score:   float64(overlap) / float64(len(queryTokens)),
				Source:  doc.SourceName,
				Context: sentence,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '!', '?', ';', '\n':
		return true
	}
	return false
}

func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder
	flush := func() {
		if s := strings.TrimSpace(sb.String()); s != "" {
			sentences = append(sentences, s)
		}
		sb.Reset()
	}

	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		sb.WriteRune(r)
		if isSentenceEnd(r) {
			flush()
		}
	}
	flush()
	return sentences
}

// tokenSet lowercases text and returns its content tokens: single Han
// characters and runs of letters or digits.
func tokenSet(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	add := func(tok string) {
		if tok == "" {
			return
		}
		if _, stop := stopTokens[tok]; stop {
			return
		}
		tokens[tok] = struct{}{}
	}

	var word strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			add(word.String())
			word.Reset()
			add(string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			add(word.String())
			word.Reset()
		}
	}
	add(word.String())
	return tokens
}
