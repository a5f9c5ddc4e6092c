package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	rscpdf "rsc.io/pdf"

	"github.com/spherical/bill-assistant/internal/domain"
)

// ReaderExtractor extracts text with the pure-Go rsc.io/pdf reader.
// It needs no cgo, but only handles simple text layouts.
type ReaderExtractor struct {
	validator *Validator
}

// NewReaderExtractor creates a new rsc.io/pdf backed extractor
func NewReaderExtractor(validator *Validator) *ReaderExtractor {
	if validator == nil {
		validator = NewValidator(0)
	}
	return &ReaderExtractor{validator: validator}
}

// Extract returns the text of every page in document order
func (e *ReaderExtractor) Extract(ctx context.Context, data []byte) (pages []string, err error) {
	if err := e.validator.ValidatePDF(data); err != nil {
		return nil, err
	}

	// rsc.io/pdf panics on some malformed object streams
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.ExtractionError("Failed to parse PDF", fmt.Errorf("%v", r))
		}
	}()

	reader, err := rscpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.ExtractionError("Failed to open PDF", err)
	}

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return nil, domain.ExtractionError("PDF has no pages", nil)
	}

	pages = make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText(page.Content().Text))
	}

	return pages, nil
}

// pageText joins glyph runs, starting a new line whenever the baseline moves.
func pageText(texts []rscpdf.Text) string {
	var sb strings.Builder
	for i, t := range texts {
		if i > 0 && t.Y != texts[i-1].Y {
			sb.WriteString("\n")
		}
		sb.WriteString(t.S)
	}
	return strings.TrimSpace(sb.String())
}
