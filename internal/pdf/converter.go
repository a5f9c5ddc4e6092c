package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/bill-assistant/internal/domain"
)

// Engine names accepted by New.
const (
	EngineFitz = "fitz"
	EngineRSC  = "rsc"
)

// New returns the extractor for the named engine. An empty name selects go-fitz.
func New(engine string, maxSize int64) (domain.Extractor, error) {
	validator := NewValidator(maxSize)
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineFitz:
		return NewFitzExtractor(validator), nil
	case EngineRSC:
		return NewReaderExtractor(validator), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown pdf engine %q", engine), nil)
	}
}

// FitzExtractor implements text extraction using go-fitz (MuPDF)
type FitzExtractor struct {
	validator *Validator
}

// NewFitzExtractor creates a new go-fitz backed extractor
func NewFitzExtractor(validator *Validator) *FitzExtractor {
	if validator == nil {
		validator = NewValidator(0)
	}
	return &FitzExtractor{validator: validator}
}

// Extract returns the text of every page in document order
func (e *FitzExtractor) Extract(ctx context.Context, data []byte) ([]string, error) {
	if err := e.validator.ValidatePDF(data); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.ExtractionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ExtractionError("PDF has no pages", nil)
	}

	pages := make([]string, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := doc.Text(pageNum)
		if err != nil {
			return nil, domain.ExtractionError(fmt.Sprintf("Failed to extract text from page %d", pageNum+1), err)
		}
		pages = append(pages, strings.TrimRight(text, "\n"))
	}

	return pages, nil
}

// JoinPages concatenates page texts, each followed by a newline.
func JoinPages(pages []string) string {
	var sb strings.Builder
	for _, page := range pages {
		sb.WriteString(page)
		sb.WriteString("\n")
	}
	return sb.String()
}
