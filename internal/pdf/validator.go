package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/bill-assistant/internal/domain"
)

// DefaultMaxSize is the largest upload accepted when no limit is configured.
const DefaultMaxSize = 20 * 1024 * 1024

var pdfMagic = []byte("%PDF-")

// Validator provides input validation for PDF files
type Validator struct {
	maxSize int64
}

// NewValidator creates a new validator instance
func NewValidator(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Validator{maxSize: maxSize}
}

// MaxSize returns the configured size limit in bytes.
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// ValidatePDF checks that data looks like a PDF and fits the size limit
func (v *Validator) ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("PDF is empty", nil)
	}

	if int64(len(data)) > v.maxSize {
		return domain.ValidationError(fmt.Sprintf("PDF is too large (%d bytes, limit %d)", len(data), v.maxSize), nil)
	}

	// Some generators prepend a few junk bytes before the header
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, pdfMagic) {
		return domain.ValidationError("file is not a PDF (missing %PDF- header)", nil)
	}

	return nil
}

// ValidatePDFPath validates that a file path is valid and points to a PDF
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	if info.Size() > v.maxSize {
		return domain.ValidationError(fmt.Sprintf("PDF is too large (%d bytes, limit %d)", info.Size(), v.maxSize), nil)
	}

	return nil
}

// ReadPDF validates path and returns the file contents.
func (v *Validator) ReadPDF(path string) ([]byte, error) {
	if err := v.ValidatePDFPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot read file: %s", path), err)
	}
	return data, nil
}
