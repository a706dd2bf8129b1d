// Package pdf turns printed documents into PDF files.
package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Renderer renders HTML documents to PDF.
type Renderer interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
	Close() error
}

// PaperSize names a sheet format.
type PaperSize string

const (
	PaperA4     PaperSize = "A4"
	PaperA5     PaperSize = "A5"
	PaperLetter PaperSize = "LETTER"
	PaperLegal  PaperSize = "LEGAL"
)

// paperDimensions in millimeters, portrait.
var paperDimensions = map[PaperSize][2]float64{
	PaperA4:     {210, 297},
	PaperA5:     {148, 210},
	PaperLetter: {215.9, 279.4},
	PaperLegal:  {215.9, 355.6},
}

// ParsePaperSize is case insensitive.
func ParsePaperSize(s string) (PaperSize, error) {
	size := PaperSize(strings.ToUpper(strings.TrimSpace(s)))
	if !size.IsValid() {
		return "", NewRenderError(ErrCodeInvalidPaperSize, "invalid paper size: "+s, nil)
	}
	return size, nil
}

func (s PaperSize) IsValid() bool {
	_, ok := paperDimensions[s]
	return ok
}

// Dimensions returns width and height in millimeters.
func (s PaperSize) Dimensions() (width, height float64) {
	d := paperDimensions[s]
	return d[0], d[1]
}

// Margins in millimeters.
type Margins struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// RenderRequest describes one document to render.
type RenderRequest struct {
	HTML            string
	PaperSize       PaperSize
	Landscape       bool
	Margins         Margins
	PrintBackground bool
	Timeout         time.Duration // falls back to the renderer default
}

// RenderResult holds the rendered document.
type RenderResult struct {
	PDFData        []byte
	RenderDuration time.Duration
}

// Error codes reported by renderers.
const (
	ErrCodeInvalidHTML      = "INVALID_HTML"
	ErrCodeInvalidPaperSize = "INVALID_PAPER_SIZE"
	ErrCodeRenderTimeout    = "RENDER_TIMEOUT"
	ErrCodeRenderFailed     = "RENDER_FAILED"
)

// RenderError is returned by renderers.
type RenderError struct {
	Code    string
	Message string
	Err     error
}

func NewRenderError(code, message string, err error) *RenderError {
	return &RenderError{Code: code, Message: message, Err: err}
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// WriteFile writes data to path, creating parent folders.
func WriteFile(path string, data []byte) error {
	if len(data) == 0 {
		return NewRenderError(ErrCodeRenderFailed, "nothing to write", nil)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func mmToInches(mm float64) float64 {
	return mm / 25.4
}
