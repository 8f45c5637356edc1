// Package ocr defines the page rasterization and text recognition boundary
// used by the OCR operation.
package ocr

import "context"

//go:generate mockgen -destination=../dispatch/mocks/mock_ocr.go -package=mocks github.com/mattjoyce/folio/internal/ocr Engine,Rasterizer

// Request is one page image to recognize.
type Request struct {
	Image     []byte
	Languages []string
	DPI       int
}

// Engine recognizes text in a page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request) (string, error)
}

// Rasterizer renders a single 1-based page of a PDF to PNG bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error)
}
