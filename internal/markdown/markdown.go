// Package markdown is the document-structuring boundary: it hands a whole
// PDF to an external converter and optionally splits the result by page.
package markdown

import (
	"context"
	"fmt"
	"strings"
)

//go:generate mockgen -destination=../dispatch/mocks/mock_markdown.go -package=mocks github.com/mattjoyce/folio/internal/markdown Converter

// Request describes one conversion.
type Request struct {
	Path     string
	Filename string
	ForceOCR bool
	// PageBreaks asks the engine to mark page boundaries in its output.
	PageBreaks bool
}

// Document is a converter's output. Pages is nil unless page breaks were
// requested and the engine reported them.
type Document struct {
	Markdown string
	Pages    []string
}

// Capabilities describes what a converter can report.
type Capabilities struct {
	PageBoundaries bool
}

type Converter interface {
	Capabilities() Capabilities
	Convert(ctx context.Context, req Request) (Document, error)
}

// PageDelimiter is the line placed before each page in full output.
func PageDelimiter(page int) string {
	return fmt.Sprintf("--------- Page %d ---------", page)
}

// JoinPages renders per-page markdown as one document with page delimiters.
func JoinPages(pages []string) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strings.TrimRight(PageDelimiter(i+1)+"\n\n"+p, " \t\r\n")
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")) + "\n"
}
