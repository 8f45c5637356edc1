// Package tesseract implements ocr.Engine with the Tesseract library.
package tesseract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/mattjoyce/folio/internal/ocr"
)

// Engine creates a fresh client per page; gosseract clients are not safe
// for concurrent use.
type Engine struct {
	newClient func() *gosseract.Client
	languages []string
}

// New returns an engine defaulting to languages when a request names none.
func New(languages ...string) *Engine {
	return &Engine{newClient: gosseract.NewClient, languages: languages}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, req ocr.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.newClient()
	defer c.Close()

	if err := c.SetImageFromBytes(req.Image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	langs := req.Languages
	if len(langs) == 0 {
		langs = e.languages
	}
	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if req.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(req.DPI)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
