package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattjoyce/folio/internal/apperr"
)

// Poppler rasterizes pages with the pdftoppm command line tool.
type Poppler struct {
	Binary string
	// TempDir is where per-page output is staged; empty uses os.TempDir.
	TempDir string
}

func NewPoppler(binary string) *Poppler {
	if strings.TrimSpace(binary) == "" {
		binary = "pdftoppm"
	}
	return &Poppler{Binary: binary}
}

func (p *Poppler) Rasterize(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("rasterize: invalid page %d", page)
	}
	if dpi <= 0 {
		dpi = 300
	}

	tmpDir, err := os.MkdirTemp(p.TempDir, "raster-*")
	if err != nil {
		return nil, fmt.Errorf("rasterize: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outBase := filepath.Join(tmpDir, "page")
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.Binary,
		"-f", n, "-l", n,
		"-r", strconv.Itoa(dpi),
		"-png", "-singlefile",
		pdfPath, outBase,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, apperr.Wrap(apperr.EngineFailure, err, "rasterizer %q is not installed", p.Binary)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, apperr.Wrap(apperr.EngineFailure, err, "rasterize page %d: %s", page, msg).WithField("page", page)
	}

	img, err := os.ReadFile(outBase + ".png")
	if err != nil {
		return nil, apperr.Wrap(apperr.EngineFailure, err, "rasterize page %d: no image produced", page).WithField("page", page)
	}
	return img, nil
}
