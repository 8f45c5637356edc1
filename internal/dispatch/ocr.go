package dispatch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattjoyce/folio/internal/ocr"
	"github.com/mattjoyce/folio/internal/workspace"
)

// ocrFailedMarker is written in place of a page's text when the engine fails.
const ocrFailedMarker = "[OCR FAILED: %s]"

// OCR rasterizes every page, recognizes it and writes one text artifact for
// the document or one per page. A page the engine cannot read is kept as a
// failure marker and reported in Result.Pages.
func (d *Dispatcher) OCR(ctx context.Context, t Target, p OCRParams) (Result, error) {
	ws := t.Workspace()
	mode, err := ParseOutputMode(string(p.Output))
	if err != nil {
		return Result{}, err
	}
	filename, src, err := ws.ResolveInput(p.Filename)
	if err != nil {
		return Result{}, err
	}
	preprocess := d.cfg.OCRPreprocess
	if p.Preprocess != nil {
		preprocess = *p.Preprocess
	}

	return d.run(ctx, t, job{
		op:       OpOCR,
		filename: filename,
		keys:     []string{fmt.Sprintf("ocr:%s:%s", mode, filename)},
		work: func(ctx context.Context) (Result, error) {
			texts, pages, err := d.recognize(ctx, src, preprocess)
			if err != nil {
				return Result{}, err
			}
			res := Result{Pages: pages}
			if mode == OutputFull {
				a, err := ws.Commit(ctx, workspace.Artifact{
					Name:   workspace.OCRFullName(filename),
					Kind:   workspace.KindOCRFull,
					Source: filename,
				}, writeString(joinOCRPages(texts)))
				if err != nil {
					return Result{}, err
				}
				res.Artifacts = []ArtifactRef{refOf(a)}
				return res, nil
			}

			b := ws.NewBatch()
			defer b.Discard()
			for i, text := range texts {
				if err := b.Add(ctx, workspace.Artifact{
					Name:      workspace.OCRPageName(filename, i+1),
					Kind:      workspace.KindOCRPage,
					Source:    filename,
					PageIndex: i + 1,
				}, writeString(text+"\n")); err != nil {
					return Result{}, err
				}
			}
			if res.Artifacts, err = commitBatch(ctx, b); err != nil {
				return Result{}, err
			}
			return res, nil
		},
	})
}

func (d *Dispatcher) recognize(ctx context.Context, src string, preprocess bool) ([]string, []PageStatus, error) {
	n, err := d.deps.PDF.PageCount(ctx, src)
	if err != nil {
		return nil, nil, err
	}

	texts := make([]string, n)
	pages := make([]PageStatus, n)
	for i := 1; i <= n; i++ {
		img, err := d.deps.Rasterizer.Rasterize(ctx, src, i, d.cfg.OCRDPI)
		if err != nil {
			return nil, nil, err
		}
		if preprocess {
			if img, err = ocr.Preprocess(img, d.cfg.OCRMaxEdge); err != nil {
				return nil, nil, fmt.Errorf("preprocess page %d: %w", i, err)
			}
		}

		text, err := d.deps.OCR.Recognize(ctx, ocr.Request{Image: img, Languages: d.cfg.OCRLanguages, DPI: d.cfg.OCRDPI})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			d.logger.Warn("page recognition failed", "page", i, "engine", d.deps.OCR.Name(), "error", err)
			texts[i-1] = fmt.Sprintf(ocrFailedMarker, err)
			pages[i-1] = PageStatus{Page: i, Error: err.Error()}
			continue
		}
		texts[i-1] = text
		pages[i-1] = PageStatus{Page: i, OK: true}
	}
	return texts, pages, nil
}

// joinOCRPages renders the full-document text with a delimiter line before
// each page.
func joinOCRPages(texts []string) string {
	parts := make([]string, len(texts))
	for i, t := range texts {
		parts[i] = strings.TrimRight(fmt.Sprintf("--------- Page %d ---------\n%s", i+1, t), " \t\r\n")
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")) + "\n"
}

// commitBatch publishes a batch and returns its references.
func commitBatch(ctx context.Context, b *workspace.Batch) ([]ArtifactRef, error) {
	as, err := b.Commit(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]ArtifactRef, len(as))
	for i, a := range as {
		refs[i] = refOf(a)
	}
	return refs, nil
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}
