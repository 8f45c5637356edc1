package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/markdown"
	"github.com/mattjoyce/folio/internal/workspace"
)

// Markdown hands the whole document to the converter. Per-page output needs
// a converter that reports page boundaries.
func (d *Dispatcher) Markdown(ctx context.Context, t Target, p MarkdownParams) (Result, error) {
	ws := t.Workspace()
	mode, err := ParseOutputMode(string(p.Output))
	if err != nil {
		return Result{}, err
	}
	filename, src, err := ws.ResolveInput(p.Filename)
	if err != nil {
		return Result{}, err
	}
	if mode == OutputPages && !d.deps.Markdown.Capabilities().PageBoundaries {
		return Result{}, apperr.New(apperr.PageSplitUnsupported, "the markdown engine cannot report page boundaries").
			WithField("output", string(mode))
	}

	return d.run(ctx, t, job{
		op:       OpMarkdown,
		filename: filename,
		keys:     []string{fmt.Sprintf("markdown:%s:%s", mode, filename)},
		work: func(ctx context.Context) (Result, error) {
			doc, err := d.deps.Markdown.Convert(ctx, markdown.Request{
				Path:       src,
				Filename:   filename,
				ForceOCR:   p.ForceOCR,
				PageBreaks: d.deps.Markdown.Capabilities().PageBoundaries,
			})
			if err != nil {
				return Result{}, err
			}

			if mode == OutputFull {
				body := doc.Markdown
				if doc.Pages != nil {
					body = markdown.JoinPages(doc.Pages)
				}
				a, err := ws.Commit(ctx, workspace.Artifact{
					Name:   workspace.MarkdownFullName(filename),
					Kind:   workspace.KindMarkdownFull,
					Source: filename,
				}, writeString(ensureNewline(body)))
				if err != nil {
					return Result{}, err
				}
				return Result{Artifacts: []ArtifactRef{refOf(a)}}, nil
			}

			if doc.Pages == nil {
				return Result{}, apperr.New(apperr.PageSplitUnsupported, "the markdown engine returned no page boundaries").
					WithField("filename", filename)
			}
			b := ws.NewBatch()
			defer b.Discard()
			for i, page := range doc.Pages {
				if err := b.Add(ctx, workspace.Artifact{
					Name:      workspace.MarkdownPageName(filename, i+1),
					Kind:      workspace.KindMarkdownPage,
					Source:    filename,
					PageIndex: i + 1,
				}, writeString(ensureNewline(page))); err != nil {
					return Result{}, err
				}
			}
			refs, err := commitBatch(ctx, b)
			if err != nil {
				return Result{}, err
			}
			return Result{Artifacts: refs}, nil
		},
	})
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
