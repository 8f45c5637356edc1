package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/workspace"
)

// Split extracts pages into new PDFs: one file per selected page, or a single
// combined file when Combined is set and a selection was given. Page counting
// and selection run inside the operation, so they share its worker slot,
// timeout and journal entry. Splits of one source are serialized.
func (d *Dispatcher) Split(ctx context.Context, t Target, p SplitParams) (Result, error) {
	ws := t.Workspace()
	filename, src, err := ws.ResolveInput(p.Filename)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(p.PageRange) != "" && len(p.Pages) > 0 {
		return Result{}, apperr.New(apperr.InvalidConfig, "give either page_range or pages, not both").
			WithField("page_range", p.PageRange)
	}

	return d.run(ctx, t, job{
		op:       OpSplit,
		filename: filename,
		keys:     []string{"split:" + filename},
		work: func(ctx context.Context) (Result, error) {
			total, err := d.deps.PDF.PageCount(ctx, src)
			if err != nil {
				return Result{}, err
			}
			sel, err := selectPages(p, total)
			if err != nil {
				return Result{}, err
			}

			if sel.combined {
				a, err := ws.CommitFile(ctx, workspace.Artifact{
					Name:      sel.combinedName(filename),
					Kind:      workspace.KindSplit,
					Source:    filename,
					PageRange: sel.label(),
				}, func(path string) error {
					return d.deps.PDF.Collect(ctx, src, path, sel.pages)
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Artifacts: []ArtifactRef{refOf(a)}}, nil
			}

			b := ws.NewBatch()
			defer b.Discard()
			for _, n := range uniquePages(sel.pages) {
				if err := b.AddFile(ctx, workspace.Artifact{
					Name:      workspace.SplitPageName(filename, n),
					Kind:      workspace.KindSplit,
					Source:    filename,
					PageIndex: n,
				}, func(path string) error {
					return d.deps.PDF.Collect(ctx, src, path, []int{n})
				}); err != nil {
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

type selection struct {
	pages     []int
	combined  bool
	fromRange bool
}

func (s selection) combinedName(source string) string {
	if s.fromRange {
		return workspace.SplitRangeName(source, s.pages[0], s.pages[len(s.pages)-1])
	}
	return workspace.SplitSelectionName(source, s.pages)
}

func (s selection) label() string {
	if s.fromRange {
		return fmt.Sprintf("%d-%d", s.pages[0], s.pages[len(s.pages)-1])
	}
	parts := make([]string, len(s.pages))
	for i, n := range s.pages {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// selectPages validates the request against the document's page count.
// A range expands in ascending order; an explicit list keeps its order and
// duplicates. With no selection every page is split separately.
func selectPages(p SplitParams, total int) (selection, error) {
	if r := strings.ReplaceAll(p.PageRange, " ", ""); r != "" {
		first, last, err := parseRange(r)
		if err != nil {
			return selection{}, err
		}
		if first > last {
			return selection{}, apperr.New(apperr.InvalidRange, "page range %q starts after it ends", r).WithField("page_range", r)
		}
		if first < 1 || last > total {
			return selection{}, apperr.New(apperr.PageOutOfRange, "page range %q is outside 1-%d", r, total).WithField("page_range", r)
		}
		pages := make([]int, 0, last-first+1)
		for n := first; n <= last; n++ {
			pages = append(pages, n)
		}
		return selection{pages: pages, combined: p.Combined, fromRange: true}, nil
	}

	if len(p.Pages) > 0 {
		for _, n := range p.Pages {
			if n < 1 || n > total {
				return selection{}, apperr.New(apperr.PageOutOfRange, "page %d is outside 1-%d", n, total).WithField("pages", n)
			}
		}
		return selection{pages: append([]int(nil), p.Pages...), combined: p.Combined}, nil
	}

	pages := make([]int, total)
	for i := range pages {
		pages[i] = i + 1
	}
	return selection{pages: pages}, nil
}

func parseRange(r string) (int, int, error) {
	a, b, ok := strings.Cut(r, "-")
	if !ok {
		return 0, 0, apperr.New(apperr.InvalidRange, "page range %q must look like start-end", r).WithField("page_range", r)
	}
	first, errA := strconv.Atoi(a)
	last, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return 0, 0, apperr.New(apperr.InvalidRange, "page range %q must use whole page numbers", r).WithField("page_range", r)
	}
	return first, last, nil
}

func uniquePages(pages []int) []int {
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, n := range pages {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
