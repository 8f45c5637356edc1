package dispatch

import (
	"context"
	"strings"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/workspace"
)

// Merge concatenates every page of the named inputs, in the given order,
// into one PDF. An existing artifact of the same name is replaced.
func (d *Dispatcher) Merge(ctx context.Context, t Target, p MergeParams) (Result, error) {
	ws := t.Workspace()
	if len(p.Filenames) < 2 {
		return Result{}, apperr.New(apperr.TooFewFiles, "merge needs at least 2 files, got %d", len(p.Filenames)).
			WithField("filenames", len(p.Filenames))
	}
	name, err := workspace.MergeName(p.OutName)
	if err != nil {
		return Result{}, err
	}
	paths := make([]string, len(p.Filenames))
	for i, f := range p.Filenames {
		if paths[i], err = ws.InputPath(f); err != nil {
			return Result{}, err
		}
	}

	return d.run(ctx, t, job{
		op:       OpMerge,
		filename: strings.Join(p.Filenames, ","),
		keys:     []string{"merge:" + name},
		work: func(ctx context.Context) (Result, error) {
			a, err := ws.CommitFile(ctx, workspace.Artifact{
				Name:    name,
				Kind:    workspace.KindMerge,
				Sources: append([]string(nil), p.Filenames...),
			}, func(path string) error {
				return d.deps.PDF.Merge(ctx, paths, path)
			})
			if err != nil {
				return Result{}, err
			}
			return Result{Artifacts: []ArtifactRef{refOf(a)}}, nil
		},
	})
}
