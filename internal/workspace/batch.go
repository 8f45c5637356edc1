package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Batch stages several artifacts and publishes them together. Until Commit
// succeeds nothing is visible in the output directories or the ledger.
// A Batch is used by one goroutine.
type Batch struct {
	w      *Workspace
	staged []stagedArtifact
	done   bool
}

type stagedArtifact struct {
	a     Artifact
	tmp   string
	final string
}

func (w *Workspace) NewBatch() *Batch {
	return &Batch{w: w}
}

// Add stages an artifact written by write.
func (b *Batch) Add(ctx context.Context, a Artifact, write func(io.Writer) error) error {
	return b.AddFile(ctx, a, writeTo(write))
}

// AddFile stages an artifact produced at the given temp path.
func (b *Batch) AddFile(ctx context.Context, a Artifact, produce func(path string) error) error {
	if b.done {
		return errors.New("batch already finished")
	}
	s, err := b.w.stage(ctx, a, produce)
	if err != nil {
		return err
	}
	b.staged = append(b.staged, s)
	return nil
}

// Commit renames every staged file into place and registers them. When ctx
// is done or a rename fails no artifact of the batch is registered.
func (b *Batch) Commit(ctx context.Context) ([]Artifact, error) {
	if b.done {
		return nil, errors.New("batch already finished")
	}
	if err := ctx.Err(); err != nil {
		b.Discard()
		return nil, err
	}
	b.done = true

	for i, s := range b.staged {
		if err := os.Rename(s.tmp, s.final); err != nil {
			for _, rest := range b.staged[i:] {
				_ = os.Remove(rest.tmp)
			}
			// Earlier renames already replaced their files; keep the ledger in
			// step with disk.
			for _, prev := range b.staged[:i] {
				_ = os.Remove(prev.final)
				b.w.artifacts.remove(prev.a.RelPath())
			}
			return nil, fmt.Errorf("commit artifact %q: %w", s.a.Name, err)
		}
	}

	now := b.w.now().UTC()
	out := make([]Artifact, len(b.staged))
	for i, s := range b.staged {
		s.a.CreatedAt = now
		out[i] = s.a
	}
	b.w.artifacts.registerAll(out)
	return out, nil
}

// Discard removes anything staged. It is a no-op after Commit.
func (b *Batch) Discard() {
	if b.done {
		return
	}
	b.done = true
	for _, s := range b.staged {
		_ = os.Remove(s.tmp)
	}
	b.staged = nil
}
