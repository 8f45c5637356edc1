package workspace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/folio/internal/apperr"
)

var pdfMagic = []byte("%PDF-")

// Options tune a workspace.
type Options struct {
	// MaxUploadBytes caps a single upload; zero means unlimited.
	MaxUploadBytes int64
	Now            func() time.Time
}

// Workspace is the input and output area bound to one session.
type Workspace struct {
	root       string
	inputRoot  string
	outputRoot string
	ownsInput  bool
	maxUpload  int64
	now        func() time.Time
	artifacts  *Store
}

// NewUploadBacked creates a workspace whose input and output roots live in
// root, which the workspace owns entirely.
func NewUploadBacked(root string, opts Options) (*Workspace, error) {
	w := newWorkspace(root, filepath.Join(root, "input"), filepath.Join(root, "output"), true, opts)
	if err := os.MkdirAll(w.inputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create input root: %w", err)
	}
	return w, nil
}

// NewLocal creates a workspace over caller-supplied directories. Input files
// are referenced, never deleted. root only holds scratch files.
func NewLocal(root, inputDir, outputDir string, opts Options) (*Workspace, error) {
	in, err := checkDir("input_dir", inputDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.ReadDir(in); err != nil {
		return nil, apperr.New(apperr.InvalidConfig, "input_dir %q is not readable", inputDir).WithField("input_dir", inputDir)
	}

	out, err := checkDir("output_dir", outputDir)
	if err != nil {
		return nil, err
	}
	writeCheck, err := os.CreateTemp(out, ".folio-write-check-*")
	if err != nil {
		return nil, apperr.New(apperr.InvalidConfig, "output_dir %q is not writable", outputDir).WithField("output_dir", outputDir)
	}
	writeCheck.Close()
	_ = os.Remove(writeCheck.Name())

	w := newWorkspace(root, in, out, false, opts)
	if err := w.artifacts.rescan(out); err != nil {
		return nil, fmt.Errorf("rescan output_dir: %w", err)
	}
	return w, nil
}

func newWorkspace(root, in, out string, owns bool, opts Options) *Workspace {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Workspace{
		root:       root,
		inputRoot:  in,
		outputRoot: out,
		ownsInput:  owns,
		maxUpload:  opts.MaxUploadBytes,
		now:        now,
		artifacts:  NewStore(),
	}
}

func checkDir(field, dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", apperr.New(apperr.InvalidConfig, "%s is required", field).WithField(field, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", apperr.New(apperr.InvalidConfig, "%s %q is invalid", field, dir).WithField(field, dir)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", apperr.New(apperr.InvalidConfig, "%s %q does not exist", field, dir).WithField(field, dir)
	}
	if !info.IsDir() {
		return "", apperr.New(apperr.InvalidConfig, "%s %q is not a directory", field, dir).WithField(field, dir)
	}
	return abs, nil
}

func (w *Workspace) InputRoot() string  { return w.inputRoot }
func (w *Workspace) OutputRoot() string { return w.outputRoot }
func (w *Workspace) OwnsInput() bool    { return w.ownsInput }
func (w *Workspace) Artifacts() *Store  { return w.artifacts }

// Mode reports how the input root was provided.
func (w *Workspace) Mode() Mode {
	if w.ownsInput {
		return ModeUpload
	}
	return ModeLocal
}

// ListInputFiles returns the sorted PDF file names under the input root.
func (w *Workspace) ListInputFiles() ([]string, error) {
	entries, err := os.ReadDir(w.inputRoot)
	if err != nil {
		return nil, apperr.Wrap(apperr.DirectoryNotAccessible, err, "input directory cannot be read")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !IsPDFName(name) {
			continue
		}
		if entry.IsDir() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// InputPath resolves filename to an existing PDF under the input root.
func (w *Workspace) InputPath(filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	if !IsPDFName(filename) {
		return "", apperr.New(apperr.UnsupportedFileType, "%q is not a PDF", filename).WithField("filename", filename)
	}
	path := filepath.Join(w.inputRoot, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", apperr.New(apperr.FileNotFound, "input file %q not found", filename).WithField("filename", filename)
	}
	return path, nil
}

// ResolveInput is InputPath with a default: an empty filename selects the
// only PDF in the input root. It returns the resolved name and path.
func (w *Workspace) ResolveInput(filename string) (string, string, error) {
	if strings.TrimSpace(filename) != "" {
		path, err := w.InputPath(filename)
		return filename, path, err
	}
	names, err := w.ListInputFiles()
	if err != nil {
		return "", "", err
	}
	switch len(names) {
	case 0:
		return "", "", apperr.New(apperr.FileNotFound, "no PDF in the input directory").WithField("filename", "")
	case 1:
		path, err := w.InputPath(names[0])
		return names[0], path, err
	}
	return "", "", apperr.New(apperr.InvalidFilename, "input directory holds %d PDFs; name one", len(names)).WithField("filename", "")
}

// Upload stores content as filename in the input root, replacing any file of
// the same name. Only upload-backed workspaces accept uploads.
func (w *Workspace) Upload(filename string, content io.Reader) (int64, error) {
	if !w.ownsInput {
		return 0, apperr.New(apperr.InvalidConfig, "session uses a local input directory; uploads are not accepted")
	}
	if err := ValidateFilename(filename); err != nil {
		return 0, err
	}
	if !IsPDFName(filename) {
		return 0, apperr.New(apperr.UnsupportedFileType, "%q is not a PDF", filename).WithField("filename", filename)
	}

	src := content
	if w.maxUpload > 0 {
		src = io.LimitReader(content, w.maxUpload+1)
	}
	br := bufio.NewReader(src)
	head, _ := br.Peek(len(pdfMagic))
	if !bytes.Equal(head, pdfMagic) {
		return 0, apperr.New(apperr.UnsupportedFileType, "%q does not contain PDF data", filename).WithField("filename", filename)
	}

	tmp, err := os.CreateTemp(w.inputRoot, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create upload temp file: %w", err)
	}
	n, err := io.Copy(tmp, br)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("write upload %q: %w", filename, err)
	}
	if w.maxUpload > 0 && n > w.maxUpload {
		_ = os.Remove(tmp.Name())
		return 0, apperr.New(apperr.InvalidConfig, "%q exceeds the upload limit of %d bytes", filename, w.maxUpload).WithField("filename", filename)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(w.inputRoot, filename)); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("store upload %q: %w", filename, err)
	}
	return n, nil
}

// ResolveOutputDir returns the output subdirectory for kind, creating it on
// first use.
func (w *Workspace) ResolveOutputDir(kind Kind) (string, error) {
	dir := kind.Dir()
	if dir == "" {
		return "", kindDirError(kind)
	}
	path := filepath.Join(w.outputRoot, dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %q: %w", dir, err)
	}
	return path, nil
}

// ArtifactPath is where a registered artifact lives on disk.
func (w *Workspace) ArtifactPath(a Artifact) string {
	return filepath.Join(w.outputRoot, a.Kind.Dir(), a.Name)
}

// Commit streams an artifact into a temp file beside its final location and
// renames it into place only if write succeeds and ctx is still live. The
// ledger entry is written in the same step.
func (w *Workspace) Commit(ctx context.Context, a Artifact, write func(io.Writer) error) (Artifact, error) {
	return w.CommitFile(ctx, a, writeTo(write))
}

// CommitFile is Commit for producers that write to a path themselves.
func (w *Workspace) CommitFile(ctx context.Context, a Artifact, produce func(path string) error) (Artifact, error) {
	b := w.NewBatch()
	defer b.Discard()
	if err := b.AddFile(ctx, a, produce); err != nil {
		return Artifact{}, err
	}
	out, err := b.Commit(ctx)
	if err != nil {
		return Artifact{}, err
	}
	return out[0], nil
}

func writeTo(write func(io.Writer) error) func(path string) error {
	return func(path string) error {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if err := write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
}

// stage produces a into a hidden temp file in its kind directory and
// fills in size and checksum. Nothing is registered.
func (w *Workspace) stage(ctx context.Context, a Artifact, produce func(path string) error) (stagedArtifact, error) {
	if err := ValidateFilename(a.Name); err != nil {
		return stagedArtifact{}, err
	}
	dir, err := w.ResolveOutputDir(a.Kind)
	if err != nil {
		return stagedArtifact{}, err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*-"+a.Name)
	if err != nil {
		return stagedArtifact{}, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	discard := func() { _ = os.Remove(tmpPath) }

	if err := produce(tmpPath); err != nil {
		discard()
		return stagedArtifact{}, err
	}
	if err := ctx.Err(); err != nil {
		discard()
		return stagedArtifact{}, err
	}

	size, sum, err := hashFile(tmpPath)
	if err != nil {
		discard()
		return stagedArtifact{}, err
	}
	a.Size = size
	a.Checksum = sum
	return stagedArtifact{a: a, tmp: tmpPath, final: filepath.Join(dir, a.Name)}, nil
}

// ScratchDir returns a private directory for transient files.
func (w *Workspace) ScratchDir() (string, error) {
	path := filepath.Join(w.root, "tmp")
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	return path, nil
}

// Teardown removes everything the workspace owns. Caller-supplied
// directories are left untouched.
func (w *Workspace) Teardown() error {
	w.artifacts.reset()
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash artifact: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
