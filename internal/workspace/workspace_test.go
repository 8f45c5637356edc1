package workspace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/folio/internal/apperr"
)

const fakePDF = "%PDF-1.7\n% test\n"

func newUploadWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewUploadBacked(filepath.Join(t.TempDir(), "sess"), Options{})
	if err != nil {
		t.Fatalf("NewUploadBacked() error = %v", err)
	}
	return ws
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestUploadAndList(t *testing.T) {
	ws := newUploadWorkspace(t)

	for _, name := range []string{"b.pdf", "a.PDF"} {
		if _, err := ws.Upload(name, strings.NewReader(fakePDF)); err != nil {
			t.Fatalf("Upload(%q) error = %v", name, err)
		}
	}
	// Non-PDF files already present are filtered out of listings.
	if err := os.WriteFile(filepath.Join(ws.InputRoot(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := ws.ListInputFiles()
	if err != nil {
		t.Fatalf("ListInputFiles() error = %v", err)
	}
	want := []string{"a.PDF", "b.pdf"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ListInputFiles() = %v, want %v", got, want)
	}
}

func TestUploadRejections(t *testing.T) {
	ws := newUploadWorkspace(t)

	tests := []struct {
		name     string
		filename string
		content  string
		want     apperr.Kind
	}{
		{"traversal", "../evil.pdf", fakePDF, apperr.InvalidFilename},
		{"separator", "dir/evil.pdf", fakePDF, apperr.InvalidFilename},
		{"backslash", `dir\evil.pdf`, fakePDF, apperr.InvalidFilename},
		{"dotdot", "..", fakePDF, apperr.InvalidFilename},
		{"empty", "", fakePDF, apperr.InvalidFilename},
		{"wrong extension", "doc.txt", fakePDF, apperr.UnsupportedFileType},
		{"not pdf bytes", "doc.pdf", "hello world", apperr.UnsupportedFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ws.Upload(tt.filename, strings.NewReader(tt.content))
			if apperr.KindOf(err) != tt.want {
				t.Fatalf("Upload() kind = %q (err %v), want %q", apperr.KindOf(err), err, tt.want)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(ws.InputRoot()), "evil.pdf")); !os.IsNotExist(err) {
		t.Fatalf("traversal upload escaped input root")
	}
}

func TestUploadOverwritesExistingFile(t *testing.T) {
	ws := newUploadWorkspace(t)
	if _, err := ws.Upload("a.pdf", strings.NewReader(fakePDF+"one")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := ws.Upload("a.pdf", strings.NewReader(fakePDF+"two")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(ws.InputRoot(), "a.pdf"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.HasSuffix(data, []byte("two")) {
		t.Fatalf("upload did not overwrite: %q", data)
	}
}

func TestUploadLimit(t *testing.T) {
	ws, err := NewUploadBacked(filepath.Join(t.TempDir(), "sess"), Options{MaxUploadBytes: 10})
	if err != nil {
		t.Fatalf("NewUploadBacked() error = %v", err)
	}
	_, err = ws.Upload("big.pdf", strings.NewReader(fakePDF+strings.Repeat("x", 64)))
	if apperr.KindOf(err) != apperr.InvalidConfig {
		t.Fatalf("Upload() err = %v, want InvalidConfig", err)
	}
	if _, err := os.Stat(filepath.Join(ws.InputRoot(), "big.pdf")); !os.IsNotExist(err) {
		t.Fatal("oversized upload left a file behind")
	}
}

func TestUploadRejectedInLocalMode(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	ws, err := NewLocal(filepath.Join(t.TempDir(), "sess"), in, out, Options{})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	if _, err := ws.Upload("a.pdf", strings.NewReader(fakePDF)); apperr.KindOf(err) != apperr.InvalidConfig {
		t.Fatalf("Upload() err = %v, want InvalidConfig", err)
	}
}

func TestNewLocalValidation(t *testing.T) {
	existing := t.TempDir()
	file := filepath.Join(existing, "file.pdf")
	if err := os.WriteFile(file, []byte(fakePDF), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name  string
		in    string
		out   string
		field string
	}{
		{"missing input", filepath.Join(existing, "nope"), existing, "input_dir"},
		{"input is file", file, existing, "input_dir"},
		{"missing output", existing, filepath.Join(existing, "nope"), "output_dir"},
		{"empty output", existing, "", "output_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocal(filepath.Join(t.TempDir(), "sess"), tt.in, tt.out, Options{})
			e, ok := apperr.As(err)
			if !ok || e.Kind != apperr.InvalidConfig {
				t.Fatalf("NewLocal() err = %v, want InvalidConfig", err)
			}
			if e.Field != tt.field {
				t.Fatalf("NewLocal() field = %q, want %q", e.Field, tt.field)
			}
		})
	}
}

func TestInputPath(t *testing.T) {
	ws := newUploadWorkspace(t)
	if _, err := ws.Upload("a.pdf", strings.NewReader(fakePDF)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if _, err := ws.InputPath("a.pdf"); err != nil {
		t.Fatalf("InputPath(a.pdf) error = %v", err)
	}
	if _, err := ws.InputPath("missing.pdf"); !errors.Is(err, apperr.ErrFileNotFound) {
		t.Fatalf("InputPath(missing) err = %v, want FileNotFound", err)
	}
	if _, err := ws.InputPath("../a.pdf"); !errors.Is(err, apperr.ErrInvalidFilename) {
		t.Fatalf("InputPath(../a.pdf) err = %v, want InvalidFilename", err)
	}
}

func TestResolveInputDefaultsToSinglePDF(t *testing.T) {
	ws := newUploadWorkspace(t)

	if _, _, err := ws.ResolveInput(""); !errors.Is(err, apperr.ErrFileNotFound) {
		t.Fatalf("ResolveInput(\"\") on empty input err = %v, want FileNotFound", err)
	}

	if _, err := ws.Upload("only.pdf", strings.NewReader(fakePDF)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	name, path, err := ws.ResolveInput("  ")
	if err != nil {
		t.Fatalf("ResolveInput() error = %v", err)
	}
	if name != "only.pdf" || path != filepath.Join(ws.InputRoot(), "only.pdf") {
		t.Fatalf("ResolveInput() = %q, %q", name, path)
	}

	if _, err := ws.Upload("second.pdf", strings.NewReader(fakePDF)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, _, err := ws.ResolveInput(""); !errors.Is(err, apperr.ErrInvalidFilename) {
		t.Fatalf("ResolveInput(\"\") with two PDFs err = %v, want InvalidFilename", err)
	}
	if name, _, err := ws.ResolveInput("second.pdf"); err != nil || name != "second.pdf" {
		t.Fatalf("ResolveInput(second.pdf) = %q, %v", name, err)
	}
}

func TestBatchPublishesTogether(t *testing.T) {
	ws := newUploadWorkspace(t)
	ctx := context.Background()

	b := ws.NewBatch()
	for _, page := range []int{1, 2} {
		a := Artifact{Name: OCRPageName("doc.pdf", page), Kind: KindOCRPage, Source: "doc.pdf", PageIndex: page}
		if err := b.Add(ctx, a, writeString("page")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if n := ws.Artifacts().Len(); n != 0 {
		t.Fatalf("staged artifacts visible before commit: %d", n)
	}
	if _, err := ws.Artifacts().Get(OCRPageName("doc.pdf", 1)); !errors.Is(err, apperr.ErrArtifactNotFound) {
		t.Fatalf("Get() before commit err = %v", err)
	}

	got, err := b.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(got) != 2 || ws.Artifacts().Len() != 2 {
		t.Fatalf("committed %d, registered %d", len(got), ws.Artifacts().Len())
	}
	if got[1].Checksum == "" || got[1].CreatedAt.IsZero() {
		t.Fatalf("committed artifact missing metadata: %+v", got[1])
	}
	if _, err := b.Commit(ctx); err == nil {
		t.Fatal("second Commit() succeeded")
	}
	b.Discard()
	if _, err := os.Stat(ws.ArtifactPath(got[0])); err != nil {
		t.Fatalf("Discard after Commit removed output: %v", err)
	}
}

func TestBatchDiscardLeavesEarlierOutputs(t *testing.T) {
	ws := newUploadWorkspace(t)
	ctx := context.Background()

	kept := Artifact{Name: SplitPageName("doc.pdf", 1), Kind: KindSplit, Source: "doc.pdf", PageIndex: 1}
	if _, err := ws.Commit(ctx, kept, writeString("v1")); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	b := ws.NewBatch()
	if err := b.Add(ctx, kept, writeString("v2")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	boom := errors.New("page 2 failed")
	page2 := Artifact{Name: SplitPageName("doc.pdf", 2), Kind: KindSplit, Source: "doc.pdf", PageIndex: 2}
	if err := b.Add(ctx, page2, func(io.Writer) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Add() err = %v, want %v", err, boom)
	}
	b.Discard()

	if n := ws.Artifacts().Len(); n != 1 {
		t.Fatalf("artifact count = %d, want 1", n)
	}
	data, err := os.ReadFile(ws.ArtifactPath(kept))
	if err != nil || string(data) != "v1" {
		t.Fatalf("earlier output = %q, %v", data, err)
	}
	entries, err := os.ReadDir(filepath.Join(ws.OutputRoot(), DirSplit))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("split directory holds %d entries, want 1", len(entries))
	}

	ctx, cancel := context.WithCancel(ctx)
	b = ws.NewBatch()
	if err := b.Add(ctx, page2, writeString("late")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	cancel()
	if _, err := b.Commit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Commit() after cancel err = %v", err)
	}
	if _, err := ws.Artifacts().Get(page2.Name); !errors.Is(err, apperr.ErrArtifactNotFound) {
		t.Fatalf("cancelled batch registered %q", page2.Name)
	}
}

func TestCommitRegistersAndOverwrites(t *testing.T) {
	ws := newUploadWorkspace(t)
	ctx := context.Background()

	a := Artifact{Name: OCRFullName("doc.pdf"), Kind: KindOCRFull, Source: "doc.pdf"}
	first, err := ws.Commit(ctx, a, writeString("first"))
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	second, err := ws.Commit(ctx, a, writeString("second run"))
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if n := ws.Artifacts().Len(); n != 1 {
		t.Fatalf("artifact count = %d, want 1", n)
	}
	if first.Checksum == second.Checksum {
		t.Fatal("checksum did not change after overwrite")
	}
	data, err := os.ReadFile(ws.ArtifactPath(second))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "second run" {
		t.Fatalf("artifact content = %q", data)
	}
	if second.Size != int64(len("second run")) {
		t.Fatalf("artifact size = %d", second.Size)
	}
}

func TestCommitFailureLeavesNothing(t *testing.T) {
	ws := newUploadWorkspace(t)
	boom := errors.New("engine failed")

	a := Artifact{Name: "doc.md", Kind: KindMarkdownFull, Source: "doc.pdf"}
	_, err := ws.Commit(context.Background(), a, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Commit() err = %v, want %v", err, boom)
	}
	assertNoFiles(t, filepath.Join(ws.OutputRoot(), DirMarkdown))
	if ws.Artifacts().Len() != 0 {
		t.Fatal("failed commit registered an artifact")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ws.Commit(ctx, a, writeString("late")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Commit() after cancel err = %v", err)
	}
	assertNoFiles(t, filepath.Join(ws.OutputRoot(), DirMarkdown))
}

func TestStoreGetSearchOrder(t *testing.T) {
	s := NewStore()
	s.Register(Artifact{Name: "x.pdf", Kind: KindMerge})
	s.Register(Artifact{Name: "x.pdf", Kind: KindSplit})

	got, err := s.Get("x.pdf")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Kind != KindSplit {
		t.Fatalf("Get() kind = %q, want split", got.Kind)
	}
	if _, err := s.Get("missing.pdf"); !errors.Is(err, apperr.ErrArtifactNotFound) {
		t.Fatalf("Get(missing) err = %v", err)
	}
	if n := len(s.List(KindMerge)); n != 1 {
		t.Fatalf("List(merge) = %d, want 1", n)
	}
}

func TestNewLocalRescansExistingOutputs(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := map[string]string{
		"ocr/doc.ocr.txt":               "text",
		"ocr/doc_p0002.ocr.txt":         "page",
		"markdown/doc_p0001.md":         "# p1",
		"split/doc_p0007.pdf":           fakePDF,
		"split/doc_pages_0002-0004.pdf": fakePDF,
		"merge/all.pdf":                 fakePDF,
		"merge/.tmp-123-all.pdf":        "partial",
		"other/ignored.txt":             "x",
	}
	for rel, content := range files {
		path := filepath.Join(out, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	ws, err := NewLocal(filepath.Join(t.TempDir(), "sess"), in, out, Options{})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	if n := ws.Artifacts().Len(); n != 6 {
		t.Fatalf("rescanned %d artifacts, want 6", n)
	}
	page, err := ws.Artifacts().Get("doc_p0002.ocr.txt")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if page.Kind != KindOCRPage || page.PageIndex != 2 || page.Source != "doc.pdf" {
		t.Fatalf("rescanned page artifact = %+v", page)
	}
	rng, err := ws.Artifacts().Get("doc_pages_0002-0004.pdf")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rng.PageRange != "2-4" {
		t.Fatalf("range = %q, want 2-4", rng.PageRange)
	}
}

func TestTeardownOwnership(t *testing.T) {
	// Upload-backed: everything goes.
	up := newUploadWorkspace(t)
	if _, err := up.Upload("a.pdf", strings.NewReader(fakePDF)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := up.Teardown(); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if _, err := os.Stat(up.InputRoot()); !os.IsNotExist(err) {
		t.Fatal("owned input root survived teardown")
	}

	// Local: caller directories are untouched.
	in, out := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(in, "keep.pdf"), []byte(fakePDF), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	local, err := NewLocal(filepath.Join(t.TempDir(), "sess"), in, out, Options{})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	if _, err := local.Commit(context.Background(), Artifact{Name: "keep.ocr.txt", Kind: KindOCRFull}, writeString("x")); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := local.Teardown(); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(in, "keep.pdf")); err != nil {
		t.Fatalf("caller input removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, DirOCR, "keep.ocr.txt")); err != nil {
		t.Fatalf("caller output removed: %v", err)
	}
}

func TestArtifactNames(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{OCRFullName("scan.pdf"), "scan.ocr.txt"},
		{OCRPageName("scan.pdf", 3), "scan_p0003.ocr.txt"},
		{MarkdownFullName("scan.PDF"), "scan.md"},
		{MarkdownPageName("scan.pdf", 12), "scan_p0012.md"},
		{SplitPageName("scan.pdf", 7), "scan_p0007.pdf"},
		{SplitRangeName("scan.pdf", 2, 5), "scan_pages_0002-0005.pdf"},
		{SplitSelectionName("scan.pdf", []int{2, 7}), "scan_pages_sel_0002_0007.pdf"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	long := SplitSelectionName("s.pdf", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})
	other := SplitSelectionName("s.pdf", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 12})
	prefix := "s_pages_sel_0001_0002_0003_0004_0005_0006_0007_0008_0009_0010_plus1_"
	if !strings.HasPrefix(long, prefix) || !strings.HasSuffix(long, ".pdf") {
		t.Errorf("SplitSelectionName(long) = %q", long)
	}
	if long == other {
		t.Errorf("selections [1..11] and [1..10,12] share the name %q", long)
	}
	if again := SplitSelectionName("s.pdf", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}); again != long {
		t.Errorf("SplitSelectionName is not stable: %q vs %q", again, long)
	}
	if len(long) != len(prefix)+8+len(".pdf") {
		t.Errorf("digest length in %q", long)
	}

	if name, err := MergeName(""); err != nil || name != "merged.pdf" {
		t.Errorf("MergeName(\"\") = %q, %v", name, err)
	}
	if name, err := MergeName("bundle"); err != nil || name != "bundle.pdf" {
		t.Errorf("MergeName(bundle) = %q, %v", name, err)
	}
	if _, err := MergeName("../x.pdf"); !errors.Is(err, apperr.ErrInvalidFilename) {
		t.Errorf("MergeName(../x.pdf) err = %v", err)
	}
}

func assertNoFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		t.Fatalf("ReadDir(%q) error = %v", dir, err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files in %s, found %d", dir, len(entries))
	}
}
