package bundle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/workspace"
)

func commit(t *testing.T, ws *workspace.Workspace, kind workspace.Kind, name, body string) {
	t.Helper()
	_, err := ws.Commit(context.Background(), workspace.Artifact{Name: name, Kind: kind, Source: "doc.pdf"},
		func(w io.Writer) error {
			_, err := io.WriteString(w, body)
			return err
		})
	require.NoError(t, err)
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.NewUploadBacked(t.TempDir(), workspace.Options{})
	require.NoError(t, err)
	return ws
}

func TestArchiveHoldsEveryArtifact(t *testing.T) {
	ws := newWorkspace(t)
	commit(t, ws, workspace.KindOCRFull, "doc.ocr.txt", "ocr text")
	commit(t, ws, workspace.KindMarkdownPage, "doc_p0001.md", "# page")
	commit(t, ws, workspace.KindSplit, "doc_p0002.pdf", "%PDF-split")
	commit(t, ws, workspace.KindMerge, "merged.pdf", "%PDF-merged")

	p, err := Bundle(ws, "")
	require.NoError(t, err)
	assert.Equal(t, ArchiveName, p.Filename)
	assert.Equal(t, "application/zip", p.ContentType)
	assert.Equal(t, ws.Artifacts().Len(), p.Entries)

	data, err := io.ReadAll(p.Reader())
	require.NoError(t, err)
	assert.EqualValues(t, len(data), p.Size)

	tmpName := p.file.Name()
	require.NoError(t, p.Close())
	_, err = os.Stat(tmpName)
	assert.True(t, os.IsNotExist(err), "temporary archive should be removed")

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, ws.Artifacts().Len())

	var got []string
	bodies := map[string]string{}
	for _, f := range zr.File {
		got = append(got, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		bodies[f.Name] = string(b)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"markdown/doc_p0001.md", "merge/merged.pdf", "ocr/doc.ocr.txt", "split/doc_p0002.pdf"}, got)
	assert.Equal(t, "%PDF-merged", bodies["merge/merged.pdf"])
}

func TestEmptyArchiveIsValid(t *testing.T) {
	ws := newWorkspace(t)
	p, err := Bundle(ws, "")
	require.NoError(t, err)
	defer p.Close()

	data, err := io.ReadAll(p.Reader())
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestSingleArtifact(t *testing.T) {
	ws := newWorkspace(t)
	commit(t, ws, workspace.KindMarkdownFull, "doc.md", "# hi\n")

	p, err := Bundle(ws, "doc.md")
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "doc.md", p.Filename)
	assert.Equal(t, "text/markdown; charset=utf-8", p.ContentType)
	assert.EqualValues(t, 5, p.Size)
	assert.NotEmpty(t, p.Checksum)

	body, err := io.ReadAll(p.Reader())
	require.NoError(t, err)
	assert.Equal(t, "# hi\n", string(body))
}

func TestSearchOrderPrefersOCR(t *testing.T) {
	ws := newWorkspace(t)
	commit(t, ws, workspace.KindMerge, "same.pdf", "from merge")
	commit(t, ws, workspace.KindSplit, "same.pdf", "from split")

	p, err := Bundle(ws, "same.pdf")
	require.NoError(t, err)
	defer p.Close()
	body, _ := io.ReadAll(p.Reader())
	assert.Equal(t, "from split", string(body))
}

func TestMissingArtifact(t *testing.T) {
	_, err := Bundle(newWorkspace(t), "missing.pdf")
	assert.True(t, errors.Is(err, apperr.ErrArtifactNotFound))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("A.PDF"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentType("x.ocr.txt"))
	assert.Equal(t, "application/octet-stream", ContentType("x.bin"))
}
