package export

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/bundle"
	"github.com/mattjoyce/folio/internal/workspace"
)

type putRecorder struct {
	mu     sync.Mutex
	method string
	path   string
	status int
}

func (p *putRecorder) handler(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.method, p.path = r.Method, r.URL.Path
	status := p.status
	p.mu.Unlock()

	_, _ = io.Copy(io.Discard, r.Body)
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}
	w.Header().Set("ETag", `"abc123"`)
	w.WriteHeader(http.StatusOK)
}

func newTarget(t *testing.T, status int) (*S3, *putRecorder) {
	t.Helper()
	rec := &putRecorder{status: status}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)

	s, err := NewS3(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "bundles",
		Region:    "us-east-1",
		Prefix:    "/folio/",
	})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return s, rec
}

func emptyBundle(t *testing.T) *bundle.Payload {
	t.Helper()
	root := filepath.Join(t.TempDir(), "ws")
	require.NoError(t, os.MkdirAll(root, 0o755))
	ws, err := workspace.NewUploadBacked(root, workspace.Options{})
	require.NoError(t, err)
	p, err := bundle.Bundle(ws, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestExportUploadsUnderSessionPrefix(t *testing.T) {
	s, rec := newTarget(t, http.StatusOK)

	obj, err := s.Export(context.Background(), "sess-1", emptyBundle(t))
	require.NoError(t, err)
	assert.Equal(t, "bundles", obj.Bucket)
	assert.Equal(t, "folio/sess-1/20260304T050607Z-outputs.zip", obj.Key)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/bundles/folio/sess-1/20260304T050607Z-outputs.zip", rec.path)
}

func TestExportFailureIsEngineFailure(t *testing.T) {
	s, _ := newTarget(t, http.StatusForbidden)

	_, err := s.Export(context.Background(), "sess-1", emptyBundle(t))
	require.Error(t, err)
	assert.Equal(t, apperr.EngineFailure, apperr.KindOf(err))
}

func TestNewS3Validation(t *testing.T) {
	_, err := NewS3(Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewS3(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
