package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamWriter struct {
	mu     sync.Mutex
	header http.Header
	status int
	buf    bytes.Buffer
}

func newStreamWriter() *streamWriter {
	return &streamWriter{header: make(http.Header)}
}

func (w *streamWriter) Header() http.Header { return w.header }

func (w *streamWriter) WriteHeader(statusCode int) {
	w.mu.Lock()
	w.status = statusCode
	w.mu.Unlock()
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *streamWriter) Flush() {}

func (w *streamWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func stream(t *testing.T, env *testEnv, path, lastID string) (*streamWriter, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	w := newStreamWriter()
	done := make(chan struct{})
	go func() {
		env.handler.ServeHTTP(w, req)
		close(done)
	}()
	return w, cancel, done
}

func waitFor(t *testing.T, w *streamWriter, substr string) {
	t.Helper()
	require.Eventually(t, func() bool { return strings.Contains(w.String(), substr) }, time.Second, 10*time.Millisecond,
		"expected %q in stream, got: %q", substr, w.String())
}

func TestEventsReplayAndLive(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t)

	w, cancel, done := stream(t, env, "/events?session_id="+id, "")
	waitFor(t, w, "event: session.created\n")

	other := env.createSession(t)
	_ = env.doJSON(t, http.MethodDelete, "/sessions/"+id, nil)
	waitFor(t, w, "event: session.deleted\n")
	assert.NotContains(t, w.String(), other, "other sessions are filtered out")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not exit after context cancel")
	}
}

func TestEventsLastEventIDAndTypeFilter(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Publish("operation.started", map[string]any{"session_id": "s"})
	env.hub.Publish("session.created", map[string]any{"session_id": "s"})
	env.hub.Publish("operation.completed", map[string]any{"session_id": "s"})

	w, cancel, done := stream(t, env, "/events?type=operation.", "1")
	waitFor(t, w, "id: 3\nevent: operation.completed\n")
	assert.NotContains(t, w.String(), "id: 1\n")
	assert.NotContains(t, w.String(), "session.created")

	cancel()
	<-done
}
