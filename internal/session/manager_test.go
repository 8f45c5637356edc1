package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/events"
	"github.com/mattjoyce/folio/internal/workspace"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *events.Hub) {
	t.Helper()
	roots, err := workspace.NewRootManager(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	hub := events.NewHub(64)
	m := NewManager(roots, Options{
		TTL:            time.Hour,
		AllowLocalDirs: true,
		Now:            clock.Now,
		Events:         hub,
	})
	return m, clock, hub
}

func TestCreateUploadSessionIsImmediatelyUsable(t *testing.T) {
	m, _, hub := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, workspace.ModeUpload, info.Mode)
	assert.Equal(t, StatusActive, info.Status)

	h, err := m.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.True(t, h.Workspace().OwnsInput())
	h.Release()
	h.Release()

	st, err := m.Status(info.ID)
	require.NoError(t, err)
	assert.Zero(t, st.Elapsed)
	assert.Equal(t, time.Hour, st.Remaining)
	assert.Equal(t, info.CreatedAt.Add(time.Hour), st.ExpiresAt)

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, "session.created", evs[0].Type)
}

func TestCreateLocalSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	in, out := t.TempDir(), t.TempDir()

	info, err := m.Create(context.Background(), Config{InputDir: in, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, workspace.ModeLocal, info.Mode)

	h, err := m.Get(context.Background(), info.ID)
	require.NoError(t, err)
	defer h.Release()
	assert.False(t, h.Workspace().OwnsInput())
}

func TestCreateInvalidConfig(t *testing.T) {
	m, _, _ := newTestManager(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"input only", Config{InputDir: dir}},
		{"output only", Config{OutputDir: dir}},
		{"missing input", Config{InputDir: filepath.Join(dir, "nope"), OutputDir: dir}},
		{"missing output", Config{InputDir: dir, OutputDir: filepath.Join(dir, "nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(context.Background(), tt.cfg)
			assert.True(t, errors.Is(err, apperr.ErrInvalidConfig), "err = %v", err)
		})
	}
	assert.Empty(t, m.List())

	// Failed creates must not leave private roots behind.
	entries, err := os.ReadDir(m.roots.BaseDir())
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestCreateLocalDisabled(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.opts.AllowLocalDirs = false

	_, err := m.Create(context.Background(), Config{InputDir: t.TempDir(), OutputDir: t.TempDir()})
	assert.True(t, errors.Is(err, apperr.ErrInvalidConfig))
}

func TestGetUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))

	_, err = m.Status("nope")
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))
}

func TestExpiryAndSweep(t *testing.T) {
	m, clock, hub := newTestManager(t)
	ctx := context.Background()

	up, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	in, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "keep.pdf"), []byte("%PDF-1.4"), 0o644))
	local, err := m.Create(ctx, Config{InputDir: in, OutputDir: out})
	require.NoError(t, err)

	h, err := m.Get(ctx, up.ID)
	require.NoError(t, err)
	_, err = h.Workspace().Upload("a.pdf", strings.NewReader("%PDF-1.4\n"))
	require.NoError(t, err)
	inputRoot := h.Workspace().InputRoot()
	h.Release()

	clock.Advance(time.Hour + time.Second)

	_, err = m.Get(ctx, up.ID)
	assert.True(t, errors.Is(err, apperr.ErrSessionExpired), "err = %v", err)

	expired := m.Sweep(ctx)
	assert.Equal(t, 1, expired, "only the local session remained to expire")

	_, err = os.Stat(inputRoot)
	assert.True(t, os.IsNotExist(err), "owned input should be removed")
	_, err = os.Stat(filepath.Join(in, "keep.pdf"))
	assert.NoError(t, err, "caller input must be untouched")
	_, err = os.Stat(out)
	assert.NoError(t, err, "caller output must be untouched")

	st, err := m.Status(local.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, st.Status)
	assert.Zero(t, st.Remaining)

	var types []string
	for _, ev := range hub.SnapshotSince(0) {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, "session.expired")
}

func TestTombstonesAreForgotten(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, Config{})
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)
	m.Sweep(ctx)

	_, err = m.Get(ctx, info.ID)
	assert.True(t, errors.Is(err, apperr.ErrSessionExpired))

	clock.Advance(2 * time.Hour)
	m.Sweep(ctx)

	_, err = m.Get(ctx, info.ID)
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))
}

func TestDeleteIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, Config{})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, info.ID))
	require.NoError(t, m.Delete(ctx, info.ID))

	_, err = m.Get(ctx, info.ID)
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))

	st, err := m.Status(info.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, st.Status)

	assert.True(t, errors.Is(m.Delete(ctx, "never-issued"), apperr.ErrSessionNotFound))
}

func TestDeleteWaitsForInFlightOperation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, Config{})
	require.NoError(t, err)

	h, err := m.Get(ctx, info.ID)
	require.NoError(t, err)
	inputRoot := h.Workspace().InputRoot()

	done := make(chan error, 1)
	go func() { done <- m.Delete(ctx, info.ID) }()

	select {
	case <-done:
		t.Fatal("Delete returned while an operation held the session")
	case <-time.After(50 * time.Millisecond):
	}
	_, err = os.Stat(inputRoot)
	assert.NoError(t, err, "workspace removed under a running operation")

	// New lookups already see the session as gone.
	_, err = m.Get(ctx, info.ID)
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))

	h.Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Delete did not finish after release")
	}
	_, err = os.Stat(inputRoot)
	assert.True(t, os.IsNotExist(err))
}

func TestSweepWaitsForInFlightOperation(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	h, err := m.Get(ctx, info.ID)
	require.NoError(t, err)
	inputRoot := h.Workspace().InputRoot()

	clock.Advance(2 * time.Hour)

	swept := make(chan int, 1)
	go func() { swept <- m.Sweep(ctx) }()

	// The expiry transition is visible before the workspace is removed.
	require.Eventually(t, func() bool {
		st, err := m.Status(info.ID)
		return err == nil && st.Status == StatusExpired
	}, time.Second, 5*time.Millisecond)
	_, err = os.Stat(inputRoot)
	assert.NoError(t, err)

	h.Release()
	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("Sweep did not finish after release")
	}
	_, err = os.Stat(inputRoot)
	assert.True(t, os.IsNotExist(err))
}

func TestListOnlyActive(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	third, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, third.ID))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, time.Minute, list[0].Elapsed)
}

func TestShutdownRemovesEverything(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, Config{})
		require.NoError(t, err)
	}
	m.Shutdown(ctx)

	assert.Empty(t, m.List())
	entries, err := os.ReadDir(m.roots.BaseDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSessionsAreIsolated(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	b, err := m.Create(ctx, Config{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	ha, err := m.Get(ctx, a.ID)
	require.NoError(t, err)
	defer ha.Release()
	hb, err := m.Get(ctx, b.ID)
	require.NoError(t, err)
	defer hb.Release()

	_, err = ha.Workspace().Upload("only-a.pdf", strings.NewReader("%PDF-1.4\n"))
	require.NoError(t, err)

	files, err := hb.Workspace().ListInputFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}
