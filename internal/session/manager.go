package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/workspace"
)

// DefaultTTL is used when Options.TTL is zero.
const DefaultTTL = 60 * time.Minute

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(eventType string, data any)
}

// Options configure a Manager.
type Options struct {
	TTL            time.Duration
	AllowLocalDirs bool
	MaxUploadBytes int64
	Now            func() time.Time
	NewID          func() string
	Events         Publisher
	Logger         *slog.Logger
}

// Manager owns the session table. Each entry carries its own RWMutex:
// operations hold it shared for their whole duration, deletion and reaping
// hold it exclusively, so a workspace is never removed under a running
// operation.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	roots  *workspace.RootManager
	opts   Options
	logger *slog.Logger
}

type entry struct {
	mu sync.RWMutex

	id        string
	mode      workspace.Mode
	ws        *workspace.Workspace
	createdAt time.Time
	expiresAt time.Time

	stateMu  sync.Mutex
	status   Status
	reaped   bool
	closedAt time.Time
}

// NewManager creates a manager allocating private roots through roots.
func NewManager(roots *workspace.RootManager, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		roots:    roots,
		opts:     opts,
		logger:   logger.With("component", "session"),
	}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration { return m.opts.TTL }

// Create allocates a session and its workspace.
func (m *Manager) Create(ctx context.Context, cfg Config) (Info, error) {
	mode, err := cfg.mode()
	if err != nil {
		return Info{}, err
	}
	if mode == workspace.ModeLocal && !m.opts.AllowLocalDirs {
		return Info{}, apperr.New(apperr.InvalidConfig, "local directory sessions are disabled").WithField("input_dir", cfg.InputDir)
	}

	id := m.opts.NewID()
	root, err := m.roots.Create(ctx, id)
	if err != nil {
		return Info{}, fmt.Errorf("allocate workspace: %w", err)
	}

	wsOpts := workspace.Options{MaxUploadBytes: m.opts.MaxUploadBytes, Now: m.opts.Now}
	var ws *workspace.Workspace
	if mode == workspace.ModeLocal {
		ws, err = workspace.NewLocal(root, cfg.InputDir, cfg.OutputDir, wsOpts)
	} else {
		ws, err = workspace.NewUploadBacked(root, wsOpts)
	}
	if err != nil {
		if rmErr := removeRoot(root); rmErr != nil {
			m.logger.Warn("failed to remove abandoned workspace", "session_id", id, "error", rmErr)
		}
		return Info{}, err
	}

	now := m.opts.Now()
	e := &entry{
		id:        id,
		mode:      mode,
		ws:        ws,
		createdAt: now,
		expiresAt: now.Add(m.opts.TTL),
		status:    StatusActive,
	}

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	info := m.info(e, now)
	m.logger.Info("session created", "session_id", id, "mode", mode, "expires_at", e.expiresAt)
	m.publish("session.created", info)
	return info, nil
}

// Get resolves id to its workspace. The returned Handle holds the session's
// shared lock until Release, keeping reaping and deletion out.
func (m *Manager) Get(ctx context.Context, id string) (*Handle, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := m.checkLive(e); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	// The session may have expired or been deleted while waiting for the lock.
	if err := m.checkLive(e); err != nil {
		e.mu.RUnlock()
		return nil, err
	}
	return &Handle{id: id, ws: e.ws, release: e.mu.RUnlock}, nil
}

// Status reports timing and state for id, including sessions that have
// expired or been deleted but not yet forgotten.
func (m *Manager) Status(id string) (Info, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	_ = m.checkLive(e)
	return m.info(e, m.opts.Now()), nil
}

// List returns active sessions ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	now := m.opts.Now()
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if m.checkLive(e) != nil {
			continue
		}
		out = append(out, m.info(e, now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a session's workspace and marks it deleted. It waits for an
// in-flight operation on the session to finish. Deleting an already deleted
// or expired session is a no-op.
func (m *Manager) Delete(ctx context.Context, id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.stateMu.Lock()
	wasActive := e.status == StatusActive
	if wasActive {
		e.status = StatusDeleted
		e.closedAt = m.opts.Now()
	}
	e.stateMu.Unlock()

	if err := m.reap(e); err != nil {
		return err
	}
	if wasActive {
		m.logger.Info("session deleted", "session_id", id)
		m.publish("session.deleted", map[string]any{"session_id": id})
	}
	return nil
}

// Sweep expires every active session past its deadline and reaps the
// workspaces of all expired sessions. Reaps run concurrently and Sweep
// returns once they finish. Tombstones older than one further TTL are
// forgotten.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.opts.Now()

	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		expired int
	)
	for _, e := range entries {
		if m.expireIfDue(e, now) {
			expired++
		}

		e.stateMu.Lock()
		pending := e.status != StatusActive && !e.reaped
		forget := e.reaped && now.Sub(e.closedAt) > m.opts.TTL
		e.stateMu.Unlock()

		if forget {
			m.mu.Lock()
			delete(m.sessions, e.id)
			m.mu.Unlock()
			continue
		}
		if !pending {
			continue
		}
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			if err := m.reap(e); err != nil {
				m.logger.Error("failed to reap session", "session_id", e.id, "error", err)
			}
		}(e)
	}
	wg.Wait()
	return expired
}

// Shutdown reaps every session. Used when the process stops, since sessions
// do not outlive it.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Delete(ctx, id); err != nil {
			m.logger.Warn("failed to delete session during shutdown", "session_id", id, "error", err)
		}
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	id = strings.TrimSpace(id)
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.SessionNotFound, "session %q not found", id).WithField("session_id", id)
	}
	return e, nil
}

// checkLive reports whether e can serve operations, lazily expiring it.
func (m *Manager) checkLive(e *entry) error {
	if m.expireIfDue(e, m.opts.Now()) {
		go func() {
			if err := m.reap(e); err != nil {
				m.logger.Error("failed to reap expired session", "session_id", e.id, "error", err)
			}
		}()
	}

	e.stateMu.Lock()
	status := e.status
	e.stateMu.Unlock()

	switch status {
	case StatusExpired:
		return apperr.New(apperr.SessionExpired, "session %q has expired", e.id).WithField("session_id", e.id)
	case StatusDeleted:
		return apperr.New(apperr.SessionNotFound, "session %q not found", e.id).WithField("session_id", e.id)
	}
	return nil
}

// expireIfDue flips an overdue active session to expired. It reports whether
// this call made the transition.
func (m *Manager) expireIfDue(e *entry, now time.Time) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.status != StatusActive || !now.After(e.expiresAt) {
		return false
	}
	e.status = StatusExpired
	e.closedAt = now
	m.logger.Info("session expired", "session_id", e.id, "expired_at", e.expiresAt)
	m.publish("session.expired", map[string]any{"session_id": e.id})
	return true
}

// reap removes the workspace once no operation holds the session.
func (m *Manager) reap(e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stateMu.Lock()
	done := e.reaped
	e.stateMu.Unlock()
	if done {
		return nil
	}

	if err := e.ws.Teardown(); err != nil {
		return fmt.Errorf("reap session %q: %w", e.id, err)
	}

	e.stateMu.Lock()
	e.reaped = true
	e.stateMu.Unlock()
	m.logger.Debug("session workspace removed", "session_id", e.id)
	return nil
}

func (m *Manager) info(e *entry, now time.Time) Info {
	e.stateMu.Lock()
	status := e.status
	e.stateMu.Unlock()

	elapsed := now.Sub(e.createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := e.expiresAt.Sub(now)
	if remaining < 0 || status != StatusActive {
		remaining = 0
	}
	return Info{
		ID:        e.id,
		Mode:      e.mode,
		CreatedAt: e.createdAt,
		ExpiresAt: e.expiresAt,
		Elapsed:   elapsed,
		Remaining: remaining,
		Status:    status,
	}
}

func (m *Manager) publish(eventType string, data any) {
	if m.opts.Events != nil {
		m.opts.Events.Publish(eventType, data)
	}
}
