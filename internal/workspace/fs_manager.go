package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RootManager allocates private per-session directories beneath a base
// directory. Upload-backed workspaces keep both roots there; local-directory
// workspaces only keep scratch space there.
type RootManager struct {
	baseDir string
	now     func() time.Time
}

// NewRootManager creates a filesystem-backed root allocator at baseDir.
func NewRootManager(baseDir string) (*RootManager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}

	return &RootManager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
	}, nil
}

// BaseDir returns the directory all session roots live under.
func (m *RootManager) BaseDir() string { return m.baseDir }

// Create initializes the private root for sessionID.
func (m *RootManager) Create(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := m.rootPath(sessionID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace base directory: %w", err)
	}

	if err := os.Mkdir(path, 0o700); err != nil {
		return "", fmt.Errorf("create workspace for session %q: %w", sessionID, err)
	}

	return path, nil
}

// Open resolves an existing root for sessionID.
func (m *RootManager) Open(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := m.rootPath(sessionID)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("open workspace for session %q: %w", sessionID, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace path for session %q is not a directory", sessionID)
	}

	return path, nil
}

// Cleanup removes session roots older than olderThan based on directory
// modification time. It runs at startup to reclaim roots left behind by a
// previous process, since sessions do not survive restarts.
func (m *RootManager) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if olderThan < 0 {
		return 0, fmt.Errorf("olderThan must not be negative")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read workspace base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	deleted := 0

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return deleted, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return deleted, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		deleted++
	}

	return deleted, nil
}

func (m *RootManager) rootPath(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(m.baseDir, sessionID), nil
}

func validateSessionID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("session id is empty")
	}
	if trimmed != id || trimmed == "." || trimmed == ".." {
		return fmt.Errorf("session id %q is invalid", id)
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return fmt.Errorf("session id %q must not contain path separators", id)
	}
	return nil
}
