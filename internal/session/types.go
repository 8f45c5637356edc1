package session

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/workspace"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive  Status = "Active"
	StatusExpired Status = "Expired"
	StatusDeleted Status = "Deleted"
)

// Config selects the workspace mode. Both directories empty means an
// upload-backed workspace; both set means local-directory mode.
type Config struct {
	InputDir  string `json:"input_dir,omitempty"`
	OutputDir string `json:"output_dir,omitempty"`
}

func (c Config) mode() (workspace.Mode, error) {
	in := strings.TrimSpace(c.InputDir)
	out := strings.TrimSpace(c.OutputDir)
	switch {
	case in == "" && out == "":
		return workspace.ModeUpload, nil
	case in == "":
		return "", apperr.New(apperr.InvalidConfig, "input_dir is required when output_dir is set").WithField("input_dir", "")
	case out == "":
		return "", apperr.New(apperr.InvalidConfig, "output_dir is required when input_dir is set").WithField("output_dir", "")
	}
	return workspace.ModeLocal, nil
}

// Info is a point-in-time view of a session.
type Info struct {
	ID        string         `json:"session_id"`
	Mode      workspace.Mode `json:"mode"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Elapsed   time.Duration  `json:"-"`
	Remaining time.Duration  `json:"-"`
	Status    Status         `json:"status"`
}

// EventSession scopes lifecycle events to this session.
func (i Info) EventSession() string { return i.ID }

// Handle is a live reference to a session's workspace. Release must be
// called exactly once when the caller is done; further calls are ignored.
type Handle struct {
	id      string
	ws      *workspace.Workspace
	release func()
	once    sync.Once
}

func (h *Handle) ID() string                      { return h.id }
func (h *Handle) Workspace() *workspace.Workspace { return h.ws }

// Release gives up the session's shared lock.
func (h *Handle) Release() {
	h.once.Do(h.release)
}

func removeRoot(root string) error {
	return os.RemoveAll(root)
}
