package api

import (
	"time"

	"github.com/mattjoyce/folio/internal/dispatch"
	"github.com/mattjoyce/folio/internal/journal"
	"github.com/mattjoyce/folio/internal/session"
	"github.com/mattjoyce/folio/internal/workspace"
)

// ErrorResponse is returned on errors. Kind, Field and Value are set for
// classified failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status             string `json:"status"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	SessionsActive     int    `json:"sessions_active"`
	OperationsInFlight int    `json:"operations_in_flight"`
	OperationsCapacity int    `json:"operations_capacity"`
}

type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionResponse describes one session.
type SessionResponse struct {
	SessionID        string         `json:"session_id"`
	Mode             workspace.Mode `json:"mode"`
	Status           session.Status `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
	ElapsedSeconds   int64          `json:"elapsed_seconds"`
	RemainingSeconds int64          `json:"remaining_seconds"`
}

func sessionResponse(info session.Info) SessionResponse {
	return SessionResponse{
		SessionID:        info.ID,
		Mode:             info.Mode,
		Status:           info.Status,
		CreatedAt:        info.CreatedAt,
		ExpiresAt:        info.ExpiresAt,
		ElapsedSeconds:   int64(info.Elapsed.Seconds()),
		RemainingSeconds: int64(info.Remaining.Seconds()),
	}
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type FileListResponse struct {
	Files []string `json:"files"`
}

type UploadedFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type UploadResponse struct {
	Uploaded []UploadedFile `json:"uploaded"`
}

// OperationResponse is returned by every operation route.
type OperationResponse struct {
	SessionID  string                 `json:"session_id"`
	Op         dispatch.Op            `json:"op"`
	Artifacts  []dispatch.ArtifactRef `json:"artifacts"`
	Pages      []dispatch.PageStatus  `json:"pages,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
}

type ArtifactListResponse struct {
	Artifacts []workspace.Artifact `json:"artifacts"`
}

type HistoryResponse struct {
	Operations []journal.Entry `json:"operations"`
}
