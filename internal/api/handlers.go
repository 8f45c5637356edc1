package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/bundle"
	"github.com/mattjoyce/folio/internal/dispatch"
	"github.com/mattjoyce/folio/internal/journal"
	"github.com/mattjoyce/folio/internal/session"
	"github.com/mattjoyce/folio/internal/workspace"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		SessionsActive: len(s.sessions.List()),
	}
	if s.ops != nil {
		resp.OperationsInFlight = s.ops.InFlight()
		resp.OperationsCapacity = s.ops.Capacity()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCreateSession handles POST /sessions. An empty body creates an
// upload-backed session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg session.Config
	if err := decodeJSON(r, &cfg); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	info, err := s.sessions.Create(r.Context(), cfg)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(info))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(list))}
	for _, info := range list {
		resp.Sessions = append(resp.Sessions, sessionResponse(info))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(info))
}

// handleDeleteSession handles DELETE /sessions/{id}. It blocks until any
// running operation on the session has finished.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": string(session.StatusDeleted)})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	files, err := h.Workspace().ListInputFiles()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, FileListResponse{Files: files})
}

// handleUpload handles POST /sessions/{id}/files. Every part named "file"
// or "files" is stored; parts are streamed, never buffered whole.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeAppError(w, r, apperr.New(apperr.InvalidConfig, "expected a multipart/form-data body").WithField("content_type", r.Header.Get("Content-Type")))
		return
	}

	resp := UploadResponse{Uploaded: []UploadedFile{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeAppError(w, r, apperr.Wrap(apperr.InvalidConfig, err, "malformed multipart body"))
			return
		}
		name := part.FormName()
		if name != "file" && name != "files" {
			_ = part.Close()
			continue
		}
		filename := rawFileName(part)
		n, err := h.Workspace().Upload(filename, part)
		_ = part.Close()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		s.logger.Info("file uploaded", "session_id", h.ID(), "filename", filename, "size", n)
		resp.Uploaded = append(resp.Uploaded, UploadedFile{Filename: filename, Size: n})
	}
	if len(resp.Uploaded) == 0 {
		s.writeAppError(w, r, apperr.New(apperr.InvalidConfig, "no file part in upload").WithField("file", ""))
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	var p dispatch.OCRParams
	s.runOperation(w, r, &p, func(h *session.Handle) (dispatch.Result, error) {
		return s.ops.OCR(r.Context(), h, p)
	})
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	var p dispatch.MarkdownParams
	s.runOperation(w, r, &p, func(h *session.Handle) (dispatch.Result, error) {
		return s.ops.Markdown(r.Context(), h, p)
	})
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var p dispatch.SplitParams
	s.runOperation(w, r, &p, func(h *session.Handle) (dispatch.Result, error) {
		return s.ops.Split(r.Context(), h, p)
	})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var p dispatch.MergeParams
	s.runOperation(w, r, &p, func(h *session.Handle) (dispatch.Result, error) {
		return s.ops.Merge(r.Context(), h, p)
	})
}

// runOperation decodes params, holds the session for the length of run and
// writes the result.
func (s *Server) runOperation(w http.ResponseWriter, r *http.Request, params any, run func(*session.Handle) (dispatch.Result, error)) {
	if err := decodeJSON(r, params); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	res, err := run(h)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OperationResponse{
		SessionID:  h.ID(),
		Op:         res.Op,
		Artifacts:  res.Artifacts,
		Pages:      res.Pages,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// handleListArtifacts handles GET /sessions/{id}/artifacts?kind=.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	kind, err := workspace.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	respondJSON(w, http.StatusOK, ArtifactListResponse{Artifacts: h.Workspace().Artifacts().List(kind)})
}

// handleDownload handles GET /sessions/{id}/download?name=. Without a name
// every artifact is zipped.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	p, err := bundle.Bundle(h.Workspace(), r.URL.Query().Get("name"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer func() {
		if err := p.Close(); err != nil {
			s.logger.Warn("failed to release download", "session_id", h.ID(), "error", err)
		}
	}()

	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(p.Filename))
	if p.Checksum != "" {
		w.Header().Set("ETag", `"`+p.Checksum+`"`)
	}
	http.ServeContent(w, r, p.Filename, p.ModTime, p.Reader())
}

// handleExport handles POST /sessions/{id}/export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.writeError(w, http.StatusNotFound, "export is not enabled")
		return
	}
	h, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer h.Release()

	p, err := bundle.Bundle(h.Workspace(), "")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer p.Close()

	obj, err := s.exporter.Export(r.Context(), h.ID(), p)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.logger.Info("bundle exported", "session_id", h.ID(), "key", obj.Key, "entries", p.Entries)
	s.events.Publish("session.exported", map[string]any{"session_id": h.ID(), "key": obj.Key, "size": obj.Size})
	respondJSON(w, http.StatusOK, obj)
}

// handleHistory handles GET /sessions/{id}/history?limit=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Status(id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := HistoryResponse{Operations: []journal.Entry{}}
	if s.journal == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeAppError(w, r, apperr.New(apperr.InvalidConfig, "limit must be a non-negative integer").WithField("limit", v))
			return
		}
		limit = n
	}
	entries, err := s.journal.ListBySession(r.Context(), id, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if entries != nil {
		resp.Operations = entries
	}
	respondJSON(w, http.StatusOK, resp)
}

// acquire holds the session named in the path. The caller must Release.
func (s *Server) acquire(w http.ResponseWriter, r *http.Request) (*session.Handle, bool) {
	h, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return nil, false
	}
	return h, true
}

// decodeJSON reads an optional JSON body into v. Unknown fields are rejected.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.InvalidConfig, err, "invalid JSON body: %s", jsonProblem(err))
	}
	return nil
}

func jsonProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type)
	}
	return strings.TrimPrefix(err.Error(), "json: ")
}

// decodeCredentials accepts client credentials as JSON or as an
// application/x-www-form-urlencoded body.
func decodeCredentials(r *http.Request, req *TokenRequest) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("invalid form body")
		}
		req.ClientID = r.PostForm.Get("client_id")
		req.ClientSecret = r.PostForm.Get("client_secret")
	} else if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		return fmt.Errorf("client_id and client_secret are required")
	}
	return nil
}

// rawFileName reads the part's filename as sent. multipart.Part.FileName
// strips directories, which would hide traversal attempts from validation.
func rawFileName(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	return params["filename"]
}

func contentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
