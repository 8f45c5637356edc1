package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mattjoyce/folio/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.InvalidConfig:          http.StatusBadRequest,
	apperr.InvalidFilename:        http.StatusBadRequest,
	apperr.TooFewFiles:            http.StatusBadRequest,
	apperr.SessionNotFound:        http.StatusNotFound,
	apperr.FileNotFound:           http.StatusNotFound,
	apperr.ArtifactNotFound:       http.StatusNotFound,
	apperr.SessionExpired:         http.StatusGone,
	apperr.UnsupportedFileType:    http.StatusUnsupportedMediaType,
	apperr.DirectoryNotAccessible: http.StatusUnprocessableEntity,
	apperr.PageOutOfRange:         http.StatusUnprocessableEntity,
	apperr.InvalidRange:           http.StatusUnprocessableEntity,
	apperr.PageSplitUnsupported:   http.StatusUnprocessableEntity,
	apperr.EngineFailure:          http.StatusBadGateway,
	apperr.OperationTimeout:       http.StatusGatewayTimeout,
}

// statusFor maps a classified error to its HTTP status.
func statusFor(kind apperr.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeAppError reports err to the client. Unclassified errors are logged
// and replaced with a generic message.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apperr.As(err); ok {
		resp := ErrorResponse{
			Error: e.Public(),
			Kind:  string(e.Kind),
			Field: e.Field,
			Value: e.Value,
		}
		if e.Kind == apperr.EngineFailure && e.Err != nil {
			s.logger.Warn("engine failure", "path", r.URL.Path, "error", err)
		}
		respondJSON(w, statusFor(e.Kind), resp)
		return
	}
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		s.logger.Debug("client went away", "path", r.URL.Path)
		return
	}
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
