package api

import (
	"errors"
	"net/http"

	"github.com/mattjoyce/folio/internal/auth"
)

// authMiddleware resolves the bearer token to a principal. With no
// credentials configured every caller is treated as admin.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Auth.Enabled() {
			p := auth.Principal{Scopes: map[string]struct{}{auth.ScopeAll: {}}}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
			return
		}

		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		principal, err := s.config.Auth.Authenticate(token)
		if errors.Is(err, auth.ErrTokenExpired) {
			s.writeError(w, http.StatusUnauthorized, "token expired")
			return
		}
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func (s *Server) requireScopes(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !auth.HasAnyScope(p, required...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleIssueToken handles POST /auth/token with client credentials as a
// form or JSON body.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	issuer := s.config.Auth.JWT
	if issuer == nil {
		s.writeError(w, http.StatusNotFound, "token issuance is not enabled")
		return
	}

	var req TokenRequest
	if err := decodeCredentials(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, exp, err := issuer.Issue(req.ClientID, req.ClientSecret)
	if err != nil {
		s.logger.Warn("token request rejected", "client_id", req.ClientID)
		s.writeError(w, http.StatusUnauthorized, "invalid client credentials")
		return
	}
	respondJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(issuer.TTL().Seconds()),
		ExpiresAt:   exp,
	})
}
