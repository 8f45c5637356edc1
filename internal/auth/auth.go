// Package auth authenticates API callers by static bearer token or by a
// signed client-credentials JWT, and checks their scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scopes understood by the API. Write implies read.
const (
	ScopeAll        = "*"
	ScopeSessionsRW = "sessions:rw"
	ScopeSessionsRO = "sessions:ro"
	ScopeEventsRO   = "events:ro"
)

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller. Subject is the JWT client id, or
// empty for static tokens.
type Principal struct {
	Token   string
	Subject string
	Scopes  map[string]struct{}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func ExtractBearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate matches a presented bearer token against configured tokens.
// If apiKey matches, it authenticates as admin with scope "*".
func Authenticate(presented string, apiKey string, tokens []TokenConfig) (Principal, bool) {
	if constantTimeEqual(presented, apiKey) {
		return Principal{
			Token:  presented,
			Scopes: map[string]struct{}{ScopeAll: {}},
		}, true
	}

	for _, t := range tokens {
		if constantTimeEqual(presented, t.Token) {
			return Principal{
				Token:  presented,
				Scopes: normalizeScopes(t.Scopes),
			}, true
		}
	}
	return Principal{}, false
}

func normalizeScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}

	for scope := range out {
		if base, ok := strings.CutSuffix(scope, ":rw"); ok {
			out[base+":ro"] = struct{}{}
		}
	}
	return out
}

func HasAnyScope(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

// Authenticator accepts the static API key, scoped static tokens, or a JWT
// issued by Issuer.
type Authenticator struct {
	APIKey string
	Tokens []TokenConfig
	JWT    *Issuer
}

// Enabled reports whether any credential is configured.
func (a *Authenticator) Enabled() bool {
	return a.APIKey != "" || len(a.Tokens) > 0 || a.JWT != nil
}

func (a *Authenticator) Authenticate(presented string) (Principal, error) {
	if p, ok := Authenticate(presented, a.APIKey, a.Tokens); ok {
		return p, nil
	}
	if a.JWT != nil && strings.Count(presented, ".") == 2 {
		return a.JWT.Verify(presented)
	}
	return Principal{}, ErrInvalidToken
}
