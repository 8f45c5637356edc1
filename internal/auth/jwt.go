package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuerName = "folio"

var (
	ErrInvalidClient = errors.New("invalid client credentials")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

// ClientConfig is a client allowed to exchange its secret for a token.
type ClientConfig struct {
	ID     string
	Secret string
	Scopes []string
}

// Claims carried by issued tokens.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 client-credentials tokens.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	clients map[string]ClientConfig
	now     func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, clients []ClientConfig) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	byID := make(map[string]ClientConfig, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clients: byID, now: time.Now}, nil
}

// Issue exchanges client credentials for a signed token.
func (i *Issuer) Issue(clientID, clientSecret string) (string, time.Time, error) {
	c, ok := i.clients[clientID]
	if !ok || subtle.ConstantTimeCompare([]byte(c.Secret), []byte(clientSecret)) != 1 || c.Secret == "" {
		return "", time.Time{}, ErrInvalidClient
	}

	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Scope: strings.Join(c.Scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks a token's signature, issuer and expiry.
func (i *Issuer) Verify(token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Principal{}, ErrTokenExpired
	}
	if err != nil || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		Token:   token,
		Subject: claims.Subject,
		Scopes:  normalizeScopes(strings.Fields(claims.Scope)),
	}, nil
}

// TTL is the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }
