package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTOption configures the HS256 bearer authenticator.
type JWTOption func(*hs256)

// WithIssuer requires the iss claim to equal iss.
func WithIssuer(iss string) JWTOption {
	return func(a *hs256) { a.issuer = iss }
}

// WithAudience requires aud to contain aud.
func WithAudience(aud string) JWTOption {
	return func(a *hs256) { a.audience = aud }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(a *hs256) { a.leeway = d }
}

type hs256 struct {
	key      []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewHS256 returns an Authenticator validating HS256-signed bearer tokens.
// Tokens must carry exp and a non-empty sub.
func NewHS256(key []byte, opts ...JWTOption) (Authenticator, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt signing key is required")
	}
	a := &hs256{key: key, leeway: 30 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *hs256) Challenge() string { return `Bearer realm="mcp"` }

func (a *hs256) CheckAuthentication(_ context.Context, r *http.Request) (UserInfo, error) {
	tok, ok := bearerToken(r)
	if !ok {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	}
	if a.issuer != "" {
		popts = append(popts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		popts = append(popts, jwt.WithAudience(a.audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.NewParser(popts...).ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return userInfo{sub: sub, claims: claims}, nil
}
