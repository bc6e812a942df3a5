package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user.
	UserID() string
	// Claims unmarshalls the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Authenticator checks the credentials carried by an inbound HTTP request.
// It should return an error wrapping ErrUnauthorized for missing or invalid
// credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, r *http.Request) (UserInfo, error)
}

// Challenger is implemented by authenticators that want a WWW-Authenticate
// header on 401 responses.
type Challenger interface {
	Challenge() string
}

// Mode selects an Authenticator implementation.
type Mode string

const (
	ModeNone         Mode = "none"
	ModeSharedSecret Mode = "shared_secret"
	ModeJWT          Mode = "jwt"
)

// DefaultSecretHeader is the header checked in shared_secret mode.
const DefaultSecretHeader = "X-MCP-Secret"

// New builds the Authenticator for mode. header is only used by
// ModeSharedSecret; an empty header selects DefaultSecretHeader.
func New(mode Mode, secret, header string) (Authenticator, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeNone, "":
		return Anonymous(), nil
	case ModeSharedSecret:
		return NewSharedSecret(header, secret)
	case ModeJWT:
		return NewHS256([]byte(secret))
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

type anonymous struct{}

// Anonymous accepts every request.
func Anonymous() Authenticator { return anonymous{} }

func (anonymous) CheckAuthentication(context.Context, *http.Request) (UserInfo, error) {
	return userInfo{sub: "anonymous"}, nil
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u userInfo) UserID() string { return u.sub }

func (u userInfo) Claims(ref any) error {
	if u.claims == nil {
		return nil
	}
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
