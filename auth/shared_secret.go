package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
)

type sharedSecret struct {
	header string
	secret []byte
}

// NewSharedSecret returns an Authenticator that requires header to carry
// secret verbatim. A bearer token equal to secret is accepted as well.
func NewSharedSecret(header, secret string) (Authenticator, error) {
	if secret == "" {
		return nil, errors.New("shared secret is required")
	}
	if header == "" {
		header = DefaultSecretHeader
	}
	return &sharedSecret{header: header, secret: []byte(secret)}, nil
}

func (s *sharedSecret) CheckAuthentication(_ context.Context, r *http.Request) (UserInfo, error) {
	got := r.Header.Get(s.header)
	if got == "" {
		if tok, ok := bearerToken(r); ok {
			got = tok
		}
	}
	if got == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrUnauthorized, s.header)
	}
	if subtle.ConstantTimeCompare([]byte(got), s.secret) != 1 {
		return nil, fmt.Errorf("%w: secret mismatch", ErrUnauthorized)
	}
	return userInfo{sub: "shared-secret"}, nil
}
