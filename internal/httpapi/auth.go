package httpapi

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when no valid caller identity is
// presented.
var ErrUnauthorized = errors.New("missing or invalid token")

// Authenticator resolves the caller's user id from a request.
// Credential issuance and verification live behind this interface;
// the service only consumes the resolved identity.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// StaticTokens authenticates bearer tokens against a fixed
// token-to-user map. Suitable for deployments without an external
// identity service.
type StaticTokens map[string]string

// Authenticate implements Authenticator
func (s StaticTokens) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", ErrUnauthorized
	}
	userID, ok := s[strings.TrimSpace(token)]
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}
