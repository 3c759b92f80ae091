package validators

import (
	"errors"
	"net/http"
	"strings"
)

var ErrMissingToken = errors.New("missing bearer token")

// BearerToken extracts the token from an Authorization header. The "Bearer"
// scheme is optional.
func BearerToken(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
