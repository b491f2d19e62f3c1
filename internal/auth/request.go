package auth

import (
	"net/http"
	"strings"
)

const TokenCookie = "token"

// TokenFromRequest extracts a bearer token from, in order, the
// Authorization header, the token header, the token cookie and the token
// query parameter. Browsers cannot set headers on websocket upgrades, which
// is what the last two are for.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}
