// internal/handlers/auth.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/skullparty/skull/internal/auth"
)

// EnsureEphemeralPlayer resolves the caller's player identity from the
// auth_token cookie, minting a fresh id and token when none is present
// or the token fails verification. There are no accounts; the id in the
// cookie is what lets a player reconnect into their seat. Must run
// before any WebSocket upgrade since it may set a cookie.
func EnsureEphemeralPlayer(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		if idStr, err := auth.AuthenticateJWT(token); err == nil {
			if playerID, err := uuid.Parse(idStr); err == nil {
				return playerID, nil
			}
		}
		// Bad or expired token: fall through and mint a new identity.
	}

	playerID, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, err
	}
	token, err := auth.CreateJWT(playerID.String())
	if err != nil {
		return uuid.Nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return playerID, nil
}

// extractCookieToken pulls the named cookie value out of a raw Cookie
// header.
func extractCookieToken(cookieHeader, name string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			return strings.TrimPrefix(part, name+"=")
		}
	}
	return ""
}
