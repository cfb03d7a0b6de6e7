package middlewares

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/oauth"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
)

type identityKey struct{}

// Identity returns the authenticated user of a request, or nil for a guest.
func Identity(r *http.Request) *model.Identity {
	identity, _ := r.Context().Value(identityKey{}).(*model.Identity)
	return identity
}

// authorize runs the bearer token check of go-chi/oauth and returns the
// request it authorized, or nil when the token was rejected.
func authorize(secret string, r *http.Request) (*http.Request, int) {
	var authorized *http.Request
	buf := httpx.NewResponseBuffer()
	oauth.Authorize(secret, nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		authorized = r
	})).ServeHTTP(buf, r)
	if authorized == nil {
		return nil, buf.Status()
	}

	claims, ok := authorized.Context().Value(oauth.ClaimsContext).(map[string]string)
	if !ok {
		return nil, http.StatusUnauthorized
	}
	id, err := strconv.ParseInt(claims["id"], 10, 64)
	if err != nil {
		return nil, http.StatusUnauthorized
	}
	identity := &model.Identity{ID: id, Name: claims["name"], Email: claims["email"]}
	return authorized.WithContext(context.WithValue(authorized.Context(), identityKey{}, identity)), 0
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorized, status := authorize(secret, r)
			if authorized == nil {
				httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "auth.bearer", "authentication required (token check returned %d)", status)
				return
			}
			next.ServeHTTP(w, authorized)
		})
	}
}

// OptionalAuth identifies the user when a valid bearer token is given, and
// lets the request through as a guest otherwise.
func OptionalAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			authorized, status := authorize(secret, r)
			if authorized == nil {
				log.Debugf("auth.optional: token rejected (%d), continuing as guest", status)
				r.Header.Del("Authorization")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, authorized)
		})
	}
}
