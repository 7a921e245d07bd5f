package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type userKey struct{}

// authenticate resolves the bearer token (or ?token= for websockets) to a
// configured user and stores it on the request context.
func (s *Server) authenticate(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, ErrMissingToken)
			return
		}
		user, ok := s.config.Users[token]
		if !ok {
			s.logger.Printf("unknown token from %s", getClientIP(r))
			writeError(w, ErrUnknownToken)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, user)
		next(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func userFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// requestLevel provides the permission level of the authenticated user.
type requestLevel struct{}

func (requestLevel) CurrentLevel(ctx context.Context) (string, error) {
	u, ok := userFrom(ctx)
	if !ok {
		return "", fmt.Errorf("no authenticated user: %w", ErrMissingToken)
	}
	return u.Level, nil
}
