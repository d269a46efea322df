package middleware

import (
	"net/http"
	"strings"

	"github.com/amiskov/authgate/pkg/session"
)

type (
	ISessionManager interface {
		Resolve(w http.ResponseWriter, r *http.Request) *session.Store
	}
	Sessions struct {
		SessionManager ISessionManager
		skipPrefixes   []string
	}
)

// NewSessionMiddleware attaches the client's session store to every request
// except those under skipPrefixes.
func NewSessionMiddleware(sm ISessionManager, skipPrefixes ...string) *Sessions {
	return &Sessions{
		SessionManager: sm,
		skipPrefixes:   skipPrefixes,
	}
}

func (s Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range s.skipPrefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				next.ServeHTTP(w, r)
				return
			}
		}

		st := s.SessionManager.Resolve(w, r)
		ctx := session.WithStore(r.Context(), st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
