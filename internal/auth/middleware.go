package auth

import (
	"net/http"
	"strings"
)

// Middleware puts the caller's bearer token into the request context, so
// the engine's calls for this request carry it. A valid token also becomes
// the session token used by background work. Requests without a usable
// token are refused.
func Middleware(session *Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if !session.Valid(token) {
				session.ExpireToken(token)
				unauthorized(w)
				return
			}
			session.Bind(token)
			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"message":"unauthorized"}`))
}
