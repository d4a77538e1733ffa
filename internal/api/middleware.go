package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"umrahlink/internal/session"
)

// SessionAuth verifies the gateway session and attaches it to the request context.
//
// The token is read from:
// - Authorization: Bearer <JWT>
// - the session cookie set at login
func SessionAuth(issuer session.Issuer, cookieName string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				if c, err := r.Cookie(cookieName); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "missing session token")
				return
			}

			s, err := issuer.Verify(token)
			if err != nil {
				log.Debug("session rejected", zap.Error(err))
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid session token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), &s)))
		})
	}
}

func BearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}
