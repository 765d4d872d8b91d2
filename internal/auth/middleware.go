package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/sales-report/internal/common"
)

// Middleware guards report routes with bearer token verification.
type Middleware struct {
	Verifier *Verifier
}

// RequireAuth rejects requests without a valid bearer token.
// A nil Verifier disables the check.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	if m.Verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="reports"`)
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
			return
		}
		subject, err := m.Verifier.Verify(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="reports", error="invalid_token"`)
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithSubject(r.Context(), subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
