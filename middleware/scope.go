package middleware

import (
	"net/http"

	"github.com/KanavDutta/keyfence/gate"
)

// RequireScope rejects admitted requests whose key lacks scope with 403.
// It must run after Admission.Middleware.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checkScope(w, r, scope) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	info, ok := gate.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "request was not admitted"})
		return false
	}
	if !info.HasScope(scope) {
		writeError(w, http.StatusForbidden, ErrorResponse{Error: "insufficient_scope", Message: "API key lacks scope " + scope})
		return false
	}
	return true
}
