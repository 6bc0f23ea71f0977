package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RouterConfig wires the HTTP surface of the server.
type RouterConfig struct {
	Handler    *Handler
	Admission  func(http.Handler) http.Handler // Required: wraps the protected /v1 routes
	Stats      http.Handler
	Prometheus http.Handler
	Health     http.Handler
	AdminToken string // Empty disables the admin check
}

// NewRouter registers every route on a ServeMux.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	admin := AdminAuth(cfg.AdminToken)
	h := cfg.Handler

	mux.Handle("POST /keys", admin(http.HandlerFunc(h.CreateKey)))
	mux.Handle("GET /keys", admin(http.HandlerFunc(h.ListKeys)))
	mux.Handle("POST /keys/{keyId}/rotate", admin(http.HandlerFunc(h.RotateKey)))
	mux.Handle("POST /keys/{keyId}/revoke", admin(http.HandlerFunc(h.RevokeKey)))
	mux.Handle("GET /analytics/{keyId}", admin(http.HandlerFunc(h.KeyAnalytics)))

	mux.Handle("GET /v1/whoami", cfg.Admission(http.HandlerFunc(h.Whoami)))

	if cfg.Stats != nil {
		mux.Handle("GET /stats", cfg.Stats)
		mux.HandleFunc("GET /dashboard", Dashboard)
	}
	if cfg.Prometheus != nil {
		mux.Handle("GET /metrics", cfg.Prometheus)
	}
	if cfg.Health != nil {
		mux.Handle("GET /health", cfg.Health)
	}
	return mux
}

// AdminAuth requires "Authorization: Bearer <token>". An empty token lets every request through.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
