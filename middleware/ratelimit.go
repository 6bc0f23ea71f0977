package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/gate"
	"github.com/KanavDutta/keyfence/keys"
)

// Admitter is the admission decision the middleware enforces.
type Admitter interface {
	Admit(ctx context.Context, credential string, meta gate.RequestMeta) (*gate.Result, error)
}

// Admission provides HTTP middleware for API key admission control
type Admission struct {
	gate    Admitter
	extract CredentialExtractor
	log     zerolog.Logger
}

// Config for creating the admission middleware
type Config struct {
	Gate      Admitter            // Required
	Extractor CredentialExtractor // Optional: defaults to ExtractCredential()
	Logger    *zerolog.Logger     // Optional
}

// ErrorResponse is the JSON body of every rejection.
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

// NewAdmission creates the admission middleware.
func NewAdmission(config Config) *Admission {
	if config.Extractor == nil {
		config.Extractor = ExtractCredential()
	}
	log := zerolog.Nop()
	if config.Logger != nil {
		log = config.Logger.With().Str("component", "admission-middleware").Logger()
	}

	return &Admission{
		gate:    config.Gate,
		extract: config.Extractor,
		log:     log,
	}
}

// Middleware wraps an http.Handler with admission control.
// Admitted requests carry gate.Info in their context.
func (a *Admission) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admitted, ok := a.admit(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, admitted)
	})
}

// admit runs the gate for r. On rejection it writes the response and returns false.
func (a *Admission) admit(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	res, err := a.gate.Admit(r.Context(), a.extract(r), gate.RequestMeta{
		Method: r.Method,
		Path:   r.URL.Path,
		IP:     ClientIP(r),
	})
	if err != nil {
		var authErr *keys.AuthError
		switch {
		case errors.As(err, &authErr):
			w.Header().Set("WWW-Authenticate", keys.Scheme)
			writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: authErr.Reason})
		case errors.Is(err, keys.ErrUnauthorized):
			w.Header().Set("WWW-Authenticate", keys.Scheme)
			writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "invalid credential"})
		default:
			a.log.Error().Err(err).Str("path", r.URL.Path).Msg("admission failed")
			writeError(w, http.StatusServiceUnavailable, ErrorResponse{
				Error:   "service_unavailable",
				Message: "API key verification is temporarily unavailable",
			})
		}
		return nil, false
	}

	setRateLimitHeaders(w, res)

	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(res.RetryAfterSeconds, 10))
		writeError(w, http.StatusTooManyRequests, ErrorResponse{
			Error:             "rate_limit_exceeded",
			Message:           "Too many requests. Please try again later.",
			RetryAfterSeconds: res.RetryAfterSeconds,
		})
		return nil, false
	}

	ctx := gate.NewContext(r.Context(), gate.InfoFromResult(res))
	return r.WithContext(ctx), true
}

// setRateLimitHeaders adds X-RateLimit-*; Remaining is left out when unknown.
func setRateLimitHeaders(w http.ResponseWriter, res *gate.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit.Limit, 10))
	if !math.IsInf(res.Remaining, 0) && !math.IsNaN(res.Remaining) {
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(math.Floor(res.Remaining)), 10))
	}
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
