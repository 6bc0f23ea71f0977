package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/analytics"
	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/gate"
	"github.com/KanavDutta/keyfence/keys"
)

// Analytics window bounds for GET /analytics/{keyId}.
const (
	DefaultAnalyticsDays = 7
	MaxAnalyticsDays     = 90
)

// KeyService is the key lifecycle the admin endpoints drive.
type KeyService interface {
	Create(ctx context.Context, params keys.CreateParams) (*keys.Issued, error)
	Rotate(ctx context.Context, keyID string) (*keys.Issued, error)
	Revoke(ctx context.Context, keyID string) (*keys.Record, error)
	List(ctx context.Context, ownerID string) ([]keys.Record, error)
}

// Handler serves the key admin, analytics and whoami endpoints
type Handler struct {
	keys      KeyService
	analytics analytics.Store
	now       func() time.Time
	log       zerolog.Logger
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Keys      KeyService       // Required
	Analytics analytics.Store  // Required for /analytics
	Clock     func() time.Time // Optional: defaults to time.Now
	Logger    *zerolog.Logger  // Optional
}

// NewHandler creates a new API handler
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "api").Logger()
	}
	return &Handler{
		keys:      cfg.Keys,
		analytics: cfg.Analytics,
		now:       cfg.Clock,
		log:       log,
	}
}

// KeyResponse describes a key. Secret is only present on create and rotate.
type KeyResponse struct {
	KeyID     string         `json:"keyId"`
	Secret    string         `json:"secret,omitempty"`
	OwnerID   string         `json:"ownerId"`
	Status    keys.Status    `json:"status"`
	Scopes    []string       `json:"scopes"`
	RateLimit core.RateLimit `json:"rateLimit"`
	CreatedAt time.Time      `json:"createdAt"`
	RotatedAt *time.Time     `json:"rotatedAt,omitempty"`
}

// ListResponse is the body of GET /keys.
type ListResponse struct {
	Keys []keys.Record `json:"keys"`
}

// AnalyticsResponse is the body of GET /analytics/{keyId}.
type AnalyticsResponse struct {
	KeyID string `json:"keyId"`
	analytics.Summary
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateKey handles POST /keys
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var params keys.CreateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	issued, err := h.keys.Create(r.Context(), params)
	if err != nil {
		h.sendKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issuedResponse(issued))
}

// ListKeys handles GET /keys?ownerId=
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "missing_owner_id", "ownerId is required")
		return
	}

	records, err := h.keys.List(r.Context(), ownerID)
	if err != nil {
		h.sendKeyError(w, err)
		return
	}
	if records == nil {
		records = []keys.Record{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Keys: records})
}

// RotateKey handles POST /keys/{keyId}/rotate
func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	issued, err := h.keys.Rotate(r.Context(), r.PathValue("keyId"))
	if err != nil {
		h.sendKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issuedResponse(issued))
}

// RevokeKey handles POST /keys/{keyId}/revoke
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	rec, err := h.keys.Revoke(r.Context(), r.PathValue("keyId"))
	if err != nil {
		h.sendKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

// KeyAnalytics handles GET /analytics/{keyId}?days=N
func (h *Handler) KeyAnalytics(w http.ResponseWriter, r *http.Request) {
	keyID := r.PathValue("keyId")

	days := DefaultAnalyticsDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxAnalyticsDays {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be between 1 and "+strconv.Itoa(MaxAnalyticsDays))
			return
		}
		days = n
	}

	now := h.now()
	rows, err := h.analytics.Range(r.Context(), []string{keyID}, analytics.Since(days, now))
	if err != nil {
		h.log.Error().Err(err).Str("key_id", keyID).Msg("analytics query failed")
		writeError(w, http.StatusServiceUnavailable, "analytics_unavailable", "Analytics are temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResponse{
		KeyID:   keyID,
		Summary: analytics.Summarize(rows, days, now),
	})
}

// Whoami handles GET /v1/whoami behind the admission middleware.
func (h *Handler) Whoami(w http.ResponseWriter, r *http.Request) {
	info, ok := gate.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "request was not admitted")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func issuedResponse(issued *keys.Issued) KeyResponse {
	resp := recordResponse(issued.Record)
	resp.KeyID = issued.KeyID
	resp.Secret = issued.Secret
	return resp
}

func recordResponse(rec *keys.Record) KeyResponse {
	if rec == nil {
		return KeyResponse{}
	}
	return KeyResponse{
		KeyID:     rec.KeyID,
		OwnerID:   rec.OwnerID,
		Status:    rec.Status,
		Scopes:    rec.Scopes,
		RateLimit: rec.RateLimit,
		CreatedAt: rec.CreatedAt,
		RotatedAt: rec.RotatedAt,
	}
}

func (h *Handler) sendKeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, keys.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, keys.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "not_found", "API key not found")
	case errors.Is(err, keys.ErrKeyStoreUnavailable):
		h.log.Error().Err(err).Msg("key store unavailable")
		writeError(w, http.StatusServiceUnavailable, "key_store_unavailable", "Key store is temporarily unavailable")
	default:
		h.log.Error().Err(err).Msg("key operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
