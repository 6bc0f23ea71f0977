package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/KanavDutta/keyfence/gate"
)

// Response is a generic JSON response structure
type Response struct {
	Message   string      `json:"message"`
	KeyID     string      `json:"keyId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Health returns a health check endpoint
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Message:   "keyfence demo server is healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Search needs the "read" scope.
func Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		query = "all"
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "search results",
		KeyID:   keyID(r),
		Data: map[string]interface{}{
			"query":   query,
			"results": []string{"result1", "result2", "result3"},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Create needs the "write" scope.
func Create(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, Response{
		Message: "resource created",
		KeyID:   keyID(r),
		Data: map[string]interface{}{
			"id":      "12345",
			"created": true,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func keyID(r *http.Request) string {
	info, _ := gate.FromContext(r.Context())
	return info.KeyID
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
