package handlers

import (
	"net/http"
	"time"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Health reports that the process is serving. It does not
// touch the database.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "success",
		Message:   "API is running",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
