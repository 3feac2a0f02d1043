package handlers

import (
	"net/http"

	"github.com/isdelr/rewear-be/internal/services"
)

// EventHandler handles HTTP requests related to the activity log.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent handles the request to get recent activity.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", services.DefaultEventLimit)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	events, err := h.service.GetRecentEvents(r.Context(), limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}
