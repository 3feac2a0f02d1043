package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isdelr/rewear-be/internal/models"
	"github.com/isdelr/rewear-be/internal/services"
)

// AdminHandler handles the moderation and reporting endpoints.
type AdminHandler struct {
	service services.AdminServiceProvider
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service services.AdminServiceProvider) *AdminHandler {
	return &AdminHandler{service: service}
}

// PendingItems lists the moderation queue.
func (h *AdminHandler) PendingItems(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", services.DefaultItemLimit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	items, err := h.service.PendingItems(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// ApproveItem publishes a pending item.
func (h *AdminHandler) ApproveItem(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.ApproveItem)
}

// RejectItem turns a pending item down.
func (h *AdminHandler) RejectItem(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.RejectItem)
}

func (h *AdminHandler) moderate(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, actor services.Actor, id string) (models.Item, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	item, err := decide(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// ListUsers returns every account.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// DeactivateUser soft-deletes an account.
func (h *AdminHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.service.DeactivateUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats returns the dashboard counters.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
