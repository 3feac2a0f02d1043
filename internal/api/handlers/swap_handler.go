package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isdelr/rewear-be/internal/models"
	"github.com/isdelr/rewear-be/internal/services"
)

// SwapHandler handles HTTP requests for swaps.
type SwapHandler struct {
	service services.SwapServiceProvider
}

// NewSwapHandler creates a new SwapHandler.
func NewSwapHandler(service services.SwapServiceProvider) *SwapHandler {
	return &SwapHandler{service: service}
}

// ProposePayload opens a swap.
type ProposePayload struct {
	ItemID      string `json:"item_id"`
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message" validate:"max=1000"`
}

// Propose handles a new swap proposal by the caller.
func (h *SwapHandler) Propose(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var payload ProposePayload
	if err := decodeAndValidate(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	// item_id presence is checked by the service, after the self-swap rule
	swap, err := h.service.Propose(r.Context(), actor.ID, services.ProposeInput{
		ItemID:      payload.ItemID,
		RecipientID: payload.RecipientID,
		Message:     payload.Message,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, swap)
}

// GetAll handles listing the caller's swaps.
func (h *SwapHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	filter := models.SwapFilter{
		Role:   r.URL.Query().Get("role"),
		Status: r.URL.Query().Get("status"),
	}
	switch filter.Status {
	case "", models.SwapProposed, models.SwapAccepted, models.SwapRejected, models.SwapCancelled, models.SwapCompleted:
	default:
		WriteError(w, r, fmt.Errorf("%w: unknown status %q", services.ErrValidation, filter.Status))
		return
	}

	swaps, err := h.service.ListSwaps(r.Context(), actor.ID, filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, swaps)
}

// Get handles retrieving one swap.
func (h *SwapHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	swap, err := h.service.GetSwap(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, swap)
}

// Accept handles the recipient accepting a proposal.
func (h *SwapHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Accept)
}

// Reject handles the recipient declining a proposal.
func (h *SwapHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

// Cancel handles the proposer withdrawing a proposal.
func (h *SwapHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

type swapAction func(ctx context.Context, actor services.Actor, id string) (models.Swap, error)

func (h *SwapHandler) transition(w http.ResponseWriter, r *http.Request, action swapAction) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	swap, err := action(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, swap)
}
