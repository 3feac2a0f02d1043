package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/isdelr/rewear-be/internal/models"
	"github.com/isdelr/rewear-be/internal/services"
)

// ItemHandler handles HTTP requests for item listings.
type ItemHandler struct {
	service services.ItemServiceProvider
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(service services.ItemServiceProvider) *ItemHandler {
	return &ItemHandler{service: service}
}

// ItemPayload is a new listing.
type ItemPayload struct {
	Title       string   `json:"title" validate:"required,max=120"`
	Description string   `json:"description" validate:"max=2000"`
	Category    string   `json:"category" validate:"max=50"`
	Size        string   `json:"size" validate:"max=20"`
	Condition   string   `json:"condition" validate:"omitempty,oneof=new like_new good fair"`
	Tags        []string `json:"tags" validate:"max=10,dive,max=30"`
	Images      []string `json:"images" validate:"max=5,dive,url,max=2048"`
}

// ItemUpdatePayload carries the fields to change; absent fields stay as they are.
type ItemUpdatePayload struct {
	Title       *string   `json:"title" validate:"omitempty,max=120"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Category    *string   `json:"category" validate:"omitempty,max=50"`
	Size        *string   `json:"size" validate:"omitempty,max=20"`
	Condition   *string   `json:"condition" validate:"omitempty,oneof=new like_new good fair"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=10,dive,max=30"`
	Images      *[]string `json:"images" validate:"omitempty,max=5,dive,url,max=2048"`
	Status      *string   `json:"status" validate:"omitempty,oneof=pending approved rejected swapped"`
}

// Create handles listing a new item for the caller.
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var payload ItemPayload
	if err := decodeAndValidate(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), actor.ID, services.ItemInput{
		Title:       payload.Title,
		Description: payload.Description,
		Category:    payload.Category,
		Size:        payload.Size,
		Condition:   payload.Condition,
		Tags:        payload.Tags,
		Images:      payload.Images,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// GetAll handles listing items with optional filters.
func (h *ItemHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	filter, err := itemFilterFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func itemFilterFrom(r *http.Request) (models.ItemFilter, error) {
	q := r.URL.Query()
	filter := models.ItemFilter{
		Status:   q.Get("status"),
		OwnerID:  q.Get("owner_id"),
		Category: q.Get("category"),
		Query:    q.Get("q"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", services.DefaultItemLimit); err != nil {
		return models.ItemFilter{}, err
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		return models.ItemFilter{}, err
	}

	switch filter.Status {
	case "", models.ItemPending, models.ItemApproved, models.ItemRejected, models.ItemSwapped:
	default:
		return models.ItemFilter{}, fmt.Errorf("%w: unknown status %q", services.ErrValidation, filter.Status)
	}
	return filter, nil
}

// Get handles retrieving a single item.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItemByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// Update handles editing an item.
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var payload ItemUpdatePayload
	if err := decodeAndValidate(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	item, err := h.service.UpdateItem(r.Context(), actor, chi.URLParam(r, "id"), services.ItemUpdate{
		Title:       payload.Title,
		Description: payload.Description,
		Category:    payload.Category,
		Size:        payload.Size,
		Condition:   payload.Condition,
		Tags:        payload.Tags,
		Images:      payload.Images,
		Status:      payload.Status,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// Delete handles removing an item.
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.service.DeleteItem(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
