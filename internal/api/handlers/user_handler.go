package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/isdelr/rewear-be/internal/auth"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/models"
	"github.com/isdelr/rewear-be/internal/services"
)

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service       services.UserServiceProvider
	tokens        *auth.TokenManager
	secureCookies bool
}

// NewUserHandler creates a new UserHandler. secureCookies marks the token
// cookie Secure, which production deployments behind TLS want.
func NewUserHandler(service services.UserServiceProvider, tokens *auth.TokenManager, secureCookies bool) *UserHandler {
	return &UserHandler{service: service, tokens: tokens, secureCookies: secureCookies}
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AuthPayload defines the structure for login requests.
type AuthPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfilePayload holds the editable profile fields.
type ProfilePayload struct {
	Username       *string `json:"username" validate:"omitempty,username"`
	City           *string `json:"city" validate:"omitempty,max=100"`
	Bio            *string `json:"bio" validate:"omitempty,max=500"`
	SwapPreference *string `json:"swap_preference" validate:"omitempty,oneof=swap sale both"`
}

// PasswordPayload is a password change request.
type PasswordPayload struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := decodeAndValidate(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload.Email, payload.Username, payload.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login handles user authentication and JWT generation.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := decodeAndValidate(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		logger.FromContext(r.Context()).Warn().Err(err).Str("email", payload.Email).Msg("failed authentication attempt")
		WriteError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

func (h *UserHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user models.User) {
	token, expiresAt, err := h.tokens.IssueToken(user)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})

	respondJSON(w, status, AuthResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// GetMe retrieves the currently authenticated user.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.service.GetUserByID(r.Context(), actor.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateMe handles updating the caller's profile.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var payload ProfilePayload
	if err := decodeAndValidate(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), actor.ID, services.ProfileUpdate{
		Username:       payload.Username,
		City:           payload.City,
		Bio:            payload.Bio,
		SwapPreference: payload.SwapPreference,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// ChangePassword handles changing the caller's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var payload PasswordPayload
	if err := decodeAndValidate(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.service.UpdatePassword(r.Context(), actor.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Password updated successfully"})
}

// DeleteMe deactivates the caller's account and clears the token cookie.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.service.Deactivate(r.Context(), actor, actor.ID); err != nil {
		WriteError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
}

// Get handles retrieving the public profile of a user.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user.Public())
}
