package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/rewear-be/internal/auth"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/services"
)

// Errors raised by the HTTP layer itself.
var (
	ErrRouteNotFound    = errors.New("route not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrBadRequest       = errors.New("invalid request body")
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// errorMapping translates one error kind. An empty message means the
// error's own text is safe to show.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorTable is checked in order; the first errors.Is match wins. Anything
// unmatched is an internal error.
var errorTable = []errorMapping{
	{auth.ErrTokenMissing, http.StatusUnauthorized, "authorization_header_missing", "Authorization header is missing"},
	{auth.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "Token has expired"},
	{auth.ErrTokenInvalid, http.StatusUnauthorized, "invalid_token", "Signature verification failed"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden", "Forbidden"},

	{services.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{services.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden", ""},
	{services.ErrInvalidState, http.StatusConflict, "invalid_state", ""},
	{services.ErrConflict, http.StatusConflict, "conflict", ""},
	{services.ErrValidation, http.StatusBadRequest, "validation_error", ""},

	{ErrBadRequest, http.StatusBadRequest, "validation_error", ""},
	{ErrRouteNotFound, http.StatusNotFound, "", "Resource not found"},
	{ErrMethodNotAllowed, http.StatusMethodNotAllowed, "", "Method not allowed"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many requests"},
}

const internalErrorMessage = "Internal server error"

// lookupError returns the response for err.
func lookupError(err error) (int, ErrorResponse) {
	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = publicMessage(err, m.target)
		}
		return m.status, ErrorResponse{Status: "error", Message: message, Code: m.code}
	}
	return http.StatusInternalServerError, ErrorResponse{Status: "error", Message: internalErrorMessage}
}

// publicMessage turns "invalid state: swap is completed" into
// "Swap is completed"; a bare kind becomes its capitalized text.
func publicMessage(err, kind error) string {
	text := err.Error()
	if detail, ok := strings.CutPrefix(text, kind.Error()+": "); ok {
		text = detail
	}
	if text == "" {
		return ""
	}
	return strings.ToUpper(text[:1]) + text[1:]
}

// WriteError translates err through the error table. Internal errors are
// logged with detail and hidden from the caller.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := lookupError(err)
	log := logger.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request failed")
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// NotFound is the router's fallback for unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, ErrRouteNotFound)
}

// MethodNotAllowed is the router's fallback for unsupported methods.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, ErrMethodNotAllowed)
}
