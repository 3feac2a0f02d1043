package handlers

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/isdelr/rewear-be/internal/auth"
	"github.com/isdelr/rewear-be/internal/logger"
	ws "github.com/isdelr/rewear-be/internal/websocket"
)

// WebSocketHandler upgrades authenticated HTTP connections and joins them
// to the caller's notification channel.
type WebSocketHandler struct {
	hub      *ws.Hub
	tokens   *auth.TokenManager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler accepting browser
// connections from allowedOrigins ("*" allows any).
func NewWebSocketHandler(hub *ws.Hub, tokens *auth.TokenManager, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		// same-origin requests are always fine
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// Serve validates the credential, then handles the WebSocket connection.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Validate(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an error response
		logger.FromContext(r.Context()).Warn().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.hub.HandleMessage)
}
