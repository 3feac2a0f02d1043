package websocket

import "encoding/json"

// Actions carried in Message.Action.
const (
	ActionSwapUpdate = "swap_update"
	ActionPing       = "ping"
	ActionPong       = "pong"
	ActionError      = "error"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

// NewMessage encodes a message for the wire.
func NewMessage(action string, payload any) []byte {
	data, err := json.Marshal(Message{Action: action, Payload: payload})
	if err != nil {
		// payloads are plain structs and maps; fall back to the bare action
		data, _ = json.Marshal(Message{Action: action})
	}
	return data
}

// NewErrorMessage creates an error message for the client.
func NewErrorMessage(message string) []byte {
	return NewMessage(ActionError, map[string]string{"message": message})
}
