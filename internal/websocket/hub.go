package websocket

import (
	"context"
	"encoding/json"

	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/models"
)

// publishBuffer bounds the queue of pending publications. Publish drops
// messages once it is full.
const publishBuffer = 256

type publication struct {
	userID string
	data   []byte
}

type reply struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active clients and delivers messages to the
// channel of each user. All client state is owned by the Run goroutine.
type Hub struct {
	// A map of user IDs to the set of connections of that user.
	channels map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	publish    chan publication
	replies    chan reply
	done       chan struct{}

	onCount func(int)
	log     *logger.Logger
}

// NewHub creates a new Hub. onCount, if not nil, is called with the number
// of connected clients whenever it changes.
func NewHub(log *logger.Logger, onCount func(int)) *Hub {
	return &Hub{
		channels:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan publication, publishBuffer),
		replies:    make(chan reply, publishBuffer),
		done:       make(chan struct{}),
		onCount:    onCount,
		log:        log.Component("websocket"),
	}
}

// Run starts the Hub's message processing loop. It returns when ctx is
// cancelled, after closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.channels {
				for client := range clients {
					close(client.Send)
				}
			}
			h.channels = map[string]map[*Client]bool{}
			h.log.Info().Msg("hub stopped")
			return

		case client := <-h.register:
			if h.channels[client.UserID] == nil {
				h.channels[client.UserID] = make(map[*Client]bool)
			}
			h.channels[client.UserID][client] = true
			h.log.Info().Str("user_id", client.UserID).Int("total_clients", h.count()).Msg("client connected")
			h.reportCount()

		case client := <-h.unregister:
			if h.remove(client) {
				h.log.Info().Str("user_id", client.UserID).Int("total_clients", h.count()).Msg("client disconnected")
				h.reportCount()
			}

		case p := <-h.publish:
			for client := range h.channels[p.userID] {
				h.deliver(client, p.data)
			}

		case r := <-h.replies:
			if h.channels[r.client.UserID][r.client] {
				h.deliver(r.client, r.data)
			}
		}
	}
}

// deliver hands data to the client's send queue, dropping clients that
// cannot keep up.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.log.Warn().Str("user_id", client.UserID).Msg("dropping slow client")
		h.remove(client)
		h.reportCount()
	}
}

func (h *Hub) remove(client *Client) bool {
	clients, ok := h.channels[client.UserID]
	if !ok || !clients[client] {
		return false
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.channels, client.UserID)
	}
	close(client.Send)
	return true
}

func (h *Hub) count() int {
	n := 0
	for _, clients := range h.channels {
		n += len(clients)
	}
	return n
}

func (h *Hub) reportCount() {
	if h.onCount != nil {
		h.onCount(h.count())
	}
}

// Register adds a client to its user's channel.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client. It is safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues data for every connection of userID. It never blocks; the
// message is dropped when the queue is full or the hub has stopped.
func (h *Hub) Publish(userID string, data []byte) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.publish <- publication{userID: userID, data: data}:
	default:
		h.log.Warn().Str("user_id", userID).Msg("publish queue full, dropping message")
	}
}

// NotifySwap sends a swap_update message to each distinct user.
func (h *Hub) NotifySwap(event models.SwapEvent, userIDs ...string) {
	data := NewMessage(ActionSwapUpdate, event)
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		h.Publish(id, data)
	}
}

// HandleMessage processes a message received from a client.
func (h *Hub) HandleMessage(client *Client, message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.log.Debug().Err(err).Str("user_id", client.UserID).Msg("error decoding websocket message")
		h.replyTo(client, NewErrorMessage("Invalid message"))
		return
	}

	switch msg.Action {
	case ActionPing:
		h.replyTo(client, NewMessage(ActionPong, nil))
	default:
		h.log.Debug().Str("action", msg.Action).Msg("unknown websocket action received")
		h.replyTo(client, NewErrorMessage("Unknown action: "+msg.Action))
	}
}

func (h *Hub) replyTo(client *Client, data []byte) {
	select {
	case h.replies <- reply{client: client, data: data}:
	case <-h.done:
	default:
	}
}
