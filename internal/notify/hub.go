package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event is a server push delivered to the clients of a session. A zero
// Session addresses every connected client.
type Event struct {
	Type    string    `json:"type"`
	Session uuid.UUID `json:"-"`
	Payload any       `json:"payload,omitempty"`
}

// Hub maintains the set of active clients grouped by session and fans
// events out to them.
type Hub struct {
	sessions map[uuid.UUID]map[*Client]bool

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions:   make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "notify_hub"),
	}
}

// Publish queues an event. A full queue drops the event.
func (h *Hub) Publish(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			slog.String("event_type", event.Type),
			slog.String("session", event.Session.String()))
	}
}

// Publisher binds Publish to one session.
func (h *Hub) Publisher(session uuid.UUID) func(Event) {
	return func(e Event) {
		e.Session = session
		h.Publish(e)
	}
}

// Run is the hub event loop. It returns when ctx is done, after closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Register adds a client.
func (h *Hub) Register(ctx context.Context, client *Client) {
	select {
	case h.register <- client:
	case <-ctx.Done():
		client.closeSend()
	case <-h.done:
		client.closeSend()
	}
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[client.session] == nil {
		h.sessions[client.session] = make(map[*Client]bool)
	}
	h.sessions[client.session][client] = true
	h.logger.Info("client registered", slog.String("session", client.session.String()))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	if clients, ok := h.sessions[client.session]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.sessions, client.session)
			}
		}
	}
	client.closeSend()
}

func (h *Hub) deliver(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Client
	if event.Session == uuid.Nil {
		for _, clients := range h.sessions {
			for c := range clients {
				targets = append(targets, c)
			}
		}
	} else {
		for c := range h.sessions[event.Session] {
			targets = append(targets, c)
		}
	}

	for _, client := range targets {
		if !client.trySend(event) {
			h.logger.Warn("client send buffer full, unregistering", slog.String("session", client.session.String()))
			h.removeLocked(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for c := range clients {
			h.removeLocked(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}
