package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// Command budget per client.
	commandRate  = rate.Limit(5)
	commandBurst = 10
)

// Command is a message sent by the browser.
type Command struct {
	Type    string          `json:"type" validate:"required,max=32"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandHandler executes commands of one session.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd Command) error
}

// CommandFunc adapts a function to CommandHandler.
type CommandFunc func(ctx context.Context, cmd Command) error

func (f CommandFunc) HandleCommand(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

var commandValidator = validator.New()

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Event
	session uuid.UUID
	handler CommandHandler
	limiter *rate.Limiter
	logger  *slog.Logger

	// sendMu guards send against a close racing a send.
	sendMu sync.Mutex
	closed bool
}

// NewClient wires a connection to the hub for session.
func NewClient(hub *Hub, conn *websocket.Conn, session uuid.UUID, handler CommandHandler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan Event, 64),
		session: session,
		handler: handler,
		limiter: rate.NewLimiter(commandRate, commandBurst),
		logger:  logger.With("session", session.String()),
	}
}

// Session returns the session id of the client.
func (c *Client) Session() uuid.UUID { return c.session }

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues event without blocking. It reports false when the queue is
// full or already closed.
func (c *Client) trySend(event Event) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// ReadPump reads commands until the connection fails or ctx ends. It runs in
// its own goroutine and unregisters the client on return.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", slog.Any("error", err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", slog.Any("error", err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.handle(ctx, message)
	}
}

func (c *Client) handle(ctx context.Context, message []byte) {
	if !c.limiter.Allow() {
		c.logger.Warn("command rate exceeded, dropping message")
		return
	}
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.logger.Warn("failed to unmarshal command", slog.Any("error", err))
		return
	}
	if err := commandValidator.Struct(cmd); err != nil {
		c.logger.Warn("invalid command", slog.Any("error", err))
		return
	}
	if cmd.Type == "ping" {
		c.trySend(Event{Type: "pong", Session: c.session})
		return
	}
	if c.handler == nil {
		return
	}
	if err := c.handler.HandleCommand(ctx, cmd); err != nil {
		c.logger.Warn("command failed", slog.String("type", cmd.Type), slog.Any("error", err))
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", slog.Any("error", err))
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write message", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", slog.Any("error", err))
				return
			}
		}
	}
}

func (c *Client) writeJSON(event Event) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
