package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/storyforge/storyforge-api/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// sendBuffer bounds how far a slow client may fall behind before its
	// connection is dropped.
	sendBuffer = 32
)

// connection is one websocket client. accountID is set once the
// authenticate handshake succeeds; until then the connection is not
// registered and receives no pushes.
//
// All socket writes go through the send channel and the write pump.
// Closing the channel (guarded by mu, at most once) flushes anything
// still buffered and then closes the socket.
type connection struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	accountID     uuid.UUID
	authenticated bool

	mu     sync.Mutex
	closed bool
}

// readPump processes incoming messages until the connection closes. It
// runs on its own goroutine, one per connection.
func (c *connection) readPump(log *slog.Logger) {
	defer c.hub.unregister(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Protocol violation, but not fatal: reply and keep reading.
			c.reply(serverMessage{Type: msgError, Message: "malformed message"})
			continue
		}

		if !c.handleMessage(log, msg) {
			return
		}
	}
}

// handleMessage processes one decoded client message. Returns false when
// the connection must close (authentication failure).
func (c *connection) handleMessage(log *slog.Logger, msg clientMessage) bool {
	if !c.authenticated {
		if msg.Type != msgAuthenticate {
			c.reply(serverMessage{Type: msgError, Message: "authentication required"})
			return true
		}
		return c.authenticate(log, msg.Token)
	}

	switch msg.Type {
	case msgAuthenticate:
		// Already authenticated; acknowledge idempotently.
		c.reply(serverMessage{Type: msgAuthenticated, AccountID: c.accountID})
	case msgSubscribe:
		// Advisory only: pushes are account-scoped regardless of
		// subscriptions.
		c.reply(serverMessage{Type: msgSubscribed, TaskType: msg.TaskType})
	case msgPing:
		c.reply(serverMessage{Type: msgPong})
	default:
		c.reply(serverMessage{Type: msgError, Message: "unknown message type"})
	}
	return true
}

// authenticate verifies the token and registers the connection under the
// resulting account. A failed handshake replies with an error and closes
// the connection; the buffered reply is flushed before the close.
func (c *connection) authenticate(log *slog.Logger, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accountID, err := c.hub.verifier.VerifyToken(ctx, token)
	if err != nil {
		log.Info("websocket authentication failed", "error", err)
		c.reply(serverMessage{Type: msgError, Message: "authentication failed"})
		return false
	}

	c.accountID = accountID
	c.authenticated = true
	c.hub.register(c)

	c.reply(serverMessage{Type: msgAuthenticated, AccountID: accountID})
	c.push(events.TaskEvent{Type: events.EventConnected, Timestamp: time.Now().UTC()})

	log.Debug("websocket authenticated", "account_id", accountID)
	return true
}

// reply queues a protocol reply for the write pump.
func (c *connection) reply(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// push queues a lifecycle event for the write pump.
func (c *connection) push(event events.TaskEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue hands data to the write pump without blocking. A full buffer
// means the client cannot keep up; the connection is dropped rather than
// stalling the sender.
func (c *connection) enqueue(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	select {
	case c.send <- data:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.hub.dropSlow(c)
	}
}

// closeSend closes the send channel exactly once. The write pump drains
// what is buffered, writes a close frame, and closes the socket.
func (c *connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump serializes all writes to the websocket and keeps the
// connection alive with periodic pings. It owns closing the socket.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
