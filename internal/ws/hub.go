package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/storyforge/storyforge-api/internal/events"
	"github.com/storyforge/storyforge-api/internal/service/auth"
)

// Hub owns the registry of live websocket connections keyed by account
// and fans task lifecycle events out to them. It implements
// events.Notifier, so the task service and scheduler push through it
// without knowing about websockets.
type Hub struct {
	verifier auth.TokenVerifier
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[uuid.UUID]map[*connection]struct{}
}

// Ensure Hub implements events.Notifier
var _ events.Notifier = (*Hub)(nil)

// NewHub creates a Hub that authenticates connections with the given
// verifier.
func NewHub(verifier auth.TokenVerifier, logger *slog.Logger) *Hub {
	return &Hub{
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[uuid.UUID]map[*connection]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket connection and runs its
// read and write pumps. The connection receives no pushes until its
// authenticate handshake succeeds.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}

	go conn.writePump()
	go conn.readPump(h.logger.With("remote_addr", r.RemoteAddr))
}

// Notify delivers one event to every live connection of the account.
// Best effort: an account with no connections is a logged no-op, and a
// connection that cannot keep up is dropped, never blocked on.
func (h *Hub) Notify(ctx context.Context, accountID uuid.UUID, event events.TaskEvent) {
	h.mu.Lock()
	set := h.conns[accountID]
	targets := make([]*connection, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		h.logger.Debug("no live connections for event",
			"account_id", accountID,
			"event_type", event.Type)
		return
	}

	for _, c := range targets {
		c.push(event)
	}
}

// register adds an authenticated connection to its account's set.
func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[c.accountID]
	if !ok {
		set = make(map[*connection]struct{})
		h.conns[c.accountID] = set
	}
	set[c] = struct{}{}
}

// unregister removes a connection from the registry, dropping the account
// entry when its set becomes empty, and shuts the connection down. Safe
// to call more than once.
func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	if set, ok := h.conns[c.accountID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.accountID)
		}
	}
	h.mu.Unlock()

	c.closeSend()
}

// dropSlow disconnects a client whose send buffer filled up.
func (h *Hub) dropSlow(c *connection) {
	h.logger.Warn("dropping slow websocket client",
		"account_id", c.accountID)
	h.unregister(c)
}

// ConnectionCount reports how many live connections an account has.
func (h *Hub) ConnectionCount(accountID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[accountID])
}

// Close disconnects every registered connection. Called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*connection
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.conns = make(map[uuid.UUID]map[*connection]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.closeSend()
	}
}
