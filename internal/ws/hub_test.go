package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge-api/internal/config"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/events"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/service/auth"
	"github.com/storyforge/storyforge-api/internal/ws"
)

type hubFixture struct {
	hub    *ws.Hub
	server *httptest.Server
	jwt    auth.JWTService
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-secret-at-least-32-characters-long",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	log, err := logger.Setup("error")
	require.NoError(t, err)

	hub := ws.NewHub(jwtService, log)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	return &hubFixture{hub: hub, server: server, jwt: jwtService}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *hubFixture) token(t *testing.T, accountID uuid.UUID) string {
	t.Helper()
	token, err := f.jwt.GenerateToken(context.Background(), accountID)
	require.NoError(t, err)
	return token
}

// connect dials and completes the authenticate handshake, consuming the
// authenticated and connected replies.
func (f *hubFixture) connect(t *testing.T, accountID uuid.UUID) *websocket.Conn {
	t.Helper()
	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "authenticate", "token": f.token(t, accountID)})

	reply := read(t, conn)
	require.Equal(t, "authenticated", reply["type"])

	pushed := read(t, conn)
	require.Equal(t, "connected", pushed["type"])
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubAuthenticate(t *testing.T) {
	f := newHubFixture(t)
	accountID := uuid.New()

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "authenticate", "token": f.token(t, accountID)})

	reply := read(t, conn)
	assert.Equal(t, "authenticated", reply["type"])
	assert.Equal(t, accountID.String(), reply["account_id"])

	pushed := read(t, conn)
	assert.Equal(t, "connected", pushed["type"])

	assert.Eventually(t, func() bool {
		return f.hub.ConnectionCount(accountID) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubAuthenticationFailureClosesConnection(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "authenticate", "token": "not-a-valid-token"})

	reply := read(t, conn)
	assert.Equal(t, "error", reply["type"])

	// The server closes after the error reply; the next read fails.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubRejectsMessagesBeforeAuthentication(t *testing.T) {
	f := newHubFixture(t)
	accountID := uuid.New()

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "ping"})

	reply := read(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["message"], "authentication required")

	// The connection survives and can still authenticate.
	send(t, conn, map[string]string{"type": "authenticate", "token": f.token(t, accountID)})
	reply = read(t, conn)
	assert.Equal(t, "authenticated", reply["type"])
}

func TestHubMalformedMessageKeepsConnectionOpen(t *testing.T) {
	f := newHubFixture(t)
	conn := f.connect(t, uuid.New())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply := read(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["message"], "malformed")

	// Still open: ping gets its pong.
	send(t, conn, map[string]string{"type": "ping"})
	reply = read(t, conn)
	assert.Equal(t, "pong", reply["type"])
}

func TestHubSubscribeIsAcknowledged(t *testing.T) {
	f := newHubFixture(t)
	conn := f.connect(t, uuid.New())

	send(t, conn, map[string]string{"type": "subscribe_generation", "task_type": "chapter"})
	reply := read(t, conn)
	assert.Equal(t, "subscribed", reply["type"])
	assert.Equal(t, "chapter", reply["task_type"])
}

func TestHubFansOutToAllAccountConnections(t *testing.T) {
	f := newHubFixture(t)
	accountID := uuid.New()
	other := uuid.New()

	first := f.connect(t, accountID)
	second := f.connect(t, accountID)
	bystander := f.connect(t, other)

	task, err := domain.NewTask(accountID, domain.TaskTypeChapter, 10, 0, uuid.New())
	require.NoError(t, err)
	f.hub.Notify(context.Background(), accountID, events.NewTaskCompleted(task, map[string]any{"words": float64(1200)}))

	for _, conn := range []*websocket.Conn{first, second} {
		pushed := read(t, conn)
		assert.Equal(t, "generation_completed", pushed["type"])
		assert.Equal(t, task.ID.String(), pushed["task_id"])
	}

	// The other account sees nothing; its next read times out.
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = bystander.ReadMessage()
	assert.Error(t, err)
}

func TestHubNotifyWithoutConnectionsIsNoOp(t *testing.T) {
	f := newHubFixture(t)

	task, err := domain.NewTask(uuid.New(), domain.TaskTypeChapter, 10, 0, uuid.New())
	require.NoError(t, err)

	// Must not panic or block.
	f.hub.Notify(context.Background(), task.OwnerID, events.NewTaskFailed(task, "provider timeout"))
}

func TestHubPrunesClosedConnections(t *testing.T) {
	f := newHubFixture(t)
	accountID := uuid.New()

	conn := f.connect(t, accountID)
	require.Eventually(t, func() bool {
		return f.hub.ConnectionCount(accountID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return f.hub.ConnectionCount(accountID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
