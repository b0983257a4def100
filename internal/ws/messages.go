package ws

import "github.com/google/uuid"

// Client-to-server message types
const (
	msgAuthenticate = "authenticate"
	msgSubscribe    = "subscribe_generation"
	msgPing         = "ping"
)

// Server-to-client reply types. Task lifecycle pushes use the event types
// from the events package.
const (
	msgAuthenticated = "authenticated"
	msgSubscribed    = "subscribed"
	msgPong          = "pong"
	msgError         = "error"
)

// clientMessage is the envelope for everything a client sends. Fields
// beyond Type are populated depending on the message type.
type clientMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	TaskType string `json:"task_type,omitempty"`
}

// serverMessage is the envelope for protocol replies (not lifecycle
// pushes, which are serialized events.TaskEvent values).
type serverMessage struct {
	Type      string    `json:"type"`
	AccountID uuid.UUID `json:"account_id,omitempty"`
	TaskType  string    `json:"task_type,omitempty"`
	Message   string    `json:"message,omitempty"`
}
