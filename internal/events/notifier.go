package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Notifier fans a task event out to every live connection of one account.
// Delivery is best-effort: an account with no live connections is a
// logged no-op, never an error surfaced to the caller.
type Notifier interface {
	// Notify pushes the event to all connections registered for the account.
	Notify(ctx context.Context, accountID uuid.UUID, event TaskEvent)
}

// NopNotifier discards all events. Used when no hub is wired, and as a
// safe default in tests that don't care about notifications.
type NopNotifier struct{}

// Notify implements the Notifier interface by doing nothing.
func (NopNotifier) Notify(ctx context.Context, accountID uuid.UUID, event TaskEvent) {}

// Ensure NopNotifier implements Notifier
var _ Notifier = NopNotifier{}

// RecordingNotifier captures events for assertions in tests.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent pairs an event with the account it was addressed to.
type RecordedEvent struct {
	AccountID uuid.UUID
	Event     TaskEvent
}

// Ensure RecordingNotifier implements Notifier
var _ Notifier = (*RecordingNotifier)(nil)

// NewRecordingNotifier creates an empty RecordingNotifier.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Notify implements the Notifier interface by recording the event.
func (n *RecordingNotifier) Notify(ctx context.Context, accountID uuid.UUID, event TaskEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, RecordedEvent{AccountID: accountID, Event: event})
}

// Events returns a copy of everything recorded so far.
func (n *RecordingNotifier) Events() []RecordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]RecordedEvent, len(n.events))
	copy(out, n.events)
	return out
}
