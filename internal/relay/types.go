// Package relay defines the wire envelope, the chat event and the connection
// contract shared by the hub and the transports.
package relay

import (
	"encoding/json"
	"errors"
)

const (
	// DefaultRoom is the room every connection is admitted into.
	DefaultRoom = "general"

	// DefaultName replaces a missing or non-string display name.
	DefaultName = "User"

	// EventChatMessage is the only application event exchanged in either direction.
	EventChatMessage = "chatMessage"
)

// ErrHubStopped is returned when an event is submitted after the hub's loop
// has been asked to stop.
var ErrHubStopped = errors.New("relay: hub stopped")

// ChatEvent is a normalized chat message as it is broadcast to room members.
type ChatEvent struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Envelope is the JSON frame carried by the transport. Event names the
// application event and Data carries its untrusted payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Connection is one live client session as seen by the relay.
//
// Send must not block: implementations queue the frame or fail fast so the
// hub loop never waits on a slow peer.
//
//go:generate mockgen -destination=../mocks/connection.go -package=mocks github.com/Tyrowin/medrelay/internal/relay Connection
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// EncodeChatEvent wraps a chat event into an outbound envelope.
func EncodeChatEvent(event ChatEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: EventChatMessage, Data: data})
}
