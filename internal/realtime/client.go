package realtime

import "github.com/medchat/medchat-server/internal/store"

// EventKind is a notification pushed to a live connection.
type EventKind int

const (
	// EventMessage carries a newly persisted chat message.
	EventMessage EventKind = iota
	// EventTyping relays a transient typing signal from a peer.
	EventTyping
)

// Event is sent to clients over their realtime connection.
type Event struct {
	Kind    EventKind
	Message *store.Message
	Typing  *Typing
}

// Typing is the unpersisted typing signal.
type Typing struct {
	From     int64
	IsTyping bool
}

// Client is one live realtime connection. A connection stays anonymous
// until it joins its user's room; until then it receives nothing.
type Client struct {
	ID     string
	Events chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *Event, 8),
	}
}

// push enqueues an event without blocking. Returns false if the client's
// buffer is full and the event was dropped.
func (c *Client) push(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
