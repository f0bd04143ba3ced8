package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/medchat/medchat-server/internal/store"
)

// Registry maps user IDs to their live connections and pushes newly
// persisted messages to them. A room is a single user's identity; several
// connections (tabs, devices) may sit in the same room and all receive
// pushes. There is one registry per process; delivery never crosses
// process boundaries.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[int64]map[*Client]struct{}
	joined map[*Client]int64
	log    *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[int64]map[*Client]struct{}),
		joined: make(map[*Client]int64),
		log:    logger,
	}
}

// Join registers the connection under the user's room. Joining again with
// the same user is a no-op; joining as a different user moves the
// connection.
func (r *Registry) Join(c *Client, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.joined[c]; ok {
		if current == userID {
			return
		}
		r.removeLocked(c, current)
	}

	room, ok := r.rooms[userID]
	if !ok {
		room = make(map[*Client]struct{})
		r.rooms[userID] = room
	}
	room[c] = struct{}{}
	r.joined[c] = userID

	r.log.Debug().Str("client_id", c.ID).Int64("user_id", userID).Msg("client joined room")
}

// Leave removes the connection from whatever room it is in. Safe to call
// for a connection that never joined.
func (r *Registry) Leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.joined[c]
	if !ok {
		return
	}
	r.removeLocked(c, userID)

	r.log.Debug().Str("client_id", c.ID).Int64("user_id", userID).Msg("client left room")
}

func (r *Registry) removeLocked(c *Client, userID int64) {
	if room, ok := r.rooms[userID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(r.rooms, userID)
		}
	}
	delete(r.joined, c)
}

// Deliver pushes a persisted message to every connection in the
// receiver's room. If nobody is connected this is a silent no-op: the
// receiver will see the message on their next fetch. At-most-once, no
// retry; a full client buffer drops the event and is only logged.
func (r *Registry) Deliver(msg *store.Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.rooms[msg.ReceiverID] {
		if !c.push(&Event{Kind: EventMessage, Message: msg}) {
			r.log.Warn().
				Str("client_id", c.ID).
				Int64("receiver_id", msg.ReceiverID).
				Int64("message_id", msg.ID).
				Msg("dropped message push, slow consumer")
		}
	}
}

// RelayTyping forwards a typing signal to the target user's room. Nothing
// is persisted.
func (r *Registry) RelayTyping(from, to int64, isTyping bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.rooms[to] {
		c.push(&Event{Kind: EventTyping, Typing: &Typing{From: from, IsTyping: isTyping}})
	}
}

// RoomSize returns how many connections are joined to the user's room.
func (r *Registry) RoomSize(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[userID])
}
