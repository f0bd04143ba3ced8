package medchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// API is the subset of the REST client the session needs. Tests supply a
// fake implementation.
type API interface {
	SendMessage(ctx context.Context, receiverID int64, content string) (*Message, error)
	History(ctx context.Context, peerID int64) ([]Message, error)
	Conversations(ctx context.Context) ([]Conversation, error)
}

// ErrNoPeerSelected is returned when sending without an open chat.
var ErrNoPeerSelected = errors.New("no peer selected")

// Session is the caller-side chat state machine: it holds the transcript
// for the currently selected peer and the conversation list, reconciling
// optimistic sends with pushed messages. All push handling consults the
// selection at delivery time, never a value captured at subscribe time.
type Session struct {
	api API

	mu            sync.Mutex
	peerID        int64
	transcript    []Message
	conversations []Conversation
}

// NewSession creates a session on top of an API client.
func NewSession(api API) *Session {
	return &Session{api: api}
}

// SelectPeer opens the chat with the given peer, replacing the local
// transcript with the fetched history. A peer with no prior messages
// yields an empty transcript, not an error.
func (s *Session) SelectPeer(ctx context.Context, peerID int64) error {
	msgs, err := s.api.History(ctx, peerID)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	s.mu.Lock()
	s.peerID = peerID
	s.transcript = msgs
	s.mu.Unlock()

	return nil
}

// Send sends a message to the selected peer. On success the returned
// message is appended to the transcript immediately, without waiting for
// any push echo; on failure nothing is appended.
func (s *Session) Send(ctx context.Context, content string) (*Message, error) {
	s.mu.Lock()
	peerID := s.peerID
	s.mu.Unlock()
	if peerID == 0 {
		return nil, ErrNoPeerSelected
	}

	msg, err := s.api.SendMessage(ctx, peerID, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// The selection may have changed while the request was in flight.
	if s.peerID == peerID {
		s.transcript = append(s.transcript, *msg)
	}
	s.mu.Unlock()

	if err := s.RefreshConversations(ctx); err != nil {
		return msg, err
	}
	return msg, nil
}

// HandlePush processes a pushed message: it is appended to the transcript
// only when it belongs to the currently selected chat, and the
// conversation list is refreshed regardless of which peer it concerns.
func (s *Session) HandlePush(ctx context.Context, msg Message) error {
	s.mu.Lock()
	if s.peerID != 0 && (msg.SenderID == s.peerID || msg.ReceiverID == s.peerID) {
		s.transcript = append(s.transcript, msg)
	}
	s.mu.Unlock()

	return s.RefreshConversations(ctx)
}

// RefreshConversations re-fetches the conversation list.
func (s *Session) RefreshConversations(ctx context.Context) error {
	convs, err := s.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("fetch conversations: %w", err)
	}

	s.mu.Lock()
	s.conversations = convs
	s.mu.Unlock()

	return nil
}

// SelectedPeer returns the currently selected peer id, zero if none.
func (s *Session) SelectedPeer() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// Transcript returns a copy of the current transcript.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Conversations returns a copy of the last fetched conversation list.
func (s *Session) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Websocket wire envelopes, matching the server protocol.

type wsInbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsOutbound struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *wsError        `json:"error"`
}

type wsError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type wsJoinData struct {
	Token string `json:"token"`
}

type wsMessageData struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	CreatedAt  int64  `json:"created_at"`
}

type wsTypingEvent struct {
	From     int64 `json:"from"`
	IsTyping bool  `json:"is_typing"`
}

// Listen dials the websocket endpoint, joins the user's room with the
// given token and dispatches pushes into the session until the context is
// cancelled or the connection drops. Each call performs the join again, so
// calling Listen in a reconnect loop restores delivery after a drop; while
// disconnected, messages are still visible on the next fetch.
func (s *Session) Listen(ctx context.Context, wsURL, token string, onTyping func(from int64, isTyping bool)) error {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial ws: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	if err := wsjson.Write(ctx, conn, wsInbound{Type: "join", Data: wsJoinData{Token: token}}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	for {
		var frame wsOutbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read ws frame: %w", err)
		}

		switch frame.Type {
		case "receive_message":
			var data wsMessageData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				return fmt.Errorf("decode message push: %w", err)
			}
			// Conversation refresh failures are not fatal to the connection.
			_ = s.HandlePush(ctx, Message{
				ID:         data.ID,
				SenderID:   data.SenderID,
				ReceiverID: data.ReceiverID,
				Content:    data.Content,
				Read:       data.Read,
			})
		case "display_typing":
			if onTyping == nil {
				continue
			}
			var data wsTypingEvent
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				return fmt.Errorf("decode typing push: %w", err)
			}
			onTyping(data.From, data.IsTyping)
		case "error":
			if frame.Error != nil && frame.Error.Code == "unauthorized" {
				return fmt.Errorf("join rejected: %s", frame.Error.Msg)
			}
		}
	}
}
