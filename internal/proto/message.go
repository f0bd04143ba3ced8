package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin   = "join"
	InboundTypeTyping = "typing"

	OutboundTypeJoined  = "joined"
	OutboundTypeMessage = "receive_message"
	OutboundTypeTyping  = "display_typing"
	OutboundTypeError   = "error"
)

// JoinData announces the connection's identity. The token is the same JWT
// used for REST calls; the server binds the verified identity, not a
// client-claimed one.
type JoinData struct {
	Token string `json:"token"`
}

// TypingData relays a typing signal to a peer's room.
type TypingData struct {
	To       int64 `json:"to"`
	IsTyping bool  `json:"is_typing"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JoinedData confirms which identity the connection is bound to.
type JoinedData struct {
	UserID int64 `json:"user_id"`
}

// MessageData is the full payload of a pushed chat message.
type MessageData struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	CreatedAt  int64  `json:"created_at"`
}

// TypingEvent notifies that a peer started or stopped typing.
type TypingEvent struct {
	From     int64 `json:"from"`
	IsTyping bool  `json:"is_typing"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
