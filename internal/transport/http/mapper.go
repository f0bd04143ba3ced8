package http

import (
	"time"

	"github.com/medchat/medchat-server/internal/chat"
	"github.com/medchat/medchat-server/internal/proto"
	"github.com/medchat/medchat-server/internal/realtime"
	"github.com/medchat/medchat-server/internal/store"
)

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"created_at"`
}

// ConversationResponse represents a conversation summary in API responses.
type ConversationResponse struct {
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	Role            string `json:"role"`
	LastMessage     string `json:"last_message"`
	LastMessageTime string `json:"last_message_time"`
	Read            bool   `json:"read"`
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt.Format(time.RFC3339Nano),
	}
}

func conversationResponse(conv *chat.Conversation) ConversationResponse {
	return ConversationResponse{
		UserID:          conv.PeerID,
		Username:        conv.PeerName,
		Role:            string(conv.PeerRole),
		LastMessage:     conv.LastMessage,
		LastMessageTime: conv.LastMessageAt.Format(time.RFC3339Nano),
		Read:            conv.Read,
	}
}

func outboundFromEvent(event *realtime.Event) proto.Outbound {
	switch event.Kind {
	case realtime.EventMessage:
		msg := event.Message
		return proto.Outbound{
			Type: proto.OutboundTypeMessage,
			Data: proto.MessageData{
				ID:         msg.ID,
				SenderID:   msg.SenderID,
				ReceiverID: msg.ReceiverID,
				Content:    msg.Content,
				Read:       msg.Read,
				CreatedAt:  msg.CreatedAt.UnixMilli(),
			},
		}
	case realtime.EventTyping:
		return proto.Outbound{
			Type: proto.OutboundTypeTyping,
			Data: proto.TypingEvent{
				From:     event.Typing.From,
				IsTyping: event.Typing.IsTyping,
			},
		}
	default:
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: "unknown_event", Msg: "unknown event kind"},
		}
	}
}
