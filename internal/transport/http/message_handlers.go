package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/medchat/medchat-server/internal/chat"
)

// MessageHandlers provides HTTP handlers for the messaging endpoints.
type MessageHandlers struct {
	chat *chat.Service
	log  *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(chatService *chat.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		chat: chatService,
		log:  logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// SendMessage persists a message and pushes it to the receiver if they
// have a live connection.
// POST /api/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), uid, req.ReceiverID, req.Content)
	if err != nil {
		if chat.IsValidation(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Int64("sender_id", uid).Int64("receiver_id", req.ReceiverID).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, messageResponse(msg))
}

// GetHistory returns the full transcript with one peer, oldest first.
// GET /api/messages/:userID
func (h *MessageHandlers) GetHistory(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	peerID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	msgs, err := h.chat.History(c.Request.Context(), uid, peerID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Int64("peer_id", peerID).Msg("failed to fetch messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch messages"})
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		response = append(response, messageResponse(msg))
	}

	c.JSON(http.StatusOK, response)
}

// ListConversations returns the most-recent-message-per-peer summaries,
// newest first.
// GET /api/conversations
func (h *MessageHandlers) ListConversations(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	conversations, err := h.chat.Conversations(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to fetch conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch conversations"})
		return
	}

	response := make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		response = append(response, conversationResponse(conv))
	}

	c.JSON(http.StatusOK, response)
}
