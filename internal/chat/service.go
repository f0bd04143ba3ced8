package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medchat/medchat-server/internal/store"
)

// MaxContentBytes bounds the size of a single message body.
const MaxContentBytes = 8 * 1024

// Deliverer pushes a persisted message to the receiver's live connections,
// if any. Implementations must not block and must never return an error to
// the sender's request path.
type Deliverer interface {
	Deliver(msg *store.Message)
}

// Conversation is the derived most-recent-message-per-peer summary. It is
// recomputed on every request and never persisted.
type Conversation struct {
	PeerID        int64
	PeerName      string
	PeerRole      store.Role
	LastMessage   string
	LastMessageID int64
	LastMessageAt time.Time
	Read          bool
}

// Service implements the messaging core: durable sends, two-party history
// and the per-user conversation list.
type Service struct {
	messages store.MessageStore
	users    store.UserStore
	broker   Deliverer
	log      *zerolog.Logger
}

// NewService creates the messaging service.
func NewService(messages store.MessageStore, users store.UserStore, broker Deliverer, logger *zerolog.Logger) *Service {
	return &Service{
		messages: messages,
		users:    users,
		broker:   broker,
		log:      logger,
	}
}

// Send validates and persists a message, then hands it to the delivery
// broker. Persistence is the source of truth; realtime push is best-effort
// and cannot fail the send.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, content string) (*store.Message, error) {
	if receiverID == 0 {
		return nil, validationError(ErrCodeMissingReceiver, "receiver id is required")
	}
	if senderID == receiverID {
		return nil, validationError(ErrCodeSelfMessage, "cannot send a message to yourself")
	}
	if strings.TrimSpace(content) == "" {
		return nil, validationError(ErrCodeEmptyContent, "message content is empty")
	}
	if len(content) > MaxContentBytes {
		return nil, validationError(ErrCodeContentTooLong, "message content exceeds size limit")
	}

	msg, err := s.messages.SaveMessage(ctx, senderID, receiverID, content)
	if err != nil {
		return nil, &StorageError{Op: "save message", Err: err}
	}

	s.broker.Deliver(msg)

	return msg, nil
}

// History returns the full transcript between userID and peerID, oldest
// first. Fetching a transcript marks the peer's messages as read; that
// update is best-effort and never fails the fetch.
func (s *Service) History(ctx context.Context, userID, peerID int64) ([]*store.Message, error) {
	msgs, err := s.messages.ListBetween(ctx, userID, peerID)
	if err != nil {
		return nil, &StorageError{Op: "list messages", Err: err}
	}

	if err := s.messages.MarkRead(ctx, userID, peerID); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Int64("peer_id", peerID).Msg("failed to mark messages read")
	}

	return msgs, nil
}

// Conversations derives the list of peers userID has exchanged messages
// with, each carrying only the most recent message, newest first.
func (s *Service) Conversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	msgs, err := s.messages.ListInvolving(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "list messages", Err: err}
	}

	// Newest first, so the first occurrence of each peer is authoritative.
	latest := make(map[int64]*store.Message)
	peerIDs := make([]int64, 0)
	for _, msg := range msgs {
		peerID := msg.SenderID
		if msg.SenderID == userID {
			peerID = msg.ReceiverID
		}
		if _, seen := latest[peerID]; seen {
			continue
		}
		latest[peerID] = msg
		peerIDs = append(peerIDs, peerID)
	}

	peers, err := s.users.GetUsersByIDs(ctx, peerIDs)
	if err != nil {
		return nil, &StorageError{Op: "load peers", Err: err}
	}

	conversations := make([]*Conversation, 0, len(peers))
	for _, peer := range peers {
		msg := latest[peer.ID]
		conversations = append(conversations, &Conversation{
			PeerID:        peer.ID,
			PeerName:      peer.Username,
			PeerRole:      peer.Role,
			LastMessage:   msg.Content,
			LastMessageID: msg.ID,
			LastMessageAt: msg.CreatedAt,
			Read:          msg.Read,
		})
	}

	// The peer join can reorder entries, so the recency ordering is
	// re-established explicitly.
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].LastMessageAt.Equal(conversations[j].LastMessageAt) {
			return conversations[i].LastMessageID > conversations[j].LastMessageID
		}
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})

	return conversations, nil
}
