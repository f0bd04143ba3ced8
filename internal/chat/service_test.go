package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medchat/medchat-server/internal/store"
	"github.com/medchat/medchat-server/internal/store/sqlite"
)

// recordingBroker captures delivered messages so tests can assert on the
// delivery path without a live connection.
type recordingBroker struct {
	mu        sync.Mutex
	delivered []*store.Message
}

func (b *recordingBroker) Deliver(msg *store.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delivered = append(b.delivered, msg)
}

func (b *recordingBroker) messages() []*store.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*store.Message, len(b.delivered))
	copy(out, b.delivered)
	return out
}

// failingMessageStore simulates an unavailable persistence layer.
type failingMessageStore struct{}

var errStoreDown = errors.New("store down")

func (failingMessageStore) SaveMessage(context.Context, int64, int64, string) (*store.Message, error) {
	return nil, errStoreDown
}
func (failingMessageStore) ListBetween(context.Context, int64, int64) ([]*store.Message, error) {
	return nil, errStoreDown
}
func (failingMessageStore) ListInvolving(context.Context, int64) ([]*store.Message, error) {
	return nil, errStoreDown
}
func (failingMessageStore) MarkRead(context.Context, int64, int64) error { return errStoreDown }
func (failingMessageStore) CountMessages(context.Context) (int64, error) { return 0, errStoreDown }

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteStore, *recordingBroker) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	broker := &recordingBroker{}
	logger := zerolog.New(nil)
	return NewService(st, st, broker, &logger), st, broker
}

func seedUser(t *testing.T, st *sqlite.SQLiteStore, username string, role store.Role) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, username+"@example.com", "hash", role)
	require.NoError(t, err)
	return user
}

func TestSendPersistsAndAppearsInHistory(t *testing.T) {
	svc, st, broker := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)
	bob := seedUser(t, st, "bob", store.RoleDoctor)

	sent, err := svc.Send(ctx, alice.ID, bob.ID, "hi")
	require.NoError(t, err)
	require.NotZero(t, sent.ID)
	assert.False(t, sent.Read)

	history, err := svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
	assert.Equal(t, "hi", history[0].Content)
	assert.True(t, sent.CreatedAt.Equal(history[0].CreatedAt))

	// The persisted record is what gets handed to the broker.
	delivered := broker.messages()
	require.Len(t, delivered, 1)
	assert.Equal(t, sent.ID, delivered[0].ID)
}

func TestSendRejectsSelfMessage(t *testing.T) {
	svc, st, broker := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)

	_, err := svc.Send(ctx, alice.ID, alice.ID, "talking to myself")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	count, err := st.CountMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, broker.messages())
}

func TestSendRejectsBadContent(t *testing.T) {
	svc, st, broker := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)
	bob := seedUser(t, st, "bob", store.RoleDoctor)

	cases := []struct {
		name    string
		to      int64
		content string
		code    string
	}{
		{"empty", bob.ID, "", ErrCodeEmptyContent},
		{"whitespace only", bob.ID, "   \n\t", ErrCodeEmptyContent},
		{"oversized", bob.ID, string(make([]byte, MaxContentBytes+1)), ErrCodeContentTooLong},
		{"missing receiver", 0, "hi", ErrCodeMissingReceiver},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(ctx, alice.ID, tc.to, tc.content)
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.code, ve.Code)
		})
	}

	count, err := st.CountMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "validation failures must not persist anything")
	assert.Empty(t, broker.messages(), "validation failures must not reach the broker")
}

func TestSendStorageFailureSkipsDelivery(t *testing.T) {
	broker := &recordingBroker{}
	logger := zerolog.New(nil)
	svc := NewService(failingMessageStore{}, nil, broker, &logger)

	_, err := svc.Send(context.Background(), 1, 2, "hi")
	require.Error(t, err)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.False(t, IsValidation(err))
	assert.Empty(t, broker.messages(), "broker must not be invoked when persistence failed")
}

func TestHistorySymmetry(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)
	bob := seedUser(t, st, "bob", store.RoleDoctor)

	_, err := svc.Send(ctx, alice.ID, bob.ID, "hi")
	require.NoError(t, err)
	_, err = svc.Send(ctx, bob.ID, alice.ID, "hello")
	require.NoError(t, err)

	ab, err := svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	ba, err := svc.History(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	require.Len(t, ab, 2)
	require.Len(t, ba, 2)
	for i := range ab {
		assert.Equal(t, ab[i].ID, ba[i].ID)
		assert.Equal(t, ab[i].Content, ba[i].Content)
	}
	assert.Equal(t, "hi", ab[0].Content)
	assert.Equal(t, "hello", ab[1].Content)
}

func TestHistoryMarksIncomingRead(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)
	bob := seedUser(t, st, "bob", store.RoleDoctor)

	_, err := svc.Send(ctx, bob.ID, alice.ID, "results are in")
	require.NoError(t, err)

	// Alice opens the chat; bob's message to her becomes read.
	_, err = svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	history, err := svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Read)
}

func TestHistoryEmptyForStrangers(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)
	bob := seedUser(t, st, "bob", store.RoleDoctor)

	history, err := svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConversationsRecencyAndUniqueness(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)
	p1 := seedUser(t, st, "dr-yu", store.RoleDoctor)
	p2 := seedUser(t, st, "dr-okafor", store.RoleDoctor)

	// Three messages with p1, then a later one with p2.
	_, err := svc.Send(ctx, alice.ID, p1.ID, "first")
	require.NoError(t, err)
	_, err = svc.Send(ctx, p1.ID, alice.ID, "second")
	require.NoError(t, err)
	_, err = svc.Send(ctx, alice.ID, p1.ID, "third")
	require.NoError(t, err)
	_, err = svc.Send(ctx, p2.ID, alice.ID, "newest")
	require.NoError(t, err)

	conversations, err := svc.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 2, "each peer appears exactly once")

	assert.Equal(t, p2.ID, conversations[0].PeerID)
	assert.Equal(t, "newest", conversations[0].LastMessage)
	assert.Equal(t, "dr-okafor", conversations[0].PeerName)
	assert.Equal(t, store.RoleDoctor, conversations[0].PeerRole)

	assert.Equal(t, p1.ID, conversations[1].PeerID)
	assert.Equal(t, "third", conversations[1].LastMessage)

	assert.True(t, conversations[0].LastMessageAt.After(conversations[1].LastMessageAt) ||
		conversations[0].LastMessageAt.Equal(conversations[1].LastMessageAt))
}

func TestConversationsEmptyForNewUser(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	alice := seedUser(t, st, "alice", store.RolePatient)

	conversations, err := svc.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestTwoUserScenario(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	a := seedUser(t, st, "a", store.RolePatient)
	b := seedUser(t, st, "b", store.RoleDoctor)

	_, err := svc.Send(ctx, a.ID, b.ID, "hi")
	require.NoError(t, err)

	history, err := svc.History(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)

	_, err = svc.Send(ctx, b.ID, a.ID, "hello")
	require.NoError(t, err)

	history, err = svc.History(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)

	convA, err := svc.Conversations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, convA, 1)
	assert.Equal(t, b.ID, convA[0].PeerID)
	assert.Equal(t, "hello", convA[0].LastMessage)

	convB, err := svc.Conversations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, convB, 1)
	assert.Equal(t, a.ID, convB[0].PeerID)
	assert.Equal(t, "hello", convB[0].LastMessage)
}
