package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/medchat/medchat-server/internal/proto"
)

type outboundFrame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dialWS(t *testing.T, ctx context.Context, tsURL string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(tsURL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s data: %v", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: payload}); err != nil {
		t.Fatalf("write %s frame: %v", frameType, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) outboundFrame {
	t.Helper()

	var frame outboundFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func joinWS(t *testing.T, ctx context.Context, conn *websocket.Conn, token string, wantUserID int64) {
	t.Helper()

	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Token: token})

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.OutboundTypeJoined {
		t.Fatalf("expected joined ack, got %s", frame.Type)
	}
	var joined proto.JoinedData
	if err := json.Unmarshal(frame.Data, &joined); err != nil {
		t.Fatalf("unmarshal joined data: %v", err)
	}
	if joined.UserID != wantUserID {
		t.Fatalf("joined as user %d, want %d", joined.UserID, wantUserID)
	}
}

func TestWebSocketReceivesSentMessage(t *testing.T) {
	ts, st, authService := startTestServer(t)

	aliceID, aliceToken := registerTestUser(t, st, authService, "alice")
	bobID, bobToken := registerTestUser(t, st, authService, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts.URL)
	joinWS(t, ctx, conn, bobToken, bobID)

	resp := doJSON(t, ts, http.MethodPost, "/api/messages", aliceToken, SendMessageRequest{
		ReceiverID: bobID,
		Content:    "your results are ready",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status: %d", resp.StatusCode)
	}

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.OutboundTypeMessage {
		t.Fatalf("expected message push, got %s", frame.Type)
	}
	var data proto.MessageData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("unmarshal message data: %v", err)
	}
	if data.SenderID != aliceID || data.ReceiverID != bobID || data.Content != "your results are ready" {
		t.Fatalf("unexpected push payload: %+v", data)
	}
	if data.ID == 0 || data.CreatedAt == 0 {
		t.Fatalf("push is missing persisted fields: %+v", data)
	}
}

func TestWebSocketJoinRejectsBadToken(t *testing.T) {
	ts, _, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts.URL)
	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Token: "not-a-token"})

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.OutboundTypeError {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
	if frame.Error == nil || frame.Error.Code != "unauthorized" {
		t.Fatalf("unexpected error payload: %+v", frame.Error)
	}
}

func TestWebSocketTypingBeforeJoinRejected(t *testing.T) {
	ts, st, authService := startTestServer(t)
	bobID, _ := registerTestUser(t, st, authService, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts.URL)
	sendFrame(t, ctx, conn, proto.InboundTypeTyping, proto.TypingData{To: bobID, IsTyping: true})

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.OutboundTypeError {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
}

func TestWebSocketTypingRelay(t *testing.T) {
	ts, st, authService := startTestServer(t)

	aliceID, aliceToken := registerTestUser(t, st, authService, "alice")
	bobID, bobToken := registerTestUser(t, st, authService, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connAlice := dialWS(t, ctx, ts.URL)
	joinWS(t, ctx, connAlice, aliceToken, aliceID)

	connBob := dialWS(t, ctx, ts.URL)
	joinWS(t, ctx, connBob, bobToken, bobID)

	sendFrame(t, ctx, connAlice, proto.InboundTypeTyping, proto.TypingData{To: bobID, IsTyping: true})

	frame := readFrame(t, ctx, connBob)
	if frame.Type != proto.OutboundTypeTyping {
		t.Fatalf("expected typing push, got %s", frame.Type)
	}
	var typing proto.TypingEvent
	if err := json.Unmarshal(frame.Data, &typing); err != nil {
		t.Fatalf("unmarshal typing data: %v", err)
	}
	if typing.From != aliceID || !typing.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}
}

func TestWebSocketOfflineReceiverStillPersists(t *testing.T) {
	ts, st, authService := startTestServer(t)

	_, aliceToken := registerTestUser(t, st, authService, "alice")
	bobID, bobToken := registerTestUser(t, st, authService, "bob")

	// Nobody is connected; the send must still succeed.
	resp := doJSON(t, ts, http.MethodPost, "/api/messages", aliceToken, SendMessageRequest{
		ReceiverID: bobID,
		Content:    "see you at 3pm",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status: %d", resp.StatusCode)
	}

	// Bob fetches on reconnect and finds the message.
	resp = doJSON(t, ts, http.MethodGet, "/api/conversations", bobToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("conversations status: %d", resp.StatusCode)
	}
	conversations := decodeJSON[[]ConversationResponse](t, resp)
	if len(conversations) != 1 || conversations[0].LastMessage != "see you at 3pm" {
		t.Fatalf("unexpected conversations: %+v", conversations)
	}
}
