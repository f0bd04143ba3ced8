package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medchat/medchat-server/internal/auth"
	"github.com/medchat/medchat-server/internal/proto"
	"github.com/medchat/medchat-server/internal/realtime"
)

// WSHandler upgrades HTTP connections and bridges them to the room
// registry. A connection receives no pushes until it joins with a valid
// token; the registry binds the verified identity from the token, never a
// client-claimed id.
type WSHandler struct {
	registry *realtime.Registry
	auth     *auth.Service
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *realtime.Registry, authService *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{registry: registry, auth: authService, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := realtime.NewClient(uuid.NewString())
	defer h.registry.Leave(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *realtime.Client) error {
	// Set after a successful join; zero means unauthenticated.
	var userID int64

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		switch inbound.Type {
		case proto.InboundTypeJoin:
			var join proto.JoinData
			if err := json.Unmarshal(inbound.Data, &join); err != nil {
				return err
			}
			claims, err := h.auth.ValidateToken(join.Token)
			if err != nil {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("ws join with invalid token")
				if writeErr := h.writeError(ctx, conn, "unauthorized", "invalid token"); writeErr != nil {
					return writeErr
				}
				continue
			}
			userID = claims.UserID
			h.registry.Join(client, userID)
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type: proto.OutboundTypeJoined,
				Data: proto.JoinedData{UserID: userID},
			}); err != nil {
				return err
			}

		case proto.InboundTypeTyping:
			if userID == 0 {
				if writeErr := h.writeError(ctx, conn, "unauthorized", "join before sending typing signals"); writeErr != nil {
					return writeErr
				}
				continue
			}
			var typing proto.TypingData
			if err := json.Unmarshal(inbound.Data, &typing); err != nil {
				return err
			}
			h.registry.RelayTyping(userID, typing.To, typing.IsTyping)

		default:
			if writeErr := h.writeError(ctx, conn, "invalid_message", "unknown message type"); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *realtime.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				// Push failures never reach the sender; log and drop the connection.
				h.log.Warn().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}
