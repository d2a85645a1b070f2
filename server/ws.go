package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/engine"
)

// WebSocket message types.
const (
	typeChat  = "chat"
	typeChunk = "chunk"
	typeReply = "reply"
	typeError = "error"
)

const (
	wsReadLimit    = 1 << 20
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// clientMessage is sent by the client. The only type is "chat".
type clientMessage struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// serverMessage is one of: a chunk of reply text, the final reply, or an
// error for the last chat message.
type serverMessage struct {
	Type  string        `json:"type"`
	Text  string        `json:"text,omitempty"`
	Reply *engine.Reply `json:"reply,omitempty"`
	Code  string        `json:"code,omitempty"`
	Error string        `json:"error,omitempty"`
}

// handleChatWS runs chat turns over a WebSocket. Messages are handled one at
// a time in the read loop, so all writes happen on this goroutine.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	write := func(msg serverMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		s.metrics.ObserveWSMessage("outbound", msg.Type)
		return nil
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Str("component", "server").Err(err).Msg("websocket closed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != typeChat {
			s.metrics.ObserveWSMessage("inbound", "invalid")
			if write(serverMessage{Type: typeError, Code: "invalid_client_message", Error: "expected a chat message"}) != nil {
				return
			}
			continue
		}
		s.metrics.ObserveWSMessage("inbound", msg.Type)

		var writeErr error
		reply, err := s.engine.ChatStream(ctx, msg.UserID, msg.Message, func(chunk string) {
			if writeErr == nil {
				writeErr = write(serverMessage{Type: typeChunk, Text: chunk})
			}
		})
		if writeErr != nil {
			return
		}
		if err != nil {
			_, code := chatErrorStatus(err)
			writeErr = write(serverMessage{Type: typeError, Code: code, Error: err.Error()})
		} else {
			writeErr = write(serverMessage{Type: typeReply, Reply: reply})
		}
		if writeErr != nil {
			return
		}
	}
}
