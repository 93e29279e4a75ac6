package server

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nexuslabs/nexus-go/engine"
	"github.com/nexuslabs/nexus-go/logging"
)

// wsMessage is a client frame.
type wsMessage struct {
	Type    string `json:"type"` // "message" (default) or "reset"
	Message string `json:"message"`
}

// wsReply is a server frame.
type wsReply struct {
	Type      string         `json:"type"` // "session", "response", "reset" or "error"
	SessionID string         `json:"session_id"`
	Result    *engine.Result `json:"result,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// handleWebSocket runs one conversation per connection. Frames are
// processed in order; a failed turn reports an error frame and the
// connection stays open.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logging.For("server").Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	conv := s.engine.NewConversation()
	log := logging.For("server").With().Str("session_id", sessionID).Logger()
	log.Info().Msg("websocket session opened")

	if err := conn.WriteJSON(wsReply{Type: "session", SessionID: sessionID}); err != nil {
		return nil
	}

	ctx := c.Request().Context()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			log.Info().Msg("websocket session closed")
			return nil
		}

		reply := wsReply{SessionID: sessionID}
		switch {
		case msg.Type == "reset":
			conv.Reset()
			reply.Type = "reset"
		case msg.Message == "":
			reply.Type = "error"
			reply.Detail = "message is required"
		default:
			result, err := s.engine.Process(ctx, conv, msg.Message)
			if err != nil {
				log.Error().Err(err).Msg("websocket turn failed")
				reply.Type = "error"
				reply.Detail = err.Error()
			} else {
				reply.Type = "response"
				reply.Result = result
			}
		}

		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Msg("websocket write error")
			return nil
		}
	}
}
