package teleop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cartlab/go-dbw-bridge/internal/hub"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

// maxMessageSize bounds a single inbound message; command payloads are
// tiny and anything larger is a broken client.
const maxMessageSize = 4096

// readPump consumes command messages from one session until the
// connection drops. It owns the disconnect cleanup for the session.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, c *hub.Client) {
	defer s.connWG.Done()
	defer func() {
		c.Close()
		_ = conn.Close()
		s.hub.Remove(c)
		s.log.Info("client_disconnected", "remote", conn.RemoteAddr().String(), "clients", s.hub.Count())
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readDeadline))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setError(fmt.Errorf("%w: %v", ErrConnRead, err))
			}
			return
		}
		s.dispatch(data)
	}
}

// dispatch routes one inbound message into the arbiter.
func (s *Server) dispatch(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.IncMalformed()
		s.log.Debug("ws_message_rejected", "error", err)
		return
	}
	switch msg.Type {
	case "twist":
		s.arb.SetAuto(msg.Linear, msg.Angular)
		metrics.IncWSCommand()
	case "joy":
		s.arb.SetManual(msg.Buttons, msg.Axes)
		metrics.IncWSCommand()
	case "velocity":
		s.arb.SetDisplayVelocity(msg.Velocity)
		metrics.SetDisplayVelocity(s.arb.DisplayVelocityKmph())
		metrics.IncWSCommand()
	default:
		metrics.IncMalformed()
		s.log.Debug("ws_message_unknown", "type", msg.Type)
	}
}
