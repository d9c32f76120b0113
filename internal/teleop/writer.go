package teleop

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cartlab/go-dbw-bridge/internal/hub"
	"github.com/cartlab/go-dbw-bridge/internal/metrics"
)

// writeWait bounds a single frame write to a session.
const writeWait = 10 * time.Second

// writePump drains the client queue onto the connection and keeps the
// session alive with pings. It exits when the client is closed (kick,
// disconnect or shutdown) and drags the connection down with it.
func (s *Server) writePump(conn *websocket.Conn, c *hub.Client) {
	defer s.connWG.Done()
	defer conn.Close()
	ping := time.NewTicker(s.readDeadline * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case msg := <-c.Out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.setError(fmt.Errorf("%w: %v", ErrConnWrite, err))
				c.Close()
				return
			}
			metrics.AddWSTx(1)
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.Closed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
