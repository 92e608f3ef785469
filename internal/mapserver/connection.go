package mapserver

import (
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/musthaq16/vehicle-route-tracker/internal/tracker"
)

// connection is one map client. Only writeLoop writes to conn.
type connection struct {
	id     string
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{} // closed when the read side ends
	logger *slog.Logger
}

// enqueue hands a reply to the writer. Non-blocking; drops if the channel is full.
func (c *connection) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("encoding message", "error", err)
		return
	}
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("send channel full, dropping message")
	}
}

// writeLoop pushes replies and state updates until the client goes away or
// the update stream closes.
func (c *connection) writeLoop(updates <-chan tracker.Snapshot) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if !c.write(ws.TextMessage, data) {
				return
			}
		case snap, ok := <-updates:
			if !ok {
				c.write(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, "tracker stopped"))
				return
			}
			data, err := json.Marshal(NewStateMessage(snap))
			if err != nil {
				c.logger.Error("encoding state", "error", err)
				continue
			}
			if !c.write(ws.TextMessage, data) {
				return
			}
		}
	}
}

func (c *connection) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("websocket SetWriteDeadline error", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Warn("websocket write error", "error", err)
		return false
	}
	return true
}
