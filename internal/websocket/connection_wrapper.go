package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connectionWrapper adapts *websocket.Conn to the Connection interface and
// serializes writes, since gorilla permits only one concurrent writer.
type connectionWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// WrapConnection wraps a gorilla connection for use by the hub.
func WrapConnection(conn *websocket.Conn) Connection {
	return &connectionWrapper{conn: conn}
}

func (w *connectionWrapper) ReadMessage() (int, []byte, error) {
	return w.conn.ReadMessage()
}

func (w *connectionWrapper) WriteMessage(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(messageType, data)
}

func (w *connectionWrapper) Close() error {
	return w.conn.Close()
}

func (w *connectionWrapper) SetReadLimit(limit int64) {
	w.conn.SetReadLimit(limit)
}

func (w *connectionWrapper) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *connectionWrapper) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

func (w *connectionWrapper) SetPongHandler(h func(appData string) error) {
	w.conn.SetPongHandler(h)
}
