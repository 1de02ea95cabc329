package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// mockConnection implements Connection for tests. Reads block until the
// connection is closed; writes are recorded.
type mockConnection struct {
	mu       sync.Mutex
	written  [][]byte
	types    []int
	closed   bool
	closedCh chan struct{}
}

func newMockConnection() *mockConnection {
	return &mockConnection{closedCh: make(chan struct{})}
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	<-m.closedCh
	return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (m *mockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.written = append(m.written, buf)
	m.types = append(m.types, messageType)
	return nil
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConnection) SetReadLimit(int64)                     {}
func (m *mockConnection) SetReadDeadline(time.Time) error        { return nil }
func (m *mockConnection) SetWriteDeadline(time.Time) error       { return nil }
func (m *mockConnection) SetPongHandler(func(appData string) error) {}

func (m *mockConnection) textFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for i, t := range m.types {
		if t == websocket.TextMessage {
			out = append(out, m.written[i])
		}
	}
	return out
}

func (m *mockConnection) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
