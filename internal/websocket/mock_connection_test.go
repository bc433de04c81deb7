package websocket

import (
	"errors"
	"sync"
	"time"
)

// mockConnection records writes and replays queued reads. Once the queue is
// empty ReadMessage blocks until Close.
type mockConnection struct {
	mu      sync.Mutex
	written []mockMessage
	reads   chan mockMessage
	closed  chan struct{}
	once    sync.Once

	readLimit     int64
	readDeadline  time.Time
	writeDeadline time.Time
	pongHandler   func(string) error
	writeErr      error
}

type mockMessage struct {
	Type int
	Data []byte
	Err  error
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		reads:  make(chan mockMessage, 16),
		closed: make(chan struct{}),
	}
}

func (m *mockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.closed:
		return errors.New("connection closed")
	default:
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, mockMessage{Type: messageType, Data: append([]byte(nil), data...)})
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-m.reads:
		return msg.Type, msg.Data, msg.Err
	case <-m.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *mockConnection) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConnection) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

func (m *mockConnection) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDeadline = t
	return nil
}

func (m *mockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readLimit = limit
}

func (m *mockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pongHandler = h
}

func (m *mockConnection) RemoteAddr() string { return "127.0.0.1:50000" }

func (m *mockConnection) queueRead(msg mockMessage) { m.reads <- msg }

func (m *mockConnection) messages() []mockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockMessage(nil), m.written...)
}

func (m *mockConnection) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}
