package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"ethvaluation/internal/infrastructure"
	"ethvaluation/internal/pipeline"
)

// Message types sent to clients. Run progress uses the pipeline event types.
const (
	TypeConnection = "connection"
	TypeRunUpdate  = pipeline.EventRun
	TypeStepUpdate = pipeline.EventStep
)

// broadcastBuffer bounds the messages waiting for the hub loop.
const broadcastBuffer = 256

// Message is the envelope of every message sent to clients.
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}
	stopped chan struct{}

	logger  *slog.Logger
	metrics *HubMetrics
}

type outbound struct {
	msgType string
	data    []byte
}

// NewHub creates a hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *HubMetrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics, _ = NewHubMetrics(nil)
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
	}
}

// Start runs the hub loop in a new goroutine. It is idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			ctx := client.context()
			h.metrics.connected(ctx)
			h.logger.InfoContext(ctx, "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			if data, err := encode(TypeConnection, map[string]string{"status": "connected", "client_id": client.id}, client.traceID); err == nil {
				select {
				case client.send <- data:
				default:
					h.metrics.dropped(ctx, "client")
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			if ok {
				ctx := client.context()
				h.metrics.disconnected(ctx, time.Since(client.connectedAt))
				h.logger.InfoContext(ctx, "client unregistered",
					slog.String("client_id", client.id),
					slog.Int("total_clients", count),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case msg := <-h.broadcast:
			h.mu.Lock()
			sent := 0
			for client := range h.clients {
				select {
				case client.send <- msg.data:
					sent++
				default:
					close(client.send)
					delete(h.clients, client)
					h.metrics.dropped(client.context(), "client")
					h.logger.Warn("client send buffer full, disconnecting", slog.String("client_id", client.id))
				}
			}
			h.mu.Unlock()
			h.metrics.sent(context.Background(), msg.msgType, sent)
		}
	}
}

// Stop closes every client and stops the hub loop.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.stopped
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(ctx context.Context, msgType string, data any) {
	payload, err := encode(msgType, data, infrastructure.GetTraceID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "error marshaling message",
			slog.String("message_type", msgType),
			slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- outbound{msgType: msgType, data: payload}:
	default:
		h.metrics.dropped(ctx, "broadcast")
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped", slog.String("message_type", msgType))
	}
}

// Notify forwards pipeline progress events to the clients.
func (h *Hub) Notify(ctx context.Context, ev pipeline.Event) {
	h.Broadcast(ctx, ev.Type, ev)
}

func encode(msgType string, data any, traceID string) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Data: data, Timestamp: time.Now(), TraceID: traceID})
}
