package websocket

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"ethvaluation/internal/infrastructure"
)

// Handler upgrades HTTP requests and attaches the connections to a hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a handler accepting connections from allowedOrigins.
// Requests without an Origin header, such as non-browser clients, are
// accepted; "*" accepts every origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger.With(slog.String("component", "websocket.handler")),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(h.hub, NewConnectionWrapper(conn), infrastructure.GetTraceID(r.Context()), h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
