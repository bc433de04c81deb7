package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// HubMetrics records connection and broadcast metrics of a hub.
type HubMetrics struct {
	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	messagesSent       metric.Int64Counter
	droppedMessages    metric.Int64Counter
}

// NewHubMetrics creates the instruments on meter. A nil meter records nothing.
func NewHubMetrics(meter metric.Meter) (*HubMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("websocket")
	}
	m := &HubMetrics{}
	var err error
	if m.connectionsTotal, err = meter.Int64Counter("websocket_connections",
		metric.WithDescription("WebSocket connections accepted")); err != nil {
		return nil, err
	}
	if m.connectionsActive, err = meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Open WebSocket connections")); err != nil {
		return nil, err
	}
	if m.connectionDuration, err = meter.Float64Histogram("websocket_connection_duration",
		metric.WithDescription("Lifetime of WebSocket connections"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.messagesSent, err = meter.Int64Counter("websocket_messages_sent",
		metric.WithDescription("Messages queued to clients")); err != nil {
		return nil, err
	}
	if m.droppedMessages, err = meter.Int64Counter("websocket_messages_dropped",
		metric.WithDescription("Messages dropped because a queue was full")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HubMetrics) connected(ctx context.Context) {
	m.connectionsTotal.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

func (m *HubMetrics) disconnected(ctx context.Context, lifetime time.Duration) {
	m.connectionsActive.Add(ctx, -1)
	m.connectionDuration.Record(ctx, lifetime.Seconds())
}

func (m *HubMetrics) sent(ctx context.Context, msgType string, n int) {
	m.messagesSent.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", msgType)))
}

func (m *HubMetrics) dropped(ctx context.Context, where string) {
	m.droppedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", where)))
}
