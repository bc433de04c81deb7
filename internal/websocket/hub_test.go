package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/infrastructure"
	"ethvaluation/internal/pipeline"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, nil)
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func decodeMessages(t *testing.T, msgs []mockMessage) []Message {
	t.Helper()
	var out []Message
	for _, m := range msgs {
		if m.Type != websocket.TextMessage {
			continue
		}
		var msg Message
		require.NoError(t, json.Unmarshal(m.Data, &msg))
		out = append(out, msg)
	}
	return out
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := startHub(t)
	client := NewClient(hub, newMockConnection(), "", nil)

	hub.Register(client)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	welcome := <-client.send
	var msg Message
	require.NoError(t, json.Unmarshal(welcome, &msg))
	assert.Equal(t, TypeConnection, msg.Type)

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	// Unregistering twice must not close the channel again.
	hub.Unregister(client)
	_, open := <-client.send
	assert.False(t, open)
}

func TestHub_NotifyBroadcastsRunEvents(t *testing.T) {
	hub := startHub(t)
	conn := newMockConnection()
	client := NewClient(hub, conn, "", nil)
	hub.Register(client)
	go client.WritePump()

	ctx := infrastructure.WithTraceID(context.Background(), "trace-1")
	step := &pipeline.StepState{ID: "ols", Name: "OLS", Status: pipeline.StepStatusCompleted}
	hub.Notify(ctx, pipeline.Event{Type: pipeline.EventStep, RunID: "run-1", Step: step, Timestamp: time.Now()})
	hub.Notify(ctx, pipeline.Event{Type: pipeline.EventRun, RunID: "run-1", Status: pipeline.RunStatusCompleted, Timestamp: time.Now()})

	var msgs []Message
	require.Eventually(t, func() bool {
		msgs = decodeMessages(t, conn.messages())
		return len(msgs) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, TypeConnection, msgs[0].Type)
	assert.Equal(t, TypeStepUpdate, msgs[1].Type)
	assert.Equal(t, "trace-1", msgs[1].TraceID)
	data, ok := msgs[1].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-1", data["run_id"])
	assert.Equal(t, TypeRunUpdate, msgs[2].Type)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	hub.Start()

	conn := newMockConnection()
	client := NewClient(hub, conn, "", nil)
	hub.Register(client)
	go client.WritePump()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Stop()
	hub.Stop()
	assert.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())

	// A stopped hub ignores late registrations.
	hub.Register(NewClient(hub, newMockConnection(), "", nil))
	hub.Broadcast(context.Background(), TypeRunUpdate, nil)
}

func TestClient_ReadPumpUnregistersOnError(t *testing.T) {
	hub := startHub(t)
	conn := newMockConnection()
	client := NewClient(hub, conn, "", nil)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()
	conn.queueRead(mockMessage{Type: websocket.TextMessage, Data: []byte(`{"type":"ping"}`)})
	conn.queueRead(mockMessage{Err: &websocket.CloseError{Code: websocket.CloseNormalClosure}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}
	assert.True(t, conn.isClosed())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, int64(maxMessageSize), conn.readLimit)
	assert.NotNil(t, conn.pongHandler)
}

func TestHandler_ServeHTTP(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, []string{"http://allowed.example"}, nil))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{name: "no origin", origin: ""},
		{name: "allowed origin", origin: "http://allowed.example"},
		{name: "foreign origin", origin: "http://evil.example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := make(map[string][]string)
			if tt.origin != "" {
				header["Origin"] = []string{tt.origin}
			}
			conn, _, err := websocket.DefaultDialer.Dial(url, header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			var msg Message
			require.NoError(t, conn.ReadJSON(&msg))
			assert.Equal(t, TypeConnection, msg.Type)
		})
	}
}
