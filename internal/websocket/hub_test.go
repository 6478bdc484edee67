package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return hub, conn
}

func TestHub_Broadcast(t *testing.T) {
	hub, conn := startHub(t)

	require.NoError(t, hub.Broadcast(TypeTasksProgress, map[string]int{"count": 2}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeTasksProgress, msg.Type)
	assert.JSONEq(t, `{"count":2}`, string(msg.Payload))
	assert.NotEmpty(t, msg.Timestamp)
}

func TestHub_RefreshRequest(t *testing.T) {
	hub, conn := startHub(t)

	var calls atomic.Int32
	hub.SetRefreshHandler(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"tasks:refresh"}`)))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RefreshFailureIsBroadcast(t *testing.T) {
	hub, conn := startHub(t)
	hub.SetRefreshHandler(func(ctx context.Context) error {
		return errors.New("remote unreachable")
	})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"tasks:refresh"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "remote unreachable")
}

func TestHub_BroadcastBacklog(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, hub.Broadcast(TypeTasksProgress, nil))
	}
	assert.ErrorIs(t, hub.Broadcast(TypeTasksProgress, nil), ErrBacklog)
}
