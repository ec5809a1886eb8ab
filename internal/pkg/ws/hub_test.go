package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/autotag_server/internal/pkg/pubsub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newTeamServer 每个连接以 ?team= 注册到 hub，客户端断开后注销
func newTeamServer(t *testing.T, hub *Hub) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{TeamID: r.URL.Query().Get("team"), Conn: conn}
		hub.Register(client)
		go func() {
			defer hub.Unregister(client)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type fakeEvents struct {
	events []*pubsub.JobEvent
}

func (f *fakeEvents) Subscribe(ctx context.Context, handler func(*pubsub.JobEvent)) error {
	for _, e := range f.events {
		handler(e)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHub_Empty(t *testing.T) {
	hub := NewHub()

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.IsOnline("team-1"))
	assert.NoError(t, hub.SendToTeam("team-1", &Message{Type: "test"}))
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	url := newTeamServer(t, hub)

	conn := dial(t, url+"?team=team-1")
	dial(t, url+"?team=team-1")
	dial(t, url+"?team=team-2")

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 3 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline("team-1"))
	assert.True(t, hub.IsOnline("team-2"))
	assert.False(t, hub.IsOnline("team-3"))

	conn.Close()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline("team-1"))
}

func TestHub_SendToTeamOnlyReachesThatTeam(t *testing.T) {
	hub := NewHub()
	url := newTeamServer(t, hub)

	mine := dial(t, url+"?team=team-1")
	other := dial(t, url+"?team=team-2")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.SendToTeam("team-1", &Message{Type: "job_completed", Data: map[string]string{"job_id": "j-1"}}))

	mine.SetReadDeadline(time.Now().Add(time.Second))
	_, received, err := mine.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(received), "job_completed")
	assert.Contains(t, string(received), "j-1")

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "other team must not receive the event")
}

func TestHub_RunForwardsJobEvents(t *testing.T) {
	hub := NewHub()
	url := newTeamServer(t, hub)

	conn := dial(t, url+"?team=team-1")
	require.Eventually(t, func() bool { return hub.IsOnline("team-1") }, time.Second, 10*time.Millisecond)

	source := &fakeEvents{events: []*pubsub.JobEvent{
		{Type: pubsub.EventJobFailed, JobID: "j-9", TeamID: "team-1", Status: "failed", Error: "boom"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx, source) }()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, received, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(received), `"type":"job_failed"`)
	assert.Contains(t, string(received), "j-9")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
