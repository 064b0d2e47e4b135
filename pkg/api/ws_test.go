package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdesk/pkg/approval"
	"bizdesk/pkg/model"
)

func dialWS(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?token=" + token
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWSPushesEvents(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.user("alice"), env.user("bob")
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn := dialWS(t, ts, bob.Token)
	require.Eventually(t, func() bool { return env.srv.Hub.Connected(bob.User.ID) == 1 }, time.Second, 10*time.Millisecond)

	in := env.submit(alice.Token, approval.Step{Assignee: bob.User.ID})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev model.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, approval.EventTaskAssigned, ev.Type)
	assert.Equal(t, in.ID, ev.InstanceID)
	assert.Equal(t, in.Tasks[0].ID, ev.TaskID)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/instances/"+in.ID+"/urge", alice.Token, reasonRequest{Message: "ping"}, nil))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, approval.EventUrge, ev.Type)
	assert.Equal(t, "ping", ev.Message)

	_ = conn.Close()
	require.Eventually(t, func() bool { return env.srv.Hub.Connected(bob.User.ID) == 0 }, time.Second, 10*time.Millisecond)
}

func TestWSRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubPublishWithoutConnections(t *testing.T) {
	env := newTestEnv(t)
	assert.NotPanics(t, func() {
		env.srv.Hub.Publish("nobody", model.Event{Type: approval.EventUrge})
	})
	assert.Zero(t, env.srv.Hub.Connected("nobody"))
}

func TestHubPublishDoesNotBlockOnSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := hub.upgrader.Upgrade(w, r, nil)
		if assert.NoError(t, err) {
			conns <- c
		}
	}))
	defer ts.Close()

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer client.Close()

	// no writer goroutine, so nothing drains the queue
	stalled := newWSConn(<-conns)
	hub.register("bob", stalled)

	published := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+5; i++ {
			hub.Publish("bob", model.Event{Type: approval.EventUrge})
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a connection that is not draining")
	}
	assert.Zero(t, hub.Connected("bob"))
	assert.Len(t, stalled.out, sendBuffer)
}
