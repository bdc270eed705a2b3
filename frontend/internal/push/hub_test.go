package push

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(hub.Handler(func(r *http.Request) (string, error) {
		session := r.URL.Query().Get("session")
		if session == "" {
			return "", errors.New("session not found")
		}
		return session, nil
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesOnlyTheSession(t *testing.T) {
	hub := NewHub(nil)
	srv := startHub(t, hub)

	alice := dial(t, srv, "s1")
	bob := dial(t, srv, "s2")
	require.Eventually(t, func() bool { return hub.Clients("s1") == 1 && hub.Clients("s2") == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish("s1", map[string]string{"kind": "rendered"})

	_ = alice.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := alice.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"rendered"}`, string(msg))

	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "other sessions receive nothing")
}

func TestCloseSessionDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	srv := startHub(t, hub)

	conn := dial(t, srv, "s1")
	require.Eventually(t, func() bool { return hub.Clients("s1") == 1 }, time.Second, 10*time.Millisecond)

	hub.CloseSession("s1")
	assert.Zero(t, hub.Clients("s1"))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestClientLeavingUnsubscribes(t *testing.T) {
	hub := NewHub(nil)
	srv := startHub(t, hub)

	conn := dial(t, srv, "s1")
	require.Eventually(t, func() bool { return hub.Clients("s1") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.Clients("s1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestUnknownSessionIsRejected(t *testing.T) {
	srv := startHub(t, NewHub(nil))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAllowedOrigins(t *testing.T) {
	hub := NewHub([]string{"https://client.example"})
	srv := startHub(t, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=s1"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://client.example"}})
	require.NoError(t, err)
	conn.Close()
}
