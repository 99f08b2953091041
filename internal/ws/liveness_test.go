package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compressTiming shrinks the ping schedule so a missed-pong teardown fits in
// a test run
func compressTiming(t *testing.T) {
	t.Helper()

	prevWrite, prevPing, prevPong := writeWait, pingPeriod, pongWait
	writeWait = time.Second
	pingPeriod = 20 * time.Millisecond
	pongWait = 2*pingPeriod + 10*time.Millisecond

	t.Cleanup(func() {
		writeWait, pingPeriod, pongWait = prevWrite, prevPing, prevPong
	})
}

// startWSServer runs a server that registers each upgraded connection with
// the hub and drives its pumps, like the production handler does
func startWSServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, "", nopTestLogger())
		hub.Register(client)
		client.Run()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMissedPongsTearDownConnection(t *testing.T) {
	compressTiming(t)

	hub := testHub()
	srv := startWSServer(t, hub)
	conn := dialWS(t, srv)

	// Swallow pings instead of answering; the default handler would pong
	conn.SetPingHandler(func(string) error { return nil })
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "poll_id": pollOne}))
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		_, subscribed := hub.Stats()
		return subscribed == 1
	}, time.Second, 5*time.Millisecond, "subscription never landed")

	// The read deadline fires after two unanswered pings and the registry
	// entry goes with it
	require.Eventually(t, func() bool {
		total, _ := hub.Stats()
		return total == 0
	}, 2*time.Second, 5*time.Millisecond, "unresponsive connection was not removed")

	// A torn-down connection is not a broadcast target
	delivered := hub.Broadcast(pollOne, NewVoteUpdateFrame(pollOne, nil, 0, false))
	assert.Equal(t, 0, delivered)
}

func TestResponsiveConnectionSurvivesPings(t *testing.T) {
	compressTiming(t)

	hub := testHub()
	srv := startWSServer(t, hub)
	conn := dialWS(t, srv)

	// Default ping handler answers with pongs; reading drives it
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		total, _ := hub.Stats()
		return total == 1
	}, time.Second, 5*time.Millisecond)

	// Several ping periods later the connection is still registered
	time.Sleep(5 * pingPeriod)
	total, _ := hub.Stats()
	assert.Equal(t, 1, total)
}
