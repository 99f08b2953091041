package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pollstream/internal/service/auth"
	"pollstream/internal/ws"
	"pollstream/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const wsTestSecret = "ws-test-secret"

func newWSTestServer(t *testing.T) (*httptest.Server, *ws.Hub) {
	t.Helper()

	log := &logger.Logger{Logger: zap.NewNop()}
	hub := ws.NewHub(log)
	authService := auth.NewService(wsTestSecret, nil, log)
	h := NewWSHandler(hub, authService, []string{"*"}, log)

	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + query
}

func TestServeRejectsInvalidToken(t *testing.T) {
	srv, hub := newWSTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=not-a-jwt"), nil)
	require.NoError(t, err, "upgrade happens before token validation")
	defer conn.Close()

	// The server closes immediately with the authentication-failure code
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close frame, got %v", err)
	assert.Equal(t, 4401, closeErr.Code)

	total, _ := hub.Stats()
	assert.Equal(t, 0, total)
}

func TestServeBindsValidToken(t *testing.T) {
	srv, hub := newWSTestServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "voter-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(wsTestSecret))
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token="+signed), nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame is the greeting; by then the connection is registered
	var frame struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connected", frame.Type)

	total, _ := hub.Stats()
	assert.Equal(t, 1, total)
}

func TestServeAllowsAnonymousViewers(t *testing.T) {
	srv, hub := newWSTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "connected", frame.Type)

	total, _ := hub.Stats()
	assert.Equal(t, 1, total)
}
