package handler

import (
	"net/http"
	"time"

	"pollstream/internal/service"
	"pollstream/internal/ws"
	"pollstream/pkg/logger"

	"github.com/gorilla/websocket"
)

// wsCloseAuthFailure is the close code sent when the handshake token is
// invalid or expired
const wsCloseAuthFailure = 4401

type WSHandler struct {
	hub         *ws.Hub
	authService service.AuthService
	upgrader    websocket.Upgrader
	logger      *logger.Logger
}

// NewWSHandler creates the WebSocket endpoint handler. Origins are checked
// against the same allow-list as the HTTP CORS layer.
func NewWSHandler(hub *ws.Hub, authService service.AuthService, allowedOrigins []string, log *logger.Logger) *WSHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &WSHandler{
		hub:         hub,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: log,
	}
}

// Serve handles GET /ws. The optional ?token= parameter binds the
// connection to a voter identity; an invalid token closes the connection
// immediately with an authentication-failure code. No token means an
// anonymous viewer, which still receives broadcasts.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	voterID := ""
	if token := r.URL.Query().Get("token"); token != "" {
		identity, err := h.authService.ValidateToken(r.Context(), token)
		if err != nil {
			h.logger.WithError(err).Debug("WebSocket handshake rejected: bad token")
			msg := websocket.FormatCloseMessage(wsCloseAuthFailure, "authentication failed")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
			conn.Close()
			return
		}
		voterID = identity.Sub
	}

	client := ws.NewClient(h.hub, conn, voterID, h.logger)
	h.hub.Register(client)
	client.Run()
}

// Status handles GET /api/ws/status: total live connections and how many
// hold an active subscription
func (h *WSHandler) Status(w http.ResponseWriter, r *http.Request) {
	total, subscribed := h.hub.Stats()
	respondJSON(w, http.StatusOK, map[string]int{
		"connections": total,
		"subscribed":  subscribed,
	})
}
