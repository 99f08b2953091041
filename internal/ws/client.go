package ws

import (
	"sync"
	"time"

	"pollstream/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Liveness timing. Variables so tests can compress the schedule.
var (
	// writeWait bounds a single frame write
	writeWait = 10 * time.Second

	// pingPeriod is the liveness ping interval. pongWait spans two ping
	// periods plus slack: a client that misses two consecutive pings blows
	// the read deadline and is torn down.
	pingPeriod = 30 * time.Second
	pongWait   = 2*pingPeriod + 5*time.Second
)

// sendBufferSize is the per-client outbound queue. A full queue means the
// client cannot keep up and is dropped rather than blocking the dispatcher.
const sendBufferSize = 32

// Client is one live WebSocket session. VoterID is empty for anonymous
// viewers, which still receive broadcasts.
type Client struct {
	ID      string
	VoterID string

	hub  *Hub
	conn *websocket.Conn
	log  *logger.Logger

	send     chan []byte
	sendOnce sync.Once

	mu     sync.Mutex
	pollID string
}

// NewClient wraps an upgraded connection. The caller registers it with the
// hub and starts the pumps.
func NewClient(hub *Hub, conn *websocket.Conn, voterID string, log *logger.Logger) *Client {
	return &Client{
		ID:      uuid.NewString(),
		VoterID: voterID,
		hub:     hub,
		conn:    conn,
		log:     log,
		send:    make(chan []byte, sendBufferSize),
	}
}

func (c *Client) setPoll(pollID string) (previous string) {
	c.mu.Lock()
	previous = c.pollID
	c.pollID = pollID
	c.mu.Unlock()
	return previous
}

func (c *Client) pollSubscription() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollID
}

// trySend queues a payload without blocking. Returns false when the buffer
// is full or the channel is already closed.
func (c *Client) trySend(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend releases the send channel exactly once, which terminates the
// write pump
func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// sendFrame marshals and queues an outbound frame
func (c *Client) sendFrame(frame interface{}) {
	payload, err := marshalFrame(frame)
	if err != nil {
		c.log.WithError(err).Error("Failed to marshal outbound frame")
		return
	}
	if !c.trySend(payload) {
		c.log.WithField("conn_id", c.ID).Warn("Outbound frame dropped: send buffer full")
	}
}

// Run greets the client and drives both pumps until the connection dies
func (c *Client) Run() {
	c.sendFrame(newConnectedFrame("connected to live poll updates"))
	go c.writePump()
	c.readPump()
}

// readPump consumes inbound frames until the connection closes or the read
// deadline (missed pongs) fires. It owns connection teardown.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithField("conn_id", c.ID).WithError(err).Warn("WebSocket read failed")
			}
			return
		}

		msg, err := ParseInbound(data)
		if err != nil {
			// Malformed frames get an error response; the connection stays up
			c.sendFrame(newErrorFrame(err.Error()))
			continue
		}

		c.dispatch(msg)
	}
}

// dispatch handles one parsed frame. The switch is exhaustive over
// MessageKind; ParseInbound rejects anything else.
func (c *Client) dispatch(msg *InboundMessage) {
	switch msg.Kind {
	case KindSubscribe:
		c.hub.Subscribe(c, msg.PollID)
		c.sendFrame(newSubscriptionConfirmedFrame(msg.PollID))
	case KindUnsubscribe:
		c.hub.Unsubscribe(c)
	case KindPing:
		c.sendFrame(newPongFrame())
	}
}

// writePump flushes the send queue and emits liveness pings on a fixed
// period
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
