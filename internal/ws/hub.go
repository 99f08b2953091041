package ws

import (
	"sync"
	"time"

	"pollstream/pkg/logger"

	"github.com/google/uuid"
)

// Hub is the registry of live connections and the dispatcher of per-poll
// broadcasts. It is process-wide shared state; all maps are guarded by mu.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logger.Logger
}

// NewHub creates an empty connection registry
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Register adds a client to the registry
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.log.WithFields(map[string]interface{}{
		"conn_id":   c.ID,
		"voter_id":  c.VoterID,
		"anonymous": c.VoterID == "",
	}).Info("WebSocket connection registered")
}

// Unregister removes a client synchronously so no further sends are
// attempted against it, then releases its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c.ID]
	if present {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()

	if present {
		c.closeSend()
		h.log.WithField("conn_id", c.ID).Info("WebSocket connection removed")
	}
}

// Subscribe binds the client to a poll, replacing any prior subscription
func (h *Hub) Subscribe(c *Client, pollID string) {
	previous := c.setPoll(pollID)

	fields := map[string]interface{}{
		"conn_id": c.ID,
		"poll_id": pollID,
	}
	if previous != "" && previous != pollID {
		fields["replaced"] = previous
	}
	h.log.WithFields(fields).Debug("Subscription updated")
}

// Unsubscribe clears the client's subscription
func (h *Hub) Unsubscribe(c *Client) {
	c.setPoll("")
	h.log.WithField("conn_id", c.ID).Debug("Subscription cleared")
}

// Broadcast sends the frame to every client subscribed to pollID and
// returns the number of successful deliveries. A client whose send buffer
// is full (or that is mid-close) counts as a failure, is logged, and is
// dropped; other deliveries proceed.
func (h *Hub) Broadcast(pollID string, frame VoteUpdateFrame) int {
	if _, err := uuid.Parse(pollID); err != nil {
		h.log.WithField("poll_id", pollID).Warn("Broadcast rejected: malformed poll id")
		return 0
	}

	frame.Timestamp = time.Now().UTC()
	payload, err := marshalFrame(frame)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal vote update frame")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.pollSubscription() == pollID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	var stale []*Client
	for _, c := range targets {
		if c.trySend(payload) {
			delivered++
		} else {
			h.log.WithFields(map[string]interface{}{
				"conn_id": c.ID,
				"poll_id": pollID,
			}).Warn("Dropping slow or closed subscriber")
			stale = append(stale, c)
		}
	}

	for _, c := range stale {
		h.Unregister(c)
	}

	h.log.WithFields(map[string]interface{}{
		"poll_id":   pollID,
		"delivered": delivered,
		"targets":   len(targets),
	}).Debug("Vote update broadcast")

	return delivered
}

// BroadcastTally adapts a committed tally into a vote_update broadcast
func (h *Hub) BroadcastTally(pollID string, voteCounts map[string]int, totalVotes int, isExpired bool) int {
	return h.Broadcast(pollID, NewVoteUpdateFrame(pollID, voteCounts, totalVotes, isExpired))
}

// Stats reports total live connections and how many hold a subscription
func (h *Hub) Stats() (total, subscribed int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total = len(h.clients)
	for _, c := range h.clients {
		if c.pollSubscription() != "" {
			subscribed++
		}
	}
	return total, subscribed
}
