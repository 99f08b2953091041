package ws

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// MessageKind is the tag of an inbound frame. The set is closed; dispatch
// switches over it exhaustively so a new kind cannot silently fall through.
type MessageKind string

const (
	KindSubscribe   MessageKind = "subscribe"
	KindUnsubscribe MessageKind = "unsubscribe"
	KindPing        MessageKind = "ping"
)

// maxMessageSize bounds inbound frames. Anything a client legitimately
// sends fits well under this.
const maxMessageSize = 4096

// kindPattern is the defensive lexical bound on the tag field. Parsing
// rejects tags outside it before any interpretation happens.
var kindPattern = regexp.MustCompile(`^[A-Za-z_]+$`)

// InboundMessage is a parsed client frame
type InboundMessage struct {
	Kind   MessageKind
	PollID string
}

type rawInbound struct {
	Type   string `json:"type"`
	PollID string `json:"poll_id"`
}

// ParseInbound validates and decodes a client frame. Errors describe what
// the client got wrong and are safe to echo back.
func ParseInbound(data []byte) (*InboundMessage, error) {
	if len(data) > maxMessageSize {
		return nil, fmt.Errorf("message exceeds %d bytes", maxMessageSize)
	}

	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed JSON frame")
	}

	if raw.Type == "" || !kindPattern.MatchString(raw.Type) {
		return nil, fmt.Errorf("invalid message type")
	}

	switch MessageKind(raw.Type) {
	case KindSubscribe:
		if _, err := uuid.Parse(raw.PollID); err != nil {
			return nil, fmt.Errorf("subscribe requires a valid poll_id")
		}
		return &InboundMessage{Kind: KindSubscribe, PollID: raw.PollID}, nil
	case KindUnsubscribe:
		return &InboundMessage{Kind: KindUnsubscribe}, nil
	case KindPing:
		return &InboundMessage{Kind: KindPing}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", raw.Type)
	}
}

// Outbound frame types

// ConnectedFrame greets a client after a successful handshake
type ConnectedFrame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionConfirmedFrame acknowledges a subscribe
type SubscriptionConfirmedFrame struct {
	Type      string    `json:"type"`
	PollID    string    `json:"poll_id"`
	Timestamp time.Time `json:"timestamp"`
}

// VoteUpdateFrame carries fresh tallies to a poll's subscribers
type VoteUpdateFrame struct {
	Type       string         `json:"type"`
	PollID     string         `json:"poll_id"`
	VoteCounts map[string]int `json:"vote_counts"`
	TotalVotes int            `json:"total_votes"`
	IsExpired  bool           `json:"is_expired"`
	Timestamp  time.Time      `json:"timestamp"`
}

// PongFrame answers an application-level ping
type PongFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorFrame reports a rejected inbound frame without closing the
// connection
type ErrorFrame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func newConnectedFrame(message string) ConnectedFrame {
	return ConnectedFrame{Type: "connected", Message: message, Timestamp: time.Now().UTC()}
}

func newSubscriptionConfirmedFrame(pollID string) SubscriptionConfirmedFrame {
	return SubscriptionConfirmedFrame{Type: "subscription_confirmed", PollID: pollID, Timestamp: time.Now().UTC()}
}

// NewVoteUpdateFrame builds a tally broadcast payload; the hub stamps the
// server timestamp at send time
func NewVoteUpdateFrame(pollID string, voteCounts map[string]int, totalVotes int, isExpired bool) VoteUpdateFrame {
	return VoteUpdateFrame{
		Type:       "vote_update",
		PollID:     pollID,
		VoteCounts: voteCounts,
		TotalVotes: totalVotes,
		IsExpired:  isExpired,
	}
}

func newPongFrame() PongFrame {
	return PongFrame{Type: "pong", Timestamp: time.Now().UTC()}
}

func newErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message, Timestamp: time.Now().UTC()}
}

func marshalFrame(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
