package service

import (
	"context"

	"pollstream/internal/domain"
)

// AuthService validates handshake/bearer tokens into a stable voter
// identity
type AuthService interface {
	ValidateToken(ctx context.Context, token string) (*domain.VoterIdentity, error)
}

// TallyBroadcaster fans a committed tally out to a poll's live subscribers
// and reports how many deliveries succeeded
type TallyBroadcaster interface {
	BroadcastTally(pollID string, voteCounts map[string]int, totalVotes int, isExpired bool) int
}
