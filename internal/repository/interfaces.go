package repository

import (
	"context"
	"errors"
	"time"

	"pollstream/internal/domain"
)

// ErrDuplicateVote is returned when the votes table's uniqueness constraint
// on (voter_id, poll_id) rejects an insert. The insert is the arbiter of
// "already voted"; callers map this to a conflict, never retry.
var ErrDuplicateVote = errors.New("vote already recorded for this voter and poll")

// PollRepository persists polls and their option sets
type PollRepository interface {
	CreatePoll(ctx context.Context, poll *domain.Poll, options []domain.Option) error
	GetPoll(ctx context.Context, pollID string) (*domain.Poll, error)
	GetOption(ctx context.Context, optionID string) (*domain.Option, error)
	GetOptions(ctx context.Context, pollID string) ([]domain.Option, error)
	UpdatePublished(ctx context.Context, pollID string, published bool) error
	UpdateExpiry(ctx context.Context, pollID string, expiresAt time.Time) error
	UpdateQuestion(ctx context.Context, pollID, question string) error
	ListAutoArchiveDue(ctx context.Context, now time.Time) ([]domain.Poll, error)
}

// VoteRepository persists votes and aggregates tallies
type VoteRepository interface {
	InsertVote(ctx context.Context, vote *domain.Vote) error
	GetTally(ctx context.Context, pollID string) ([]domain.OptionCount, int, error)
	HasVotes(ctx context.Context, pollID string) (bool, error)
	GetVoteByVoter(ctx context.Context, voterID, pollID string) (*domain.Vote, error)
}
