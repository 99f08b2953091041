package service

import (
	"context"
	"sync"
	"time"

	"pollstream/internal/domain"
	"pollstream/internal/ratelimit"
	"pollstream/internal/repository"
	"pollstream/pkg/logger"

	"go.uber.org/zap"
)

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func asVoter(sub string) *domain.VoterIdentity {
	return &domain.VoterIdentity{Sub: sub}
}

func asAdmin(sub string) *domain.VoterIdentity {
	return &domain.VoterIdentity{Sub: sub, Admin: true}
}

// allowAllLimiter never throttles; used where rate limiting is not under test
type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, ratelimit.Policy, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true}, nil
}

type fakePollRepo struct {
	mu      sync.Mutex
	polls   map[string]domain.Poll
	options map[string]domain.Option

	updatePublishedErr map[string]error
	autoArchiveDue     []domain.Poll
}

func newFakePollRepo() *fakePollRepo {
	return &fakePollRepo{
		polls:              make(map[string]domain.Poll),
		options:            make(map[string]domain.Option),
		updatePublishedErr: make(map[string]error),
	}
}

func (r *fakePollRepo) CreatePoll(_ context.Context, poll *domain.Poll, options []domain.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[poll.ID] = *poll
	for _, opt := range options {
		r.options[opt.ID] = opt
	}
	return nil
}

func (r *fakePollRepo) GetPoll(_ context.Context, pollID string) (*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	poll, ok := r.polls[pollID]
	if !ok {
		return nil, nil
	}
	return &poll, nil
}

func (r *fakePollRepo) GetOption(_ context.Context, optionID string) (*domain.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	opt, ok := r.options[optionID]
	if !ok {
		return nil, nil
	}
	return &opt, nil
}

func (r *fakePollRepo) GetOptions(_ context.Context, pollID string) ([]domain.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var opts []domain.Option
	for _, opt := range r.options {
		if opt.PollID == pollID {
			opts = append(opts, opt)
		}
	}
	return opts, nil
}

func (r *fakePollRepo) UpdatePublished(_ context.Context, pollID string, published bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updatePublishedErr[pollID]; err != nil {
		return err
	}
	poll, ok := r.polls[pollID]
	if !ok {
		return nil
	}
	poll.IsPublished = published
	r.polls[pollID] = poll
	return nil
}

func (r *fakePollRepo) UpdateExpiry(_ context.Context, pollID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	poll, ok := r.polls[pollID]
	if !ok {
		return nil
	}
	poll.ExpiresAt = &expiresAt
	r.polls[pollID] = poll
	return nil
}

func (r *fakePollRepo) UpdateQuestion(_ context.Context, pollID, question string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	poll, ok := r.polls[pollID]
	if !ok {
		return nil
	}
	poll.Question = question
	r.polls[pollID] = poll
	return nil
}

func (r *fakePollRepo) ListAutoArchiveDue(context.Context, time.Time) ([]domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoArchiveDue, nil
}

var _ repository.PollRepository = (*fakePollRepo)(nil)

// fakeVoteRepo enforces the same (voter, poll) uniqueness the database
// constraint does, under a lock, so concurrent inserts race exactly like
// they do against postgres
type fakeVoteRepo struct {
	mu       sync.Mutex
	votes    map[string]domain.Vote // voterID:pollID
	pollRepo *fakePollRepo
}

func newFakeVoteRepo(pollRepo *fakePollRepo) *fakeVoteRepo {
	return &fakeVoteRepo{
		votes:    make(map[string]domain.Vote),
		pollRepo: pollRepo,
	}
}

func voteKey(voterID, pollID string) string {
	return voterID + ":" + pollID
}

func (r *fakeVoteRepo) InsertVote(_ context.Context, vote *domain.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := voteKey(vote.VoterID, vote.PollID)
	if _, exists := r.votes[key]; exists {
		return repository.ErrDuplicateVote
	}
	vote.CreatedAt = time.Now()
	r.votes[key] = *vote
	return nil
}

func (r *fakeVoteRepo) GetTally(ctx context.Context, pollID string) ([]domain.OptionCount, int, error) {
	options, err := r.pollRepo.GetOptions(ctx, pollID)
	if err != nil {
		return nil, 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byOption := make(map[string]int)
	total := 0
	for _, vote := range r.votes {
		if vote.PollID == pollID {
			byOption[vote.OptionID]++
			total++
		}
	}

	counts := make([]domain.OptionCount, 0, len(options))
	for _, opt := range options {
		counts = append(counts, domain.OptionCount{
			OptionID: opt.ID,
			Text:     opt.Text,
			Count:    byOption[opt.ID],
		})
	}
	return counts, total, nil
}

func (r *fakeVoteRepo) HasVotes(_ context.Context, pollID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vote := range r.votes {
		if vote.PollID == pollID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeVoteRepo) GetVoteByVoter(_ context.Context, voterID, pollID string) (*domain.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vote, ok := r.votes[voteKey(voterID, pollID)]
	if !ok {
		return nil, nil
	}
	return &vote, nil
}

var _ repository.VoteRepository = (*fakeVoteRepo)(nil)

// fakeBroadcaster records fan-out calls and signals each one on a channel
type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
	done  chan struct{}
}

type broadcastCall struct {
	pollID     string
	voteCounts map[string]int
	totalVotes int
	isExpired  bool
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{done: make(chan struct{}, 16)}
}

func (b *fakeBroadcaster) BroadcastTally(pollID string, voteCounts map[string]int, totalVotes int, isExpired bool) int {
	b.mu.Lock()
	b.calls = append(b.calls, broadcastCall{pollID, voteCounts, totalVotes, isExpired})
	b.mu.Unlock()
	b.done <- struct{}{}
	return 1
}

func (b *fakeBroadcaster) waitForCall(timeout time.Duration) (broadcastCall, bool) {
	select {
	case <-b.done:
	case <-time.After(timeout):
		return broadcastCall{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1], true
}
