package service

import (
	"context"
	"time"

	"pollstream/internal/domain"
	"pollstream/internal/ratelimit"
	"pollstream/internal/repository"
	"pollstream/pkg/errors"
	"pollstream/pkg/logger"

	"github.com/google/uuid"
)

// VoteService is the vote ledger: it accepts at most one vote per
// (voter, poll) and hands the fresh tally to the broadcaster. Uniqueness is
// delegated entirely to the storage constraint; concurrent submissions for
// the same key race on the insert and exactly one wins.
type VoteService struct {
	pollRepo    repository.PollRepository
	voteRepo    repository.VoteRepository
	cache       *CacheService
	limiter     ratelimit.Limiter
	broadcaster TallyBroadcaster
	logger      *logger.Logger
}

// NewVoteService creates a new vote service
func NewVoteService(pollRepo repository.PollRepository, voteRepo repository.VoteRepository, cache *CacheService, limiter ratelimit.Limiter, broadcaster TallyBroadcaster, log *logger.Logger) *VoteService {
	return &VoteService{
		pollRepo:    pollRepo,
		voteRepo:    voteRepo,
		cache:       cache,
		limiter:     limiter,
		broadcaster: broadcaster,
		logger:      log,
	}
}

// SubmitVote runs the full ingestion path: rate limits, lifecycle gating,
// the atomic insert, then tally refresh and fan-out. The caller gets the
// tally as soon as the insert commits; broadcast happens off the response
// path.
func (s *VoteService) SubmitVote(ctx context.Context, pollID, optionID string, voter *domain.VoterIdentity) (*domain.TallyResult, error) {
	if _, err := uuid.Parse(pollID); err != nil {
		return nil, errors.NewValidationError("malformed poll id", nil)
	}
	if _, err := uuid.Parse(optionID); err != nil {
		return nil, errors.NewValidationError("malformed option id", nil)
	}

	if err := s.checkRateLimits(ctx, pollID, voter); err != nil {
		return nil, err
	}

	poll, err := s.pollRepo.GetPoll(ctx, pollID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load poll", err)
	}
	if poll == nil {
		return nil, errors.NewNotFoundError("poll not found")
	}

	if !poll.CanVote(time.Now()) {
		return nil, errors.NewInvalidStateError("poll is not accepting votes")
	}

	option, err := s.pollRepo.GetOption(ctx, optionID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load option", err)
	}
	if option == nil || option.PollID != pollID {
		return nil, errors.NewNotFoundError("option not found on this poll")
	}

	vote := &domain.Vote{
		ID:       uuid.NewString(),
		VoterID:  voter.Sub,
		PollID:   pollID,
		OptionID: optionID,
	}

	// The insert is the arbiter of "already voted"; no existence check
	// precedes it
	if err := s.voteRepo.InsertVote(ctx, vote); err != nil {
		if err == repository.ErrDuplicateVote {
			return nil, errors.NewConflictError("you have already voted on this poll")
		}
		return nil, errors.NewInternalError("failed to record vote", err)
	}

	s.cache.InvalidateResults(ctx, pollID)

	counts, total, err := s.voteRepo.GetTally(ctx, pollID)
	if err != nil {
		// The vote committed; surface the tally failure rather than
		// pretending the vote failed
		return nil, errors.NewInternalError("vote recorded but tally unavailable", err)
	}

	now := time.Now()
	result := &domain.TallyResult{
		PollID:     pollID,
		Options:    counts,
		TotalVotes: total,
		PollStatus: poll.Status(now),
		ExpiresAt:  poll.ExpiresAt,
		UpdatedAt:  now,
	}
	result.ComputePercentages()

	s.logger.WithFields(map[string]interface{}{
		"poll_id":     pollID,
		"option_id":   optionID,
		"total_votes": total,
	}).Info("Vote recorded")

	// Fan-out proceeds independently of the voter's response
	go s.broadcastTally(poll, result)

	return result, nil
}

// GetMyVote returns the caller's vote on a poll, if any
func (s *VoteService) GetMyVote(ctx context.Context, pollID, voterID string) (*domain.Vote, error) {
	if _, err := uuid.Parse(pollID); err != nil {
		return nil, errors.NewValidationError("malformed poll id", nil)
	}

	vote, err := s.voteRepo.GetVoteByVoter(ctx, voterID, pollID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load vote", err)
	}
	return vote, nil
}

// checkRateLimits applies the vote policies. Exemption is decided here on
// the authenticated identity, before the compound window key is built, so
// admins are exempt from the per-poll window too.
func (s *VoteService) checkRateLimits(ctx context.Context, pollID string, voter *domain.VoterIdentity) error {
	checks := []struct {
		policy   ratelimit.Policy
		identity string
	}{
		{ratelimit.PolicyVoteGlobal, voter.Sub},
		{ratelimit.PolicyVotePerPoll, ratelimit.VotePollIdentity(voter.Sub, pollID)},
	}

	for _, check := range checks {
		if check.policy.Exempts(voter.Admin) {
			continue
		}
		decision, err := s.limiter.Allow(ctx, check.policy, check.identity)
		if err != nil {
			return errors.NewInternalError("failed to check rate limit", err)
		}
		if !decision.Allowed {
			return errors.NewRateLimitError("too many votes, slow down", decision.RetryAfter)
		}
	}
	return nil
}

func (s *VoteService) broadcastTally(poll *domain.Poll, result *domain.TallyResult) {
	if s.broadcaster == nil {
		return
	}

	voteCounts := make(map[string]int, len(result.Options))
	for _, oc := range result.Options {
		voteCounts[oc.OptionID] = oc.Count
	}

	delivered := s.broadcaster.BroadcastTally(poll.ID, voteCounts, result.TotalVotes, poll.IsExpired(time.Now()))

	s.logger.WithFields(map[string]interface{}{
		"poll_id":   poll.ID,
		"delivered": delivered,
	}).Debug("Tally update dispatched")
}
