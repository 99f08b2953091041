package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"pollstream/internal/domain"
	"pollstream/internal/ratelimit"
	"pollstream/internal/repository"
	"pollstream/pkg/errors"
	"pollstream/pkg/logger"

	"github.com/google/uuid"
)

const (
	minOptions     = 2
	maxOptions     = 10
	maxQuestionLen = 500
	maxOptionLen   = 200
)

// PollService owns the poll lifecycle: creation, publish/unpublish,
// archive, deadline extension, and the background auto-archive sweep.
// Lifecycle state is always derived from stored fields, never stored.
type PollService struct {
	pollRepo repository.PollRepository
	voteRepo repository.VoteRepository
	cache    *CacheService
	limiter  ratelimit.Limiter
	logger   *logger.Logger

	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	stopSweep     chan struct{}
	mu            sync.Mutex
	isRunning     bool
}

// NewPollService creates a new poll service
func NewPollService(pollRepo repository.PollRepository, voteRepo repository.VoteRepository, cache *CacheService, limiter ratelimit.Limiter, log *logger.Logger, sweepInterval time.Duration) *PollService {
	return &PollService{
		pollRepo:      pollRepo,
		voteRepo:      voteRepo,
		cache:         cache,
		limiter:       limiter,
		logger:        log,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
	}
}

// Create validates and persists a new poll with its option set. Published
// polls are Active immediately; otherwise Draft.
func (s *PollService) Create(ctx context.Context, creator *domain.VoterIdentity, req *domain.CreatePollRequest) (*domain.Poll, []domain.Option, error) {
	if !ratelimit.PolicyPollCreate.Exempts(creator.Admin) {
		decision, err := s.limiter.Allow(ctx, ratelimit.PolicyPollCreate, creator.Sub)
		if err != nil {
			return nil, nil, errors.NewInternalError("failed to check rate limit", err)
		}
		if !decision.Allowed {
			return nil, nil, errors.NewRateLimitError("too many polls created, slow down", decision.RetryAfter)
		}
	}

	if err := validateCreateRequest(req); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	poll := &domain.Poll{
		ID:                     uuid.NewString(),
		Question:               strings.TrimSpace(req.Question),
		CreatorID:              creator.Sub,
		IsPublished:            req.Publish,
		ExpiresAt:              req.ExpiresAt,
		AllowVotingAfterExpiry: req.AllowVotingAfterExpiry,
		ShowResultsAfterExpiry: req.ShowResultsAfterExpiry,
		AutoArchive:            req.AutoArchive,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	options := make([]domain.Option, 0, len(req.Options))
	for _, text := range req.Options {
		options = append(options, domain.Option{
			ID:     uuid.NewString(),
			PollID: poll.ID,
			Text:   strings.TrimSpace(text),
		})
	}

	if err := s.pollRepo.CreatePoll(ctx, poll, options); err != nil {
		return nil, nil, errors.NewInternalError("failed to create poll", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"poll_id":   poll.ID,
		"creator":   creator.Sub,
		"published": poll.IsPublished,
		"options":   len(options),
	}).Info("Poll created")

	return poll, options, nil
}

// Get loads a poll with its option set and, when the visibility rule allows
// it, its current tallies. The tally is nil for a poll whose results are
// hidden.
func (s *PollService) Get(ctx context.Context, pollID string) (*domain.Poll, []domain.Option, *domain.TallyResult, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, nil, nil, err
	}

	options, err := s.pollRepo.GetOptions(ctx, pollID)
	if err != nil {
		return nil, nil, nil, errors.NewInternalError("failed to load options", err)
	}

	var result *domain.TallyResult
	if poll.CanViewResults(time.Now()) {
		result, err = s.cache.GetResultsWithCache(ctx, pollID, func(ctx context.Context, pollID string) (*domain.TallyResult, error) {
			return s.loadTally(ctx, poll)
		})
		if err != nil {
			return nil, nil, nil, err
		}
	}

	return poll, options, result, nil
}

// Publish transitions Draft → Active
func (s *PollService) Publish(ctx context.Context, pollID, voterID string) (*domain.Poll, error) {
	poll, err := s.getOwnedPoll(ctx, pollID, voterID)
	if err != nil {
		return nil, err
	}

	if poll.IsPublished {
		return nil, errors.NewInvalidStateError("poll is already published")
	}

	if err := s.pollRepo.UpdatePublished(ctx, pollID, true); err != nil {
		return nil, errors.NewInternalError("failed to publish poll", err)
	}
	poll.IsPublished = true
	poll.UpdatedAt = time.Now()
	s.cache.InvalidatePoll(ctx, pollID)

	s.logger.WithField("poll_id", pollID).Info("Poll published")
	return poll, nil
}

// Unpublish transitions Active → Draft
func (s *PollService) Unpublish(ctx context.Context, pollID, voterID string) (*domain.Poll, error) {
	poll, err := s.getOwnedPoll(ctx, pollID, voterID)
	if err != nil {
		return nil, err
	}

	if !poll.IsPublished {
		return nil, errors.NewInvalidStateError("poll is not published")
	}

	if err := s.pollRepo.UpdatePublished(ctx, pollID, false); err != nil {
		return nil, errors.NewInternalError("failed to unpublish poll", err)
	}
	poll.IsPublished = false
	poll.UpdatedAt = time.Now()
	s.cache.InvalidatePoll(ctx, pollID)

	s.logger.WithField("poll_id", pollID).Info("Poll unpublished")
	return poll, nil
}

// Archive transitions Expired → Archived. Only legal while the poll is
// published and past its deadline.
func (s *PollService) Archive(ctx context.Context, pollID, voterID string) (*domain.Poll, error) {
	poll, err := s.getOwnedPoll(ctx, pollID, voterID)
	if err != nil {
		return nil, err
	}

	return s.archivePoll(ctx, poll)
}

// Extend moves the deadline forward. Legal only while the poll is not yet
// expired; the new deadline must be in the future and strictly after the
// current one.
func (s *PollService) Extend(ctx context.Context, pollID, voterID string, newExpiry time.Time) (*domain.Poll, error) {
	poll, err := s.getOwnedPoll(ctx, pollID, voterID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if poll.IsExpired(now) {
		return nil, errors.NewInvalidStateError("cannot extend an expired poll")
	}
	if !newExpiry.After(now) {
		return nil, errors.NewValidationError("new expiry must be in the future", nil)
	}
	if poll.ExpiresAt != nil && !newExpiry.After(*poll.ExpiresAt) {
		return nil, errors.NewValidationError("new expiry must be after the current one", nil)
	}

	if err := s.pollRepo.UpdateExpiry(ctx, pollID, newExpiry); err != nil {
		return nil, errors.NewInternalError("failed to extend poll", err)
	}
	poll.ExpiresAt = &newExpiry
	poll.UpdatedAt = now
	s.cache.InvalidatePoll(ctx, pollID)

	s.logger.WithFields(map[string]interface{}{
		"poll_id":    pollID,
		"expires_at": newExpiry,
	}).Info("Poll deadline extended")
	return poll, nil
}

// UpdateQuestion changes the question text. The poll becomes immutable the
// moment its first vote lands.
func (s *PollService) UpdateQuestion(ctx context.Context, pollID, voterID, question string) (*domain.Poll, error) {
	poll, err := s.getOwnedPoll(ctx, pollID, voterID)
	if err != nil {
		return nil, err
	}

	question = strings.TrimSpace(question)
	if question == "" || len(question) > maxQuestionLen {
		return nil, errors.NewValidationError("question must be 1-500 characters", nil)
	}

	hasVotes, err := s.voteRepo.HasVotes(ctx, pollID)
	if err != nil {
		return nil, errors.NewInternalError("failed to check existing votes", err)
	}
	if hasVotes {
		return nil, errors.NewInvalidStateError("poll cannot be edited after votes are cast")
	}

	if err := s.pollRepo.UpdateQuestion(ctx, pollID, question); err != nil {
		return nil, errors.NewInternalError("failed to update question", err)
	}
	poll.Question = question
	poll.UpdatedAt = time.Now()
	s.cache.InvalidatePoll(ctx, pollID)

	return poll, nil
}

// Results returns tallies for a poll, gated by the result-visibility rule
// and fronted by the results cache
func (s *PollService) Results(ctx context.Context, pollID string) (*domain.TallyResult, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if !poll.CanViewResults(time.Now()) {
		return nil, errors.NewInvalidStateError("results are hidden after this poll expired")
	}

	return s.cache.GetResultsWithCache(ctx, pollID, func(ctx context.Context, pollID string) (*domain.TallyResult, error) {
		return s.loadTally(ctx, poll)
	})
}

// Start launches the background auto-archive sweep
func (s *PollService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	s.sweepTicker = time.NewTicker(s.sweepInterval)
	go s.sweepRoutine()

	s.isRunning = true
	s.logger.WithField("interval", s.sweepInterval.String()).Info("Poll sweep started")
	return nil
}

// Stop shuts the sweep down
func (s *PollService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.sweepTicker.Stop()
	close(s.stopSweep)

	s.isRunning = false
	s.logger.Info("Poll sweep stopped")
	return nil
}

func (s *PollService) sweepRoutine() {
	for {
		select {
		case <-s.sweepTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.SweepExpired(ctx)
			cancel()
		case <-s.stopSweep:
			return
		}
	}
}

// SweepExpired archives every published, expired poll that opted into
// auto-archiving. One poll's failure is logged and does not stop the rest
// of the batch. Returns the number archived.
func (s *PollService) SweepExpired(ctx context.Context) int {
	due, err := s.pollRepo.ListAutoArchiveDue(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("Auto-archive sweep failed to list polls")
		return 0
	}

	archived := 0
	for i := range due {
		poll := due[i]
		if _, err := s.archivePoll(ctx, &poll); err != nil {
			s.logger.WithField("poll_id", poll.ID).WithError(err).Warn("Failed to auto-archive poll")
			continue
		}
		archived++
	}

	if archived > 0 {
		s.logger.WithField("archived", archived).Info("Auto-archive sweep completed")
	}
	return archived
}

// archivePoll performs the Expired → Archived transition
func (s *PollService) archivePoll(ctx context.Context, poll *domain.Poll) (*domain.Poll, error) {
	now := time.Now()
	if poll.Status(now) != domain.PollStatusExpired {
		return nil, errors.NewInvalidStateError("only expired polls can be archived")
	}

	if err := s.pollRepo.UpdatePublished(ctx, poll.ID, false); err != nil {
		return nil, errors.NewInternalError("failed to archive poll", err)
	}
	poll.IsPublished = false
	poll.UpdatedAt = now
	poll.MarkArchived()
	s.cache.InvalidatePoll(ctx, poll.ID)

	s.logger.WithField("poll_id", poll.ID).Info("Poll archived")
	return poll, nil
}

// loadTally aggregates a poll's counts from storage
func (s *PollService) loadTally(ctx context.Context, poll *domain.Poll) (*domain.TallyResult, error) {
	counts, total, err := s.voteRepo.GetTally(ctx, poll.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load tally", err)
	}

	now := time.Now()
	result := &domain.TallyResult{
		PollID:     poll.ID,
		Options:    counts,
		TotalVotes: total,
		PollStatus: poll.Status(now),
		ExpiresAt:  poll.ExpiresAt,
		UpdatedAt:  now,
	}
	result.ComputePercentages()
	return result, nil
}

func (s *PollService) getPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	if _, err := uuid.Parse(pollID); err != nil {
		return nil, errors.NewValidationError("malformed poll id", nil)
	}

	poll, err := s.pollRepo.GetPoll(ctx, pollID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load poll", err)
	}
	if poll == nil {
		return nil, errors.NewNotFoundError("poll not found")
	}
	return poll, nil
}

func (s *PollService) getOwnedPoll(ctx context.Context, pollID, voterID string) (*domain.Poll, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.CreatorID != voterID {
		return nil, errors.NewAuthorizationError("only the poll creator can do this")
	}
	return poll, nil
}

func validateCreateRequest(req *domain.CreatePollRequest) error {
	question := strings.TrimSpace(req.Question)
	if question == "" || len(question) > maxQuestionLen {
		return errors.NewValidationError("question must be 1-500 characters", nil)
	}

	if len(req.Options) < minOptions || len(req.Options) > maxOptions {
		return errors.NewValidationError("polls need between 2 and 10 options", map[string]interface{}{
			"options": len(req.Options),
		})
	}

	seen := make(map[string]struct{}, len(req.Options))
	for _, text := range req.Options {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || len(trimmed) > maxOptionLen {
			return errors.NewValidationError("option text must be 1-200 characters", nil)
		}
		if _, dup := seen[trimmed]; dup {
			return errors.NewValidationError("option text must be unique within a poll", nil)
		}
		seen[trimmed] = struct{}{}
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return errors.NewValidationError("expiry must be in the future", nil)
	}

	return nil
}
