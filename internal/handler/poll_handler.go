package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"pollstream/internal/domain"
	"pollstream/internal/middleware"
	"pollstream/internal/service"
	"pollstream/pkg/errors"
	"pollstream/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type PollHandler struct {
	pollService *service.PollService
	logger      *logger.Logger
}

func NewPollHandler(pollService *service.PollService, log *logger.Logger) *PollHandler {
	return &PollHandler{
		pollService: pollService,
		logger:      log,
	}
}

// pollResponse is the poll representation with its derived state. Results
// are embedded only when the visibility rule allows them.
type pollResponse struct {
	*domain.Poll
	Status  domain.PollStatus   `json:"status"`
	Options []domain.Option     `json:"options,omitempty"`
	Results *domain.TallyResult `json:"results,omitempty"`
}

func newPollResponse(poll *domain.Poll, options []domain.Option) pollResponse {
	return pollResponse{
		Poll:    poll,
		Status:  poll.Status(time.Now()),
		Options: options,
	}
}

// Create handles POST /api/polls
func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil {
		respondError(w, errors.NewAuthenticationError("authentication required"), h.logger)
		return
	}

	var req domain.CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("invalid request body", nil), h.logger)
		return
	}

	poll, options, err := h.pollService.Create(r.Context(), identity, &req)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusCreated, newPollResponse(poll, options))
}

// Get handles GET /api/polls/{pollID}
func (h *PollHandler) Get(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")

	poll, options, results, err := h.pollService.Get(r.Context(), pollID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	resp := newPollResponse(poll, options)
	resp.Results = results
	respondJSON(w, http.StatusOK, resp)
}

// Results handles GET /api/polls/{pollID}/results
func (h *PollHandler) Results(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "pollID")

	result, err := h.pollService.Results(r.Context(), pollID)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Publish handles POST /api/polls/{pollID}/publish
func (h *PollHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.pollService.Publish)
}

// Unpublish handles POST /api/polls/{pollID}/unpublish
func (h *PollHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.pollService.Unpublish)
}

// Archive handles POST /api/polls/{pollID}/archive
func (h *PollHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.pollService.Archive)
}

// Extend handles POST /api/polls/{pollID}/extend
func (h *PollHandler) Extend(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil {
		respondError(w, errors.NewAuthenticationError("authentication required"), h.logger)
		return
	}

	pollID := chi.URLParam(r, "pollID")

	var req domain.ExtendPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("invalid request body", nil), h.logger)
		return
	}
	if req.ExpiresAt.IsZero() {
		respondError(w, errors.NewValidationError("expires_at is required", nil), h.logger)
		return
	}

	poll, err := h.pollService.Extend(r.Context(), pollID, identity.Sub, req.ExpiresAt)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, newPollResponse(poll, nil))
}

// UpdateQuestion handles PATCH /api/polls/{pollID}
func (h *PollHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil {
		respondError(w, errors.NewAuthenticationError("authentication required"), h.logger)
		return
	}

	pollID := chi.URLParam(r, "pollID")

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("invalid request body", nil), h.logger)
		return
	}

	poll, err := h.pollService.UpdateQuestion(r.Context(), pollID, identity.Sub, req.Question)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, newPollResponse(poll, nil))
}

func (h *PollHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, pollID, voterID string) (*domain.Poll, error)) {
	identity := middleware.Identity(r)
	if identity == nil {
		respondError(w, errors.NewAuthenticationError("authentication required"), h.logger)
		return
	}

	pollID := chi.URLParam(r, "pollID")

	poll, err := op(r.Context(), pollID, identity.Sub)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, newPollResponse(poll, nil))
}
