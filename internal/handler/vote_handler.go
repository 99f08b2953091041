package handler

import (
	"encoding/json"
	"net/http"

	"pollstream/internal/domain"
	"pollstream/internal/middleware"
	"pollstream/internal/service"
	"pollstream/pkg/errors"
	"pollstream/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type VoteHandler struct {
	voteService *service.VoteService
	logger      *logger.Logger
}

func NewVoteHandler(voteService *service.VoteService, log *logger.Logger) *VoteHandler {
	return &VoteHandler{
		voteService: voteService,
		logger:      log,
	}
}

// SubmitVote handles POST /api/polls/{pollID}/vote
func (h *VoteHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil {
		respondError(w, errors.NewAuthenticationError("authentication required"), h.logger)
		return
	}

	pollID := chi.URLParam(r, "pollID")

	var req domain.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("invalid request body", nil), h.logger)
		return
	}

	result, err := h.voteService.SubmitVote(r.Context(), pollID, req.OptionID, identity)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// GetMyVote handles GET /api/polls/{pollID}/vote
func (h *VoteHandler) GetMyVote(w http.ResponseWriter, r *http.Request) {
	identity := middleware.Identity(r)
	if identity == nil {
		respondError(w, errors.NewAuthenticationError("authentication required"), h.logger)
		return
	}

	pollID := chi.URLParam(r, "pollID")

	vote, err := h.voteService.GetMyVote(r.Context(), pollID, identity.Sub)
	if err != nil {
		respondError(w, err, h.logger)
		return
	}

	if vote == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"has_voted": false,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"has_voted": true,
		"option_id": vote.OptionID,
		"voted_at":  vote.CreatedAt,
	})
}
