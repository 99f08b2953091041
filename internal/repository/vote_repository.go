package repository

import (
	"context"
	"errors"
	"fmt"

	"pollstream/internal/domain"
	"pollstream/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations
const pgUniqueViolation = "23505"

type PostgresVoteRepository struct {
	db *database.PostgresDB
}

func NewVoteRepository(db *database.PostgresDB) *PostgresVoteRepository {
	return &PostgresVoteRepository{db: db}
}

// InsertVote inserts a vote. The UNIQUE(voter_id, poll_id) constraint makes
// the insert itself the existence check; a violation surfaces as
// ErrDuplicateVote. There is deliberately no prior SELECT, which would be a
// TOCTOU race under concurrent submissions.
func (r *PostgresVoteRepository) InsertVote(ctx context.Context, vote *domain.Vote) error {
	query := `
		INSERT INTO votes (id, voter_id, poll_id, option_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		vote.ID,
		vote.VoterID,
		vote.PollID,
		vote.OptionID,
	).Scan(&vote.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateVote
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}

	return nil
}

// GetTally aggregates per-option counts for a poll. Options with no votes
// are included with a zero count so every tally lists the full option set.
func (r *PostgresVoteRepository) GetTally(ctx context.Context, pollID string) ([]domain.OptionCount, int, error) {
	query := `
		SELECT o.id, o.text, COUNT(v.id)
		FROM options o
		LEFT JOIN votes v ON v.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id, o.text, o.created_at
		ORDER BY o.created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get tally: %w", err)
	}
	defer rows.Close()

	var counts []domain.OptionCount
	total := 0
	for rows.Next() {
		var oc domain.OptionCount
		if err := rows.Scan(&oc.OptionID, &oc.Text, &oc.Count); err != nil {
			return nil, 0, fmt.Errorf("failed to scan tally row: %w", err)
		}
		total += oc.Count
		counts = append(counts, oc)
	}

	return counts, total, rows.Err()
}

// HasVotes reports whether any vote exists for the poll
func (r *PostgresVoteRepository) HasVotes(ctx context.Context, pollID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM votes WHERE poll_id = $1)`

	if err := r.db.Pool.QueryRow(ctx, query, pollID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check votes: %w", err)
	}

	return exists, nil
}

// GetVoteByVoter gets a voter's vote on a poll, if any
func (r *PostgresVoteRepository) GetVoteByVoter(ctx context.Context, voterID, pollID string) (*domain.Vote, error) {
	var vote domain.Vote
	query := `
		SELECT id, voter_id, poll_id, option_id, created_at
		FROM votes
		WHERE voter_id = $1 AND poll_id = $2
	`

	err := r.db.Pool.QueryRow(ctx, query, voterID, pollID).Scan(
		&vote.ID,
		&vote.VoterID,
		&vote.PollID,
		&vote.OptionID,
		&vote.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}

	return &vote, nil
}
