package repository

import (
	"context"
	"fmt"
	"time"

	"pollstream/internal/domain"
	"pollstream/pkg/database"

	"github.com/jackc/pgx/v5"
)

type PostgresPollRepository struct {
	db *database.PostgresDB
}

func NewPollRepository(db *database.PostgresDB) *PostgresPollRepository {
	return &PostgresPollRepository{db: db}
}

// CreatePoll inserts a poll and its option set in one transaction
func (r *PostgresPollRepository) CreatePoll(ctx context.Context, poll *domain.Poll, options []domain.Option) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO polls (
			id, question, creator_id, is_published, expires_at,
			allow_voting_after_expiry, show_results_after_expiry, auto_archive
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		poll.ID,
		poll.Question,
		poll.CreatorID,
		poll.IsPublished,
		poll.ExpiresAt,
		poll.AllowVotingAfterExpiry,
		poll.ShowResultsAfterExpiry,
		poll.AutoArchive,
	).Scan(&poll.CreatedAt, &poll.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create poll: %w", err)
	}

	for _, opt := range options {
		_, err := tx.Exec(ctx,
			`INSERT INTO options (id, poll_id, text) VALUES ($1, $2, $3)`,
			opt.ID, opt.PollID, opt.Text,
		)
		if err != nil {
			return fmt.Errorf("failed to create option: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit poll creation: %w", err)
	}

	return nil
}

// GetPoll gets a poll by ID
func (r *PostgresPollRepository) GetPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	var poll domain.Poll
	query := `
		SELECT id, question, creator_id, is_published, expires_at,
		       allow_voting_after_expiry, show_results_after_expiry, auto_archive,
		       created_at, updated_at
		FROM polls
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, pollID).Scan(
		&poll.ID,
		&poll.Question,
		&poll.CreatorID,
		&poll.IsPublished,
		&poll.ExpiresAt,
		&poll.AllowVotingAfterExpiry,
		&poll.ShowResultsAfterExpiry,
		&poll.AutoArchive,
		&poll.CreatedAt,
		&poll.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}

	return &poll, nil
}

// GetOption gets an option by ID
func (r *PostgresPollRepository) GetOption(ctx context.Context, optionID string) (*domain.Option, error) {
	var opt domain.Option
	query := `SELECT id, poll_id, text FROM options WHERE id = $1`

	err := r.db.Pool.QueryRow(ctx, query, optionID).Scan(&opt.ID, &opt.PollID, &opt.Text)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get option: %w", err)
	}

	return &opt, nil
}

// GetOptions gets a poll's option set
func (r *PostgresPollRepository) GetOptions(ctx context.Context, pollID string) ([]domain.Option, error) {
	query := `SELECT id, poll_id, text FROM options WHERE poll_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to get options: %w", err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.ID, &opt.PollID, &opt.Text); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, opt)
	}

	return options, rows.Err()
}

// UpdatePublished flips the published flag
func (r *PostgresPollRepository) UpdatePublished(ctx context.Context, pollID string, published bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE polls SET is_published = $2, updated_at = now() WHERE id = $1`,
		pollID, published,
	)
	if err != nil {
		return fmt.Errorf("failed to update published flag: %w", err)
	}
	return nil
}

// UpdateExpiry moves the poll deadline
func (r *PostgresPollRepository) UpdateExpiry(ctx context.Context, pollID string, expiresAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE polls SET expires_at = $2, updated_at = now() WHERE id = $1`,
		pollID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update expiry: %w", err)
	}
	return nil
}

// UpdateQuestion updates the poll question
func (r *PostgresPollRepository) UpdateQuestion(ctx context.Context, pollID, question string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE polls SET question = $2, updated_at = now() WHERE id = $1`,
		pollID, question,
	)
	if err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	return nil
}

// ListAutoArchiveDue lists published polls whose deadline has passed and
// that opted into auto-archiving
func (r *PostgresPollRepository) ListAutoArchiveDue(ctx context.Context, now time.Time) ([]domain.Poll, error) {
	query := `
		SELECT id, question, creator_id, is_published, expires_at,
		       allow_voting_after_expiry, show_results_after_expiry, auto_archive,
		       created_at, updated_at
		FROM polls
		WHERE is_published = true AND auto_archive = true AND expires_at IS NOT NULL AND expires_at <= $1
	`

	rows, err := r.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-archive polls: %w", err)
	}
	defer rows.Close()

	var polls []domain.Poll
	for rows.Next() {
		var poll domain.Poll
		err := rows.Scan(
			&poll.ID,
			&poll.Question,
			&poll.CreatorID,
			&poll.IsPublished,
			&poll.ExpiresAt,
			&poll.AllowVotingAfterExpiry,
			&poll.ShowResultsAfterExpiry,
			&poll.AutoArchive,
			&poll.CreatedAt,
			&poll.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, poll)
	}

	return polls, rows.Err()
}
