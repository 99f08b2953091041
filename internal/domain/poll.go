package domain

import "time"

// PollStatus is the lifecycle state of a poll. It is always computed from
// the stored fields and the clock, never persisted.
type PollStatus string

const (
	PollStatusDraft    PollStatus = "draft"
	PollStatusActive   PollStatus = "active"
	PollStatusExpired  PollStatus = "expired"
	PollStatusArchived PollStatus = "archived"
)

// Poll is a question with a fixed option set owned by one creator.
// Draft and Archived share the same stored shape (is_published=false);
// Archived is only reachable through the archive transition. Distinguishing
// the two durably would need an explicit status column.
type Poll struct {
	ID                     string     `json:"id"`
	Question               string     `json:"question"`
	CreatorID              string     `json:"creator_id"`
	IsPublished            bool       `json:"is_published"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	AllowVotingAfterExpiry bool       `json:"allow_voting_after_expiry"`
	ShowResultsAfterExpiry bool       `json:"show_results_after_expiry"`
	AutoArchive            bool       `json:"auto_archive"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`

	// archived marks a poll that reached unpublished state via archive
	// rather than creation or unpublish. Process-local bookkeeping only.
	archived bool
}

// Option belongs to exactly one poll
type Option struct {
	ID     string `json:"id"`
	PollID string `json:"poll_id"`
	Text   string `json:"text"`
}

// IsExpired reports whether the poll's deadline has passed
func (p *Poll) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// Status computes the lifecycle state at the given instant
func (p *Poll) Status(now time.Time) PollStatus {
	if !p.IsPublished {
		if p.archived {
			return PollStatusArchived
		}
		return PollStatusDraft
	}
	if p.IsExpired(now) {
		return PollStatusExpired
	}
	return PollStatusActive
}

// CanVote reports whether votes are accepted at the given instant
func (p *Poll) CanVote(now time.Time) bool {
	if !p.IsPublished {
		return false
	}
	return !p.IsExpired(now) || p.AllowVotingAfterExpiry
}

// CanViewResults reports whether tallies may be shown at the given instant
func (p *Poll) CanViewResults(now time.Time) bool {
	return !p.IsExpired(now) || p.ShowResultsAfterExpiry
}

// MarkArchived records that the poll was unpublished via the archive
// transition
func (p *Poll) MarkArchived() {
	p.archived = true
}
