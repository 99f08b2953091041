package domain

import "time"

// Vote records one voter's choice on one poll. Immutable once written; the
// storage layer's UNIQUE(voter_id, poll_id) constraint is the sole arbiter
// of "already voted".
type Vote struct {
	ID        string    `json:"id"`
	VoterID   string    `json:"voter_id"`
	PollID    string    `json:"poll_id"`
	OptionID  string    `json:"option_id"`
	CreatedAt time.Time `json:"created_at"`
}

// OptionCount is the tally for one option
type OptionCount struct {
	OptionID string  `json:"option_id"`
	Text     string  `json:"text"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"`
}

// TallyResult is the aggregate vote state of a poll
type TallyResult struct {
	PollID     string        `json:"poll_id"`
	Options    []OptionCount `json:"options"`
	TotalVotes int           `json:"total_votes"`
	PollStatus PollStatus    `json:"poll_status"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ComputePercentages fills each option's share of the total, rounded to one
// decimal place
func (t *TallyResult) ComputePercentages() {
	if t.TotalVotes == 0 {
		return
	}
	for i := range t.Options {
		pct := float64(t.Options[i].Count) * 100 / float64(t.TotalVotes)
		t.Options[i].Percent = roundTenth(pct)
	}
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// VoteRequest is the vote submission payload
type VoteRequest struct {
	OptionID string `json:"option_id"`
}

// CreatePollRequest is the poll creation payload
type CreatePollRequest struct {
	Question               string     `json:"question"`
	Options                []string   `json:"options"`
	Publish                bool       `json:"publish"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	AllowVotingAfterExpiry bool       `json:"allow_voting_after_expiry"`
	ShowResultsAfterExpiry bool       `json:"show_results_after_expiry"`
	AutoArchive            bool       `json:"auto_archive"`
}

// ExtendPollRequest moves a poll's deadline forward
type ExtendPollRequest struct {
	ExpiresAt time.Time `json:"expires_at"`
}
