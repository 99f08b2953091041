package ratelimit

import (
	"context"
	"time"
)

// Policy names one throttled action with its fixed-window ceiling
type Policy struct {
	Name         string
	Limit        int64
	Window       time.Duration
	ExemptAdmins bool
}

// Built-in policies. The per-poll vote policy keys on voter:poll so one
// abusive poll does not consume a voter's global budget.
var (
	PolicyVotePerPoll = Policy{Name: "vote_poll", Limit: 3, Window: time.Minute, ExemptAdmins: true}
	PolicyVoteGlobal  = Policy{Name: "vote_global", Limit: 30, Window: time.Minute, ExemptAdmins: true}
	PolicyPollCreate  = Policy{Name: "poll_create", Limit: 5, Window: 10 * time.Minute, ExemptAdmins: true}
	PolicyAuthAttempt = Policy{Name: "auth_attempt", Limit: 10, Window: time.Minute, ExemptAdmins: false}
)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration // time until the window resets; zero when allowed
}

// Limiter throttles actions per (policy, identity) over a fixed window.
// Implementations must increment-and-check atomically so concurrent callers
// for the same key never lose updates. The in-memory implementation is
// process-local; the redis implementation shares windows across instances.
//
// Admin exemption is the caller's decision: the identity string is only a
// window key (it may be a compound like voter:poll), so callers holding the
// authenticated identity check Policy.Exempts before consulting the limiter.
type Limiter interface {
	Allow(ctx context.Context, policy Policy, identity string) (Decision, error)
}

// Exempts reports whether the policy waives limiting for an administrative
// caller
func (p Policy) Exempts(admin bool) bool {
	return p.ExemptAdmins && admin
}
