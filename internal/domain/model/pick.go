package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pick is one user's selection of a side in a contest.
// Score stays nil until the contest settles.
type Pick struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	ContestID string           `json:"contest_id"`
	TeamID    string           `json:"team_id"`
	Score     *decimal.Decimal `json:"score"`
	CreatedAt time.Time        `json:"created_at"`
}

// Key returns the uniqueness key of the pick.
func (p *Pick) Key() PickKey {
	return PickKey{UserID: p.UserID, ContestID: p.ContestID}
}

// Settled reports whether the pick has an outcome score.
func (p *Pick) Settled() bool {
	return p.Score != nil
}

// Clone returns a copy that shares no pointers with p.
func (p Pick) Clone() Pick {
	if p.Score != nil {
		s := *p.Score
		p.Score = &s
	}
	return p
}

// PickKey identifies the single active pick slot of a user in a contest.
type PickKey struct {
	UserID    string
	ContestID string
}

// String renders the key for logging and lock hashing.
func (k PickKey) String() string {
	return k.UserID + "/" + k.ContestID
}

// Action is the externally visible effect of a pick submission.
type Action string

const (
	ActionCreated  Action = "created"
	ActionReplaced Action = "replaced"
	ActionDeleted  Action = "deleted"
	// ActionNoop is an un-pick with nothing to remove.
	ActionNoop Action = "noop"
)

// Outcome classifies a pick's score.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomePush    Outcome = "push"
)

// LeaderboardEntry is one ranked row; derived, never stored.
type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	UserID      string          `json:"user_id"`
	TotalPoints decimal.Decimal `json:"total_points"`
	Settled     int             `json:"settled_picks"`
}
