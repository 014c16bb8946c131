package model

import "time"

// NotificationKind names a logical change event.
type NotificationKind string

const (
	KindPickChanged        NotificationKind = "pick_changed"
	KindContestSettled     NotificationKind = "contest_settled"
	KindLeaderboardChanged NotificationKind = "leaderboard_changed"
)

// Notification is the envelope exchanged with the change notifier.
// Delivery is at-least-once; ID lets consumers drop duplicates. Origin names
// the engine instance that published it.
type Notification struct {
	ID        string           `json:"id"`
	Origin    string           `json:"origin,omitempty"`
	Kind      NotificationKind `json:"kind"`
	UserID    string           `json:"user_id,omitempty"`
	ContestID string           `json:"contest_id,omitempty"`
	Action    Action           `json:"action,omitempty"`
	At        time.Time        `json:"at"`
}

// SettlementJob asks a worker to settle one contest.
type SettlementJob struct {
	ID         string
	ContestID  string
	ReceivedAt time.Time
}
