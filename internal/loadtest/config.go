// Package loadtest drives a running pick'em engine over HTTP with concurrent
// users and checks the served leaderboard against a local recomputation.
package loadtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/pickem/internal/domain/model"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Contests     int           // Contests registered for the run
	Users        int           // Distinct users submitting picks
	OpsPerUser   int           // Submissions per user
	Workers      int           // Concurrent HTTP workers
	Lead         time.Duration // Time between registration and contest start
	Timeout      time.Duration // HTTP request timeout
	SettleWait   time.Duration // How long to poll for the leaderboard to converge
	PollInterval time.Duration // Leaderboard poll interval
	Seed         uint64        // Seed for the submission plan; 0 picks one
	LogFile      string        // Log file for test output
	Verbose      bool          // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	ContestsRegistered int
	Submitted          int
	Applied            int
	Locked             int
	Mismatched         int
	Failed             int
	ResultsPosted      int
	LeaderboardRows    int
	Polls              int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// contestRequest is the PUT /contests/{id} body.
type contestRequest struct {
	Home      model.Team      `json:"home_team"`
	Away      model.Team      `json:"away_team"`
	StartTime time.Time       `json:"start_time"`
	Spread    decimal.Decimal `json:"spread"`
}

// pickRequest is the POST /picks body.
type pickRequest struct {
	UserID    string  `json:"user_id"`
	ContestID string  `json:"contest_id"`
	TeamID    *string `json:"team_id"`
}

// submitResponse is the POST /picks answer.
type submitResponse struct {
	Action model.Action `json:"action"`
}

type resultRequest struct {
	HomeScore *int `json:"home_score"`
	AwayScore *int `json:"away_score"`
	Ended     bool `json:"ended"`
}
