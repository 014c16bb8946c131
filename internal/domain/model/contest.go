// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Team is an attribute bag; only ID matters to scoring.
type Team struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ShortName      string `json:"short_name,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
}

// Contest is a single game between a home and an away team.
//
// Spread is expressed from the home team's perspective: negative means the
// home side is favoured. HomeScore and AwayScore are either both nil or both
// set; Ended is asserted by the external result feed.
type Contest struct {
	ID        string          `json:"id"`
	Home      Team            `json:"home_team"`
	Away      Team            `json:"away_team"`
	StartTime time.Time       `json:"start_time"`
	Spread    decimal.Decimal `json:"spread"`
	HomeScore *int            `json:"home_score"`
	AwayScore *int            `json:"away_score"`
	Ended     bool            `json:"ended"`
}

// HasTeam reports whether teamID is one of the contest's two sides.
func (c *Contest) HasTeam(teamID string) bool {
	return teamID != "" && (teamID == c.Home.ID || teamID == c.Away.ID)
}

// Final returns both final scores when present.
func (c *Contest) Final() (home, away int, ok bool) {
	if c.HomeScore == nil || c.AwayScore == nil {
		return 0, 0, false
	}
	return *c.HomeScore, *c.AwayScore, true
}

// Settleable reports whether the contest is ended with both scores known.
func (c *Contest) Settleable() bool {
	_, _, ok := c.Final()
	return c.Ended && ok
}

// Validate checks the structural invariants of a contest.
func (c *Contest) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: missing contest id", ErrInvalidContest)
	case strings.TrimSpace(c.Home.ID) == "" || strings.TrimSpace(c.Away.ID) == "":
		return fmt.Errorf("%w: both teams are required", ErrInvalidContest)
	case c.Home.ID == c.Away.ID:
		return fmt.Errorf("%w: home and away team are the same", ErrInvalidContest)
	case c.StartTime.IsZero():
		return fmt.Errorf("%w: missing start time", ErrInvalidContest)
	case (c.HomeScore == nil) != (c.AwayScore == nil):
		return ErrPartialResult
	}
	return nil
}

// Clone returns a deep copy so callers can't mutate stored state.
func (c Contest) Clone() Contest {
	if c.HomeScore != nil {
		h := *c.HomeScore
		c.HomeScore = &h
	}
	if c.AwayScore != nil {
		a := *c.AwayScore
		c.AwayScore = &a
	}
	return c
}

// ContestStatus is the presentation state of a contest at an instant.
type ContestStatus string

const (
	StatusOpen  ContestStatus = "open"
	StatusLive  ContestStatus = "live"
	StatusFinal ContestStatus = "final"
)

// Result is the final score reported by the external feed.
type Result struct {
	ContestID string `json:"contest_id"`
	HomeScore *int   `json:"home_score"`
	AwayScore *int   `json:"away_score"`
	Ended     bool   `json:"ended"`
}
