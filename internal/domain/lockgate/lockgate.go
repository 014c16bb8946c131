// Package lockgate decides when picks for a contest stop being mutable.
//
// The gate is a pure function of the contest start time and an instant the
// caller supplies. Callers read their clock once, inside the same critical
// section as the mutation, and pass that instant here.
package lockgate

import (
	"time"

	"github.com/okian/pickem/internal/domain/model"
)

// IsLocked reports whether picks for c are frozen at now.
// It is monotonic: once true for some now it stays true for every later one.
func IsLocked(c *model.Contest, now time.Time) bool {
	return !now.Before(c.StartTime)
}

// Status projects the contest into open, live or final at now.
func Status(c *model.Contest, now time.Time) model.ContestStatus {
	switch {
	case c.Ended:
		return model.StatusFinal
	case IsLocked(c, now):
		return model.StatusLive
	default:
		return model.StatusOpen
	}
}

// Check returns model.ErrLocked when c is locked at now. A contest the feed
// has already ended is locked regardless of its start time, so a settled pick
// can never be replaced.
func Check(c *model.Contest, now time.Time) error {
	if c.Ended || IsLocked(c, now) {
		return model.ErrLocked
	}
	return nil
}
