// Package ranking derives leaderboards from picks without any cached state.
//
// It is the reference the incremental standings are checked against.
package ranking

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/pickem/internal/domain/lockgate"
	"github.com/okian/pickem/internal/domain/model"
)

// Less reports whether a ranks ahead of b: higher total first, then lower
// user ID.
func Less(a, b model.LeaderboardEntry) bool {
	if c := a.TotalPoints.Cmp(b.TotalPoints); c != 0 {
		return c > 0
	}
	return a.UserID < b.UserID
}

// Totals sums settled scores per user. Users without a settled pick are absent.
func Totals(picks []model.Pick) map[string]model.LeaderboardEntry {
	out := make(map[string]model.LeaderboardEntry)
	for i := range picks {
		p := &picks[i]
		if p.Score == nil {
			continue
		}
		e := out[p.UserID]
		e.UserID = p.UserID
		e.TotalPoints = e.TotalPoints.Add(*p.Score)
		e.Settled++
		out[p.UserID] = e
	}
	return out
}

// Rank returns the full leaderboard for picks, ordered by Less, with 1-based
// ranks. The output depends only on the multiset of picks.
func Rank(picks []model.Pick) []model.LeaderboardEntry {
	totals := Totals(picks)
	out := make([]model.LeaderboardEntry, 0, len(totals))
	for _, e := range totals {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Top truncates a ranked leaderboard to limit rows. limit < 1 means all.
func Top(entries []model.LeaderboardEntry, limit int) []model.LeaderboardEntry {
	if limit < 1 || limit >= len(entries) {
		return entries
	}
	return entries[:limit]
}

// Equal reports whether two ranked leaderboards are identical row by row.
func Equal(a, b []model.LeaderboardEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Rank != b[i].Rank || a[i].UserID != b[i].UserID ||
			a[i].Settled != b[i].Settled || !a[i].TotalPoints.Equal(b[i].TotalPoints) {
			return false
		}
	}
	return true
}

// ActiveCounts returns, per user, the number of picks still open at now.
// Picks on contests missing from contests are not counted.
func ActiveCounts(picks []model.Pick, contests map[string]model.Contest, now time.Time) map[string]int {
	out := make(map[string]int)
	for i := range picks {
		p := &picks[i]
		if p.Score != nil {
			continue
		}
		if c, ok := contests[p.ContestID]; ok && !c.Ended && !lockgate.IsLocked(&c, now) {
			out[p.UserID]++
		}
	}
	return out
}

// Stats summarises one user's picks.
type Stats struct {
	UserID      string          `json:"user_id"`
	Active      int             `json:"active"`
	Pending     int             `json:"pending"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	Pushes      int             `json:"pushes"`
	TotalPoints decimal.Decimal `json:"total_points"`
	Rank        int             `json:"rank"`
}

// UserStats classifies picks for one user. contests resolves lock state;
// a pick whose contest is unknown counts as locked.
func UserStats(userID string, picks []model.Pick, contests map[string]model.Contest, now time.Time) Stats {
	st := Stats{UserID: userID}
	for i := range picks {
		p := &picks[i]
		if p.UserID != userID {
			continue
		}
		if p.Score == nil {
			c, ok := contests[p.ContestID]
			if ok && !c.Ended && !lockgate.IsLocked(&c, now) {
				st.Active++
			} else {
				st.Pending++
			}
			continue
		}
		st.TotalPoints = st.TotalPoints.Add(*p.Score)
		switch p.Score.Sign() {
		case 1:
			st.Wins++
		case -1:
			st.Losses++
		default:
			st.Pushes++
		}
	}
	return st
}
