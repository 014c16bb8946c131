package loadtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/internal/domain/ranking"
	"github.com/okian/pickem/internal/domain/scoring"
)

// expectedBoard scores the expected slots against the planned finals and
// ranks them with the same pure aggregation the engine reconciles against.
func expectedBoard(ctx context.Context, p *plan, expected slots) ([]model.LeaderboardEntry, error) {
	byContest := make(map[string][]model.Pick, len(p.contests))
	for k, team := range expected {
		byContest[k.ContestID] = append(byContest[k.ContestID], model.Pick{
			ID:        k.String(),
			UserID:    k.UserID,
			ContestID: k.ContestID,
			TeamID:    team,
		})
	}

	scorer := scoring.NewSpreadScorer()
	var picks []model.Pick
	for i := range p.contests {
		c := p.contests[i].Clone()
		final := p.finals[c.ID]
		c.HomeScore, c.AwayScore, c.Ended = &final[0], &final[1], true

		updates, err := scoring.Plan(ctx, scorer, &c, byContest[c.ID])
		if err != nil {
			return nil, err
		}
		for _, u := range updates {
			picks = append(picks, u.Pick)
		}
	}
	return ranking.Rank(picks), nil
}

// ownRows keeps the rows of this run's users and renumbers them 1..n.
// Filtering a total order keeps it ordered, so the result is comparable to
// the local ranking even when the server holds other users.
func ownRows(runID string, served []model.LeaderboardEntry) []model.LeaderboardEntry {
	prefix := "lt-" + runID + "-"
	out := make([]model.LeaderboardEntry, 0, len(served))
	for _, e := range served {
		if strings.HasPrefix(e.UserID, prefix) {
			e.Rank = len(out) + 1
			out = append(out, e)
		}
	}
	return out
}

// diff describes the first difference between want and got.
func diff(want, got []model.LeaderboardEntry) error {
	if ranking.Equal(want, got) {
		return nil
	}
	if len(want) != len(got) {
		return fmt.Errorf("leaderboard has %d rows of this run, expected %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.UserID != g.UserID || !w.TotalPoints.Equal(g.TotalPoints) || w.Settled != g.Settled {
			return fmt.Errorf("row %d: got %s %s (%d settled), expected %s %s (%d settled)",
				i+1, g.UserID, g.TotalPoints, g.Settled, w.UserID, w.TotalPoints, w.Settled)
		}
	}
	return fmt.Errorf("leaderboards differ")
}
