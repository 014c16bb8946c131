package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
)

// lockMargin is waited past the contest start before results are posted.
const lockMargin = 250 * time.Millisecond

// Run executes a complete load run and returns its statistics. It fails when
// the engine reports an unexpected action or the leaderboard does not
// converge to the local recomputation within cfg.SettleWait.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Named("loadtest")
	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting pick'em load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("contests", cfg.Contests),
		logger.Int("users", cfg.Users),
		logger.Int("opsPerUser", cfg.OpsPerUser),
		logger.Duration("lead", cfg.Lead))

	if _, err := client.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	start := time.Now().Add(cfg.Lead).UTC()
	p := newPlan(cfg, start)
	for i := range p.contests {
		c := &p.contests[i]
		body := contestRequest{Home: c.Home, Away: c.Away, StartTime: c.StartTime, Spread: c.Spread}
		if _, err := client.do(ctx, http.MethodPut, "/contests/"+c.ID, body, nil); err != nil {
			return stats, fmt.Errorf("register contest: %w", err)
		}
		stats.ContestsRegistered++
	}

	expected := submitAll(ctx, cfg, client, p, stats)

	if wait := time.Until(start.Add(lockMargin)); wait > 0 {
		log.Info(ctx, "waiting for contests to lock", logger.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(wait):
		}
	}

	if err := checkLocked(ctx, client, p); err != nil {
		return stats, err
	}
	for id, final := range p.finals {
		body := resultRequest{HomeScore: &final[0], AwayScore: &final[1], Ended: true}
		if _, err := client.do(ctx, http.MethodPost, "/contests/"+id+"/result", body, nil); err != nil {
			return stats, fmt.Errorf("post result: %w", err)
		}
		stats.ResultsPosted++
	}

	want, err := expectedBoard(ctx, p, expected)
	if err != nil {
		return stats, err
	}
	if err := awaitLeaderboard(ctx, cfg, client, p.runID, want, stats); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	if stats.Mismatched > 0 || stats.Failed > 0 {
		return stats, fmt.Errorf("%d unexpected actions and %d failed submissions", stats.Mismatched, stats.Failed)
	}
	return stats, nil
}

// checkLocked confirms a post-start submission is refused.
func checkLocked(ctx context.Context, client *HTTPClient, p *plan) error {
	c := p.contests[0]
	_, err := client.submit(ctx, pickRequest{UserID: "lt-" + p.runID + "-late", ContestID: c.ID, TeamID: &c.Home.ID})
	if !errors.Is(err, errLocked) {
		return fmt.Errorf("submission after start was not locked: %v", err)
	}
	return nil
}

// awaitLeaderboard polls until the served rows of this run equal want.
func awaitLeaderboard(ctx context.Context, cfg *Config, client *HTTPClient, runID string, want []model.LeaderboardEntry, stats *Stats) error {
	deadline := time.Now().Add(cfg.SettleWait)
	for {
		var served []model.LeaderboardEntry
		stats.Polls++
		if _, err := client.do(ctx, http.MethodGet, "/leaderboard", nil, &served); err != nil {
			return fmt.Errorf("leaderboard retrieval failed: %w", err)
		}
		got := ownRows(runID, served)
		stats.LeaderboardRows = len(got)

		err := diff(want, got)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("leaderboard did not converge: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("contests", stats.ContestsRegistered),
		logger.Int("submitted", stats.Submitted),
		logger.Int("applied", stats.Applied),
		logger.Int("locked", stats.Locked),
		logger.Int("mismatched", stats.Mismatched),
		logger.Int("failed", stats.Failed),
		logger.Int("results", stats.ResultsPosted),
		logger.Int("leaderboardRows", stats.LeaderboardRows),
		logger.Int("polls", stats.Polls),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissionsPerSecond", perSecond))
}
