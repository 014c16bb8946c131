package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/internal/domain/ranking"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// Leaderboard returns the first limit rows of the standings; limit < 1
// returns every ranked user.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 1 {
		limit = s.standings.Count()
	}
	if limit < 1 {
		return []model.LeaderboardEntry{}, nil
	}
	return s.standings.TopN(ctx, limit)
}

// RecomputeLeaderboard ranks every pick in the store from scratch. It shares
// no state with the incremental standings.
func (s *Service) RecomputeLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	start := time.Now()
	picks, err := s.picks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list picks: %w", err)
	}
	board := ranking.Rank(picks)
	metrics.RecordLeaderboardRecompute(float64(time.Since(start).Milliseconds()))
	return board, nil
}

// Reconcile rebuilds the standings from a full recomputation and reports
// whether they had drifted.
func (s *Service) Reconcile(ctx context.Context) (bool, error) {
	s.boardMu.Lock()
	defer s.boardMu.Unlock()

	board, err := s.RecomputeLeaderboard(ctx)
	if err != nil {
		return false, err
	}
	drift := !ranking.Equal(board, s.standings.Entries())
	if drift {
		metrics.RecordStandingsDrift()
		s.logger.Warn(ctx, "standings drifted from recomputation; rebuilt",
			logger.Int("users", len(board)))
	}
	s.standings.Reset(board)
	return drift, nil
}

// ActiveCounts returns each user's number of picks that can still change.
func (s *Service) ActiveCounts(ctx context.Context) (map[string]int, error) {
	picks, err := s.picks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list picks: %w", err)
	}
	contests, err := s.contestsFor(ctx, picks)
	if err != nil {
		return nil, err
	}
	return ranking.ActiveCounts(picks, contests, s.clock.Now()), nil
}

// UserSummary is the header block of a user's page.
type UserSummary struct {
	ranking.Stats
	TotalUsers int `json:"total_users"`
}

// UserStats summarises userID's picks, rank and the size of the field.
// Rank is 0 while the user has no settled pick.
func (s *Service) UserStats(ctx context.Context, userID string) (UserSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return UserSummary{}, model.ErrUserRequired
	}
	picks, err := s.picks.ListByUser(ctx, userID)
	if err != nil {
		return UserSummary{}, fmt.Errorf("list picks of %s: %w", userID, err)
	}
	contests, err := s.contestsFor(ctx, picks)
	if err != nil {
		return UserSummary{}, err
	}
	total, err := s.picks.CountUsers(ctx)
	if err != nil {
		return UserSummary{}, err
	}

	st := ranking.UserStats(userID, picks, contests, s.clock.Now())
	if e, ok := s.standings.Rank(ctx, userID); ok {
		st.Rank = e.Rank
	}
	return UserSummary{Stats: st, TotalUsers: total}, nil
}
