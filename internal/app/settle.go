package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okian/pickem/internal/adapters/mq/queue"
	"github.com/okian/pickem/internal/adapters/repository"
	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/internal/domain/scoring"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// RegisterContest creates or updates a contest's schedule. Teams and spread
// are fixed at creation; results only arrive through RecordResult. Moving the
// start of a contest that is already locked is rejected so the lock never
// reopens.
func (s *Service) RegisterContest(ctx context.Context, c model.Contest) (model.Contest, error) {
	c.HomeScore, c.AwayScore, c.Ended = nil, nil, false
	if err := c.Validate(); err != nil {
		return model.Contest{}, err
	}

	old, err := s.contests.Get(ctx, c.ID)
	switch {
	case errors.Is(err, model.ErrContestNotFound):
	case err != nil:
		return model.Contest{}, err
	default:
		now := s.clock.Now()
		if !old.StartTime.Equal(c.StartTime) && (old.Ended || !now.Before(old.StartTime)) {
			return model.Contest{}, fmt.Errorf("contest %s cannot be rescheduled: %w", c.ID, model.ErrLocked)
		}
	}

	saved, err := s.contests.Upsert(ctx, c)
	if err != nil {
		return model.Contest{}, err
	}
	s.logger.Info(ctx, "contest registered",
		logger.String("contest_id", saved.ID),
		logger.Time("start", saved.StartTime),
		logger.String("spread", saved.Spread.String()))
	return saved, nil
}

// RecordResult stores a result from the external feed. Once the contest is
// ended with both scores, settlement is queued; if the queue cannot take it
// the contest is settled inline.
func (s *Service) RecordResult(ctx context.Context, r model.Result) (model.Contest, error) {
	c, err := s.contests.RecordResult(ctx, r)
	if err != nil {
		return model.Contest{}, err
	}
	if !c.Settleable() {
		if c.Ended {
			metrics.RecordSettlementDeferred()
		}
		return c, nil
	}

	if err := s.enqueueSettlement(ctx, c.ID); err != nil {
		s.logger.Warn(ctx, "settling inline", logger.String("contest_id", c.ID), logger.Error(err))
		if _, err := s.Settle(ctx, c.ID); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (s *Service) enqueueSettlement(ctx context.Context, contestID string) error {
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return queue.ErrClosed
	}
	return q.Enqueue(ctx, model.SettlementJob{
		ID:         uuid.NewString(),
		ContestID:  contestID,
		ReceivedAt: s.clock.Now(),
	})
}

// Settle writes the outcome score of every pick in contestID and returns how
// many scores changed. It is idempotent: a second run writes nothing.
// An unfinished contest yields model.ErrIncompleteSettlement and no writes.
func (s *Service) Settle(ctx context.Context, contestID string) (int, error) {
	start := time.Now()

	c, err := s.contests.Get(ctx, contestID)
	if err != nil {
		return 0, err
	}
	if !c.Settleable() {
		metrics.RecordSettlementDeferred()
		return 0, fmt.Errorf("contest %s: %w", contestID, model.ErrIncompleteSettlement)
	}

	picks, err := s.picks.ListByContest(ctx, contestID)
	if err != nil {
		return 0, fmt.Errorf("list picks of %s: %w", contestID, err)
	}
	updates, err := scoring.Plan(ctx, s.scorer, &c, picks)
	if err != nil {
		return 0, err
	}

	s.boardMu.RLock()
	written := 0
	for _, u := range updates {
		ok, err := s.writeScore(ctx, u)
		if err != nil {
			s.boardMu.RUnlock()
			return written, err
		}
		if ok {
			written++
		}
	}
	s.boardMu.RUnlock()

	metrics.RecordSettlement(float64(time.Since(start).Milliseconds()))
	s.logger.Info(ctx, "contest settled",
		logger.String("contest_id", contestID),
		logger.Int("picks", len(picks)),
		logger.Int("written", written))

	if written > 0 {
		s.publish(ctx, model.Notification{Kind: model.KindLeaderboardChanged, ContestID: contestID})
	}
	return written, nil
}

// writeScore stores u's score under the pick's key lock and moves the owner's
// standing by the difference to what was stored at that moment, so two
// concurrent settlements never count a pick twice.
func (s *Service) writeScore(ctx context.Context, u scoring.Update) (bool, error) {
	var (
		prev    *decimal.Decimal
		written bool
	)
	_, err := s.picks.Mutate(ctx, u.Pick.Key(), func(cur *model.Pick) (repository.Mutation, error) {
		if cur == nil || cur.ID != u.Pick.ID {
			return repository.Mutation{}, nil
		}
		if cur.Score != nil && cur.Score.Equal(*u.Pick.Score) {
			return repository.Mutation{}, nil
		}
		prev = cur.Score
		next := cur.Clone()
		score := *u.Pick.Score
		next.Score = &score
		written = true
		return repository.Mutation{Put: &next}, nil
	})
	if err != nil || !written {
		return false, err
	}

	delta, settled := *u.Pick.Score, 1
	if prev != nil {
		delta, settled = delta.Sub(*prev), 0
	}
	s.standings.Apply(u.Pick.UserID, delta, settled)
	metrics.RecordPickSettled(string(u.Outcome))
	return true, nil
}
