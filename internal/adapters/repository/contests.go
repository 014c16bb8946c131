package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/pickem/internal/domain/model"
)

// MemoryContests is an in-process ContestStore.
type MemoryContests struct {
	mu   sync.RWMutex
	byID map[string]model.Contest
}

// NewMemoryContests returns an empty contest store.
func NewMemoryContests() *MemoryContests {
	return &MemoryContests{byID: make(map[string]model.Contest)}
}

// Upsert implements ContestStore.
func (s *MemoryContests) Upsert(_ context.Context, c model.Contest) (model.Contest, error) {
	if err := c.Validate(); err != nil {
		return model.Contest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[c.ID]
	if ok {
		merged, err := mergeContest(old, c)
		if err != nil {
			return model.Contest{}, err
		}
		c = merged
	}
	s.byID[c.ID] = c.Clone()
	return c.Clone(), nil
}

// mergeContest applies an update onto a stored contest. Teams and spread are
// fixed once registered; an existing result wins over an empty one.
func mergeContest(old, next model.Contest) (model.Contest, error) {
	if !old.Spread.Equal(next.Spread) {
		return model.Contest{}, fmt.Errorf("contest %s: %w", old.ID, model.ErrSpreadImmutable)
	}
	if old.Home.ID != next.Home.ID || old.Away.ID != next.Away.ID {
		return model.Contest{}, fmt.Errorf("%w: contest %s teams cannot change", model.ErrInvalidContest, old.ID)
	}
	if next.HomeScore == nil {
		next.HomeScore, next.AwayScore = old.HomeScore, old.AwayScore
		next.Ended = next.Ended || old.Ended
	}
	return next, nil
}

// Get implements ContestStore.
func (s *MemoryContests) Get(_ context.Context, id string) (model.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return model.Contest{}, fmt.Errorf("contest %s: %w", id, model.ErrContestNotFound)
	}
	return c.Clone(), nil
}

// RecordResult implements ContestStore.
func (s *MemoryContests) RecordResult(_ context.Context, r model.Result) (model.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[r.ContestID]
	if !ok {
		return model.Contest{}, fmt.Errorf("contest %s: %w", r.ContestID, model.ErrContestNotFound)
	}
	next, err := applyResult(c, r)
	if err != nil {
		return model.Contest{}, err
	}
	s.byID[c.ID] = next.Clone()
	return next, nil
}

// applyResult merges a feed result into c. Scores may move while the contest
// is live; once it is ended with scores, only an identical result is accepted.
func applyResult(c model.Contest, r model.Result) (model.Contest, error) {
	if (r.HomeScore == nil) != (r.AwayScore == nil) {
		return model.Contest{}, fmt.Errorf("contest %s: %w", c.ID, model.ErrPartialResult)
	}
	if c.Settleable() {
		h, a, _ := c.Final()
		if !r.Ended || r.HomeScore == nil || *r.HomeScore != h || *r.AwayScore != a {
			return model.Contest{}, fmt.Errorf("contest %s: %w", c.ID, model.ErrResultConflict)
		}
		return c.Clone(), nil
	}
	if r.HomeScore != nil {
		h, a := *r.HomeScore, *r.AwayScore
		c.HomeScore, c.AwayScore = &h, &a
	}
	c.Ended = c.Ended || r.Ended
	return c, nil
}

// ListBetween implements ContestStore.
func (s *MemoryContests) ListBetween(_ context.Context, from, to time.Time) ([]model.Contest, error) {
	s.mu.RLock()
	out := make([]model.Contest, 0)
	for _, c := range s.byID {
		if !c.StartTime.Before(from) && c.StartTime.Before(to) {
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
