package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pickem/internal/domain/lockgate"
	"github.com/okian/pickem/internal/domain/model"
)

// ContestView is a contest with its status at query time.
type ContestView struct {
	model.Contest
	Status model.ContestStatus `json:"status"`
}

// dateLayout is the calendar date accepted by ListContests.
const dateLayout = "2006-01-02"

// ListContests returns the slate for a calendar day in the engine timezone,
// ordered by start time. An empty date means today.
func (s *Service) ListContests(ctx context.Context, date string) ([]ContestView, error) {
	now := s.clock.Now()
	day := now.In(s.location)
	if date != "" {
		d, err := time.ParseInLocation(dateLayout, date, s.location)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
		day = d
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.location)
	to := from.AddDate(0, 0, 1)

	contests, err := s.contests.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]ContestView, 0, len(contests))
	for i := range contests {
		c := contests[i]
		out = append(out, ContestView{Contest: c, Status: lockgate.Status(&c, now)})
	}
	return out, nil
}

// Contest returns one contest with its status.
func (s *Service) Contest(ctx context.Context, id string) (ContestView, error) {
	c, err := s.contests.Get(ctx, id)
	if err != nil {
		return ContestView{}, err
	}
	return ContestView{Contest: c, Status: lockgate.Status(&c, s.clock.Now())}, nil
}
