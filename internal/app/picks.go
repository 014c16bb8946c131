package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/pickem/internal/adapters/repository"
	"github.com/okian/pickem/internal/domain/lockgate"
	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/internal/domain/scoring"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// SubmitResult is the outcome of a pick submission. Pick is the pick now
// stored, or the one removed for ActionDeleted; nil for ActionNoop.
type SubmitResult struct {
	Action model.Action `json:"action"`
	Pick   *model.Pick  `json:"pick,omitempty"`
}

// SubmitPick selects, changes or clears userID's pick in contestID.
//
// teamID nil clears the pick. Re-selecting the current team also clears it,
// so two identical submissions form a created/deleted cycle. The lock check
// and the write happen under the same per-key critical section, with the
// clock read inside it.
func (s *Service) SubmitPick(ctx context.Context, userID, contestID string, teamID *string) (SubmitResult, error) {
	if strings.TrimSpace(userID) == "" {
		metrics.RecordPickRejected("user_required")
		return SubmitResult{}, model.ErrUserRequired
	}

	var res SubmitResult
	key := model.PickKey{UserID: userID, ContestID: contestID}
	_, err := s.picks.Mutate(ctx, key, func(cur *model.Pick) (repository.Mutation, error) {
		c, err := s.contests.Get(ctx, contestID)
		if err != nil {
			return repository.Mutation{}, err
		}
		if teamID != nil && !c.HasTeam(*teamID) {
			return repository.Mutation{}, fmt.Errorf("contest %s team %q: %w", contestID, *teamID, model.ErrInvalidTeam)
		}
		now := s.clock.Now()
		if err := lockgate.Check(&c, now); err != nil {
			return repository.Mutation{}, fmt.Errorf("contest %s at %s: %w", contestID, now.Format("15:04:05"), err)
		}

		switch {
		case cur == nil && teamID == nil:
			res = SubmitResult{Action: model.ActionNoop}
			return repository.Mutation{}, nil
		case cur != nil && (teamID == nil || cur.TeamID == *teamID):
			res = SubmitResult{Action: model.ActionDeleted, Pick: cur}
			return repository.Mutation{Delete: true}, nil
		}

		next := &model.Pick{
			ID:        uuid.NewString(),
			UserID:    userID,
			ContestID: contestID,
			TeamID:    *teamID,
			CreatedAt: now,
		}
		res = SubmitResult{Action: model.ActionCreated, Pick: next}
		if cur != nil {
			res.Action = model.ActionReplaced
		}
		return repository.Mutation{Put: next}, nil
	})
	if err != nil {
		metrics.RecordPickRejected(rejectReason(err))
		return SubmitResult{}, err
	}

	metrics.RecordPickSubmitted(string(res.Action))
	if res.Action != model.ActionNoop {
		s.publish(ctx, model.Notification{
			Kind:      model.KindPickChanged,
			UserID:    userID,
			ContestID: contestID,
			Action:    res.Action,
		})
	}
	s.logger.Debug(ctx, "pick submitted",
		logger.String("user_id", userID),
		logger.String("contest_id", contestID),
		logger.String("action", string(res.Action)))
	return res, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, model.ErrLocked):
		return "locked"
	case errors.Is(err, model.ErrInvalidTeam):
		return "invalid_team"
	case errors.Is(err, model.ErrContestNotFound):
		return "contest_not_found"
	case errors.Is(err, model.ErrDuplicateActivePick):
		return "duplicate"
	default:
		return "error"
	}
}

// PickView is a pick with its classification at query time.
type PickView struct {
	model.Pick
	Outcome       model.Outcome       `json:"outcome"`
	ContestStatus model.ContestStatus `json:"contest_status"`
}

// UserPicks partitions a user's picks by lock state at query time.
// Active picks can still be changed; Settled holds every locked pick, scored
// or awaiting its result.
type UserPicks struct {
	Active  []PickView `json:"active"`
	Settled []PickView `json:"settled"`
}

// UserPicks returns userID's picks split into active and settled.
func (s *Service) UserPicks(ctx context.Context, userID string) (UserPicks, error) {
	if strings.TrimSpace(userID) == "" {
		return UserPicks{}, model.ErrUserRequired
	}
	picks, err := s.picks.ListByUser(ctx, userID)
	if err != nil {
		return UserPicks{}, fmt.Errorf("list picks of %s: %w", userID, err)
	}
	contests, err := s.contestsFor(ctx, picks)
	if err != nil {
		return UserPicks{}, err
	}

	now := s.clock.Now()
	out := UserPicks{Active: []PickView{}, Settled: []PickView{}}
	for i := range picks {
		p := picks[i]
		c := contests[p.ContestID]
		v := PickView{Pick: p, Outcome: scoring.OutcomeOf(&p), ContestStatus: lockgate.Status(&c, now)}
		if lockgate.Check(&c, now) == nil && !p.Settled() {
			out.Active = append(out.Active, v)
		} else {
			out.Settled = append(out.Settled, v)
		}
	}
	return out, nil
}

// contestsFor loads every contest referenced by picks. A missing contest is
// a referential integrity failure and is returned as is.
func (s *Service) contestsFor(ctx context.Context, picks []model.Pick) (map[string]model.Contest, error) {
	out := make(map[string]model.Contest)
	for i := range picks {
		id := picks[i].ContestID
		if _, ok := out[id]; ok {
			continue
		}
		c, err := s.contests.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("pick %s: %w", picks[i].ID, err)
		}
		out[id] = c
	}
	return out, nil
}
