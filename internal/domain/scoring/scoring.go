// Package scoring turns a final result and a spread into signed pick outcomes.
//
// All arithmetic is done on shopspring decimals so that a half-point spread
// never produces a spurious non-zero result and an exact push is detected.
package scoring

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/okian/pickem/internal/domain/model"
)

// Input is the side of a contest being scored.
type Input struct {
	Contest *model.Contest
	TeamID  string
}

// Result holds the signed outcome for one side.
type Result struct {
	Score   decimal.Decimal
	Outcome model.Outcome
}

// Scorer computes the outcome of a pick on one side of a contest.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

// SpreadScorer implements the against-the-spread convention:
//
//	adjusted = (home - away) + spread
//	home pick scores adjusted, away pick scores -adjusted.
type SpreadScorer struct{}

// NewSpreadScorer returns the default scorer.
func NewSpreadScorer() *SpreadScorer {
	return &SpreadScorer{}
}

// Score implements Scorer.
func (s *SpreadScorer) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	c := in.Contest
	home, away, ok := c.Final()
	if !ok {
		return Result{}, fmt.Errorf("contest %s: %w", c.ID, model.ErrIncompleteSettlement)
	}
	if !c.HasTeam(in.TeamID) {
		return Result{}, fmt.Errorf("contest %s team %q: %w", c.ID, in.TeamID, model.ErrInvalidTeam)
	}

	adjusted := decimal.NewFromInt(int64(home - away)).Add(c.Spread)
	if in.TeamID == c.Away.ID {
		adjusted = adjusted.Neg()
	}
	return Result{Score: adjusted, Outcome: Classify(adjusted)}, nil
}

// Classify maps a score to win, loss or push.
func Classify(score decimal.Decimal) model.Outcome {
	switch score.Sign() {
	case 1:
		return model.OutcomeWin
	case -1:
		return model.OutcomeLoss
	default:
		return model.OutcomePush
	}
}

// OutcomeOf classifies a pick, reporting pending until it is scored.
func OutcomeOf(p *model.Pick) model.Outcome {
	if p.Score == nil {
		return model.OutcomePending
	}
	return Classify(*p.Score)
}

// Update is a score to write for one pick.
type Update struct {
	Pick     model.Pick // pick carrying the new score
	Previous *decimal.Decimal
	Outcome  model.Outcome
}

// Delta is the change this update makes to the owner's total.
func (u Update) Delta() decimal.Decimal {
	d := *u.Pick.Score
	if u.Previous != nil {
		d = d.Sub(*u.Previous)
	}
	return d
}

// Plan scores every pick of a settleable contest and returns only the picks
// whose stored score differs from the computed one. A second run over
// already-settled picks therefore returns nothing.
func Plan(ctx context.Context, scorer Scorer, c *model.Contest, picks []model.Pick) ([]Update, error) {
	if !c.Settleable() {
		return nil, fmt.Errorf("contest %s: %w", c.ID, model.ErrIncompleteSettlement)
	}

	var updates []Update
	for i := range picks {
		p := picks[i]
		if p.ContestID != c.ID {
			continue
		}
		res, err := scorer.Score(ctx, Input{Contest: c, TeamID: p.TeamID})
		if err != nil {
			return nil, fmt.Errorf("score pick %s: %w", p.ID, err)
		}
		if p.Score != nil && p.Score.Equal(res.Score) {
			continue
		}
		prev := p.Score
		score := res.Score
		p.Score = &score
		updates = append(updates, Update{Pick: p, Previous: prev, Outcome: res.Outcome})
	}
	return updates, nil
}
