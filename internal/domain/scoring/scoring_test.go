package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickem/internal/domain/model"
)

func intp(v int) *int { return &v }

func contest(home, away int, spread string) *model.Contest {
	return &model.Contest{
		ID:        "c1",
		Home:      model.Team{ID: "H"},
		Away:      model.Team{ID: "A"},
		StartTime: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC),
		Spread:    decimal.RequireFromString(spread),
		HomeScore: intp(home),
		AwayScore: intp(away),
		Ended:     true,
	}
}

func TestSpreadScorer(t *testing.T) {
	ctx := context.Background()
	s := NewSpreadScorer()

	Convey("Given a 24-20 final", t, func() {
		Convey("With the home side giving 3", func() {
			c := contest(24, 20, "-3")
			home, err := s.Score(ctx, Input{Contest: c, TeamID: "H"})
			So(err, ShouldBeNil)
			away, err := s.Score(ctx, Input{Contest: c, TeamID: "A"})
			So(err, ShouldBeNil)

			So(home.Score.String(), ShouldEqual, "1")
			So(home.Outcome, ShouldEqual, model.OutcomeWin)
			So(away.Score.String(), ShouldEqual, "-1")
			So(away.Outcome, ShouldEqual, model.OutcomeLoss)
		})

		Convey("With the home side giving 4 it is a push for both", func() {
			c := contest(24, 20, "-4")
			home, _ := s.Score(ctx, Input{Contest: c, TeamID: "H"})
			away, _ := s.Score(ctx, Input{Contest: c, TeamID: "A"})

			So(home.Score.IsZero(), ShouldBeTrue)
			So(away.Score.IsZero(), ShouldBeTrue)
			So(home.Outcome, ShouldEqual, model.OutcomePush)
			So(away.Outcome, ShouldEqual, model.OutcomePush)
		})

		Convey("With a half-point spread the result is exact", func() {
			c := contest(24, 20, "-3.5")
			home, _ := s.Score(ctx, Input{Contest: c, TeamID: "H"})
			away, _ := s.Score(ctx, Input{Contest: c, TeamID: "A"})

			So(home.Score.Equal(decimal.RequireFromString("0.5")), ShouldBeTrue)
			So(away.Score.Equal(decimal.RequireFromString("-0.5")), ShouldBeTrue)
			So(home.Score.Add(away.Score).IsZero(), ShouldBeTrue)
		})
	})

	Convey("Given an underdog getting points", t, func() {
		c := contest(17, 21, "6.5")
		home, _ := s.Score(ctx, Input{Contest: c, TeamID: "H"})
		So(home.Score.String(), ShouldEqual, "2.5")
	})

	Convey("Given a contest without both scores", t, func() {
		c := contest(0, 0, "-3")
		c.AwayScore = nil
		_, err := s.Score(ctx, Input{Contest: c, TeamID: "H"})
		So(errors.Is(err, model.ErrIncompleteSettlement), ShouldBeTrue)
	})

	Convey("Given a team that did not play", t, func() {
		_, err := s.Score(ctx, Input{Contest: contest(1, 0, "0"), TeamID: "X"})
		So(errors.Is(err, model.ErrInvalidTeam), ShouldBeTrue)
	})

	Convey("Given a cancelled context", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Score(cctx, Input{Contest: contest(1, 0, "0"), TeamID: "H"})
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestOutcomeOf(t *testing.T) {
	Convey("A pick without a score is pending", t, func() {
		So(OutcomeOf(&model.Pick{}), ShouldEqual, model.OutcomePending)

		d := decimal.RequireFromString("0.0")
		So(OutcomeOf(&model.Pick{Score: &d}), ShouldEqual, model.OutcomePush)
	})
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	s := NewSpreadScorer()

	Convey("Given picks on both sides of a settled contest", t, func() {
		c := contest(24, 20, "-3.5")
		picks := []model.Pick{
			{ID: "p1", UserID: "u1", ContestID: "c1", TeamID: "H"},
			{ID: "p2", UserID: "u2", ContestID: "c1", TeamID: "A"},
			{ID: "p3", UserID: "u3", ContestID: "other", TeamID: "H"},
		}

		updates, err := Plan(ctx, s, c, picks)
		So(err, ShouldBeNil)
		So(updates, ShouldHaveLength, 2)
		So(updates[0].Delta().String(), ShouldEqual, "0.5")
		So(updates[1].Delta().String(), ShouldEqual, "-0.5")
		So(updates[0].Outcome, ShouldEqual, model.OutcomeWin)

		Convey("Then planning again over the written scores changes nothing", func() {
			settled := []model.Pick{updates[0].Pick, updates[1].Pick}
			again, err := Plan(ctx, s, c, settled)
			So(err, ShouldBeNil)
			So(again, ShouldBeEmpty)
		})

		Convey("Then a stale score yields only the difference", func() {
			stale := updates[0].Pick
			old := decimal.RequireFromString("-1")
			stale.Score = &old
			again, err := Plan(ctx, s, c, []model.Pick{stale})
			So(err, ShouldBeNil)
			So(again, ShouldHaveLength, 1)
			So(again[0].Delta().String(), ShouldEqual, "1.5")
		})
	})

	Convey("Given a contest that has not ended", t, func() {
		c := contest(24, 20, "-3")
		c.Ended = false
		_, err := Plan(ctx, s, c, nil)
		So(errors.Is(err, model.ErrIncompleteSettlement), ShouldBeTrue)
	})
}
