package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/pickem/internal/app"
	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/internal/domain/ranking"
)

// kickoff is the start of every test contest unless a test says otherwise.
var kickoff = time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	items []model.Notification
	err   error
}

func (r *recorder) Publish(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return r.err
}

func (r *recorder) kinds() []model.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Kind)
	}
	return out
}

func team(id string) *string { return &id }
func intp(v int) *int        { return &v }

type fixture struct {
	svc   *service.Service
	clock *clockwork.FakeClock
	notes *recorder
}

func newFixture(opts ...service.Option) fixture {
	clock := clockwork.NewFakeClockAt(kickoff.Add(-time.Hour))
	notes := &recorder{}
	opts = append([]service.Option{
		service.WithClock(clock),
		service.WithNotifier(notes),
		service.WithLocation(time.UTC),
		service.WithWorkerCount(2),
	}, opts...)
	return fixture{svc: service.New(opts...), clock: clock, notes: notes}
}

func (f fixture) contest(id, spread string) model.Contest {
	c, err := f.svc.RegisterContest(context.Background(), model.Contest{
		ID:        id,
		Home:      model.Team{ID: "HOME", Name: "Home"},
		Away:      model.Team{ID: "AWAY", Name: "Away"},
		StartTime: kickoff,
		Spread:    decimal.RequireFromString(spread),
	})
	So(err, ShouldBeNil)
	return c
}

func (f fixture) final(id string, home, away int) {
	_, err := f.svc.RecordResult(context.Background(), model.Result{ContestID: id, HomeScore: intp(home), AwayScore: intp(away), Ended: true})
	So(err, ShouldBeNil)
}

func TestSubmitPick(t *testing.T) {
	ctx := context.Background()

	Convey("Given an open contest", t, func() {
		f := newFixture()
		f.contest("g1", "-3")

		Convey("When the same team is submitted three times", func() {
			r1, err1 := f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))
			r2, err2 := f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))
			r3, err3 := f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))

			Convey("Then it cycles created, deleted, created", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(r1.Action, ShouldEqual, model.ActionCreated)
				So(r2.Action, ShouldEqual, model.ActionDeleted)
				So(r2.Pick.ID, ShouldEqual, r1.Pick.ID)
				So(r3.Action, ShouldEqual, model.ActionCreated)
				So(f.notes.kinds(), ShouldResemble, []model.NotificationKind{
					model.KindPickChanged, model.KindPickChanged, model.KindPickChanged,
				})
			})
		})

		Convey("When the user switches sides", func() {
			first, _ := f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))
			res, err := f.svc.SubmitPick(ctx, "u1", "g1", team("AWAY"))

			Convey("Then the pick is replaced in one step", func() {
				So(err, ShouldBeNil)
				So(res.Action, ShouldEqual, model.ActionReplaced)
				So(res.Pick.TeamID, ShouldEqual, "AWAY")
				So(res.Pick.ID, ShouldNotEqual, first.Pick.ID)

				picks, _ := f.svc.UserPicks(ctx, "u1")
				So(picks.Active, ShouldHaveLength, 1)
				So(picks.Active[0].TeamID, ShouldEqual, "AWAY")
			})
		})

		Convey("When clearing a pick", func() {
			_, _ = f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))
			cleared, err := f.svc.SubmitPick(ctx, "u1", "g1", nil)
			again, err2 := f.svc.SubmitPick(ctx, "u1", "g1", nil)

			Convey("Then the first removes and the second is a no-op", func() {
				So(err, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(cleared.Action, ShouldEqual, model.ActionDeleted)
				So(again.Action, ShouldEqual, model.ActionNoop)
				So(again.Pick, ShouldBeNil)
				So(f.notes.kinds(), ShouldHaveLength, 2)
			})
		})

		Convey("When the input is invalid", func() {
			_, errTeam := f.svc.SubmitPick(ctx, "u1", "g1", team("NOPE"))
			_, errContest := f.svc.SubmitPick(ctx, "u1", "missing", team("HOME"))
			_, errUser := f.svc.SubmitPick(ctx, " ", "g1", team("HOME"))

			Convey("Then each is rejected with its kind", func() {
				So(errors.Is(errTeam, model.ErrInvalidTeam), ShouldBeTrue)
				So(errors.Is(errContest, model.ErrContestNotFound), ShouldBeTrue)
				So(errors.Is(errUser, model.ErrUserRequired), ShouldBeTrue)
				So(f.notes.kinds(), ShouldBeEmpty)
			})
		})
	})
}

func TestPostLockImmutability(t *testing.T) {
	ctx := context.Background()

	Convey("Given picks made before kickoff", t, func() {
		f := newFixture()
		f.contest("g1", "-3")
		made, _ := f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))

		Convey("When the clock reaches the start time exactly", func() {
			f.clock.Advance(time.Hour)

			Convey("Then every kind of submission is rejected and nothing changes", func() {
				for _, choice := range []*string{team("HOME"), team("AWAY"), nil} {
					_, err := f.svc.SubmitPick(ctx, "u1", "g1", choice)
					So(errors.Is(err, model.ErrLocked), ShouldBeTrue)
				}
				_, err := f.svc.SubmitPick(ctx, "u2", "g1", team("AWAY"))
				So(errors.Is(err, model.ErrLocked), ShouldBeTrue)

				picks, _ := f.svc.UserPicks(ctx, "u1")
				So(picks.Active, ShouldBeEmpty)
				So(picks.Settled, ShouldHaveLength, 1)
				So(picks.Settled[0].ID, ShouldEqual, made.Pick.ID)
				So(picks.Settled[0].Outcome, ShouldEqual, model.OutcomePending)
				So(picks.Settled[0].ContestStatus, ShouldEqual, model.StatusLive)
			})
		})

		Convey("When the start time is moved after lock", func() {
			f.clock.Advance(2 * time.Hour)
			_, err := f.svc.RegisterContest(ctx, model.Contest{
				ID: "g1", Home: model.Team{ID: "HOME", Name: "Home"}, Away: model.Team{ID: "AWAY", Name: "Away"},
				StartTime: kickoff.Add(24 * time.Hour), Spread: decimal.RequireFromString("-3"),
			})

			Convey("Then the contest cannot reopen", func() {
				So(errors.Is(err, model.ErrLocked), ShouldBeTrue)
			})
		})

		Convey("When the spread is changed", func() {
			_, err := f.svc.RegisterContest(ctx, model.Contest{
				ID: "g1", Home: model.Team{ID: "HOME", Name: "Home"}, Away: model.Team{ID: "AWAY", Name: "Away"},
				StartTime: kickoff, Spread: decimal.RequireFromString("-4"),
			})
			So(errors.Is(err, model.ErrSpreadImmutable), ShouldBeTrue)
		})
	})
}

func TestUniquenessUnderRandomSequences(t *testing.T) {
	ctx := context.Background()

	Convey("Given random submissions before lock", t, func() {
		f := newFixture()
		f.contest("g1", "0")
		rng := rand.New(rand.NewSource(1))
		choices := []*string{team("HOME"), team("AWAY"), nil}

		for i := 0; i < 500; i++ {
			user := fmt.Sprintf("u%d", rng.Intn(5))
			_, err := f.svc.SubmitPick(ctx, user, "g1", choices[rng.Intn(len(choices))])
			So(err, ShouldBeNil)

			picks, _ := f.svc.UserPicks(ctx, user)
			So(len(picks.Active), ShouldBeLessThanOrEqualTo, 1)
		}
	})

	Convey("Given concurrent submissions for one key", t, func() {
		f := newFixture()
		f.contest("g1", "0")

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				side := "HOME"
				if i%2 == 0 {
					side = "AWAY"
				}
				_, _ = f.svc.SubmitPick(ctx, "u1", "g1", team(side))
			}(i)
		}
		wg.Wait()

		picks, err := f.svc.UserPicks(ctx, "u1")
		So(err, ShouldBeNil)
		So(len(picks.Active), ShouldBeLessThanOrEqualTo, 1)
	})
}

func TestSettle(t *testing.T) {
	ctx := context.Background()

	Convey("Given picks on both sides of a contest", t, func() {
		f := newFixture()
		f.contest("g1", "-3")
		_, _ = f.svc.SubmitPick(ctx, "home-fan", "g1", team("HOME"))
		_, _ = f.svc.SubmitPick(ctx, "away-fan", "g1", team("AWAY"))
		f.clock.Advance(3 * time.Hour)

		Convey("When settling before a result exists", func() {
			n, err := f.svc.Settle(ctx, "g1")

			Convey("Then settlement is deferred without writes", func() {
				So(errors.Is(err, model.ErrIncompleteSettlement), ShouldBeTrue)
				So(n, ShouldEqual, 0)
				board, _ := f.svc.Leaderboard(ctx, 0)
				So(board, ShouldBeEmpty)
			})
		})

		Convey("When the contest ends 24-20", func() {
			f.final("g1", 24, 20)
			board1, _ := f.svc.Leaderboard(ctx, 0)

			again, err := f.svc.Settle(ctx, "g1")
			board2, _ := f.svc.Leaderboard(ctx, 0)

			Convey("Then the home side wins by one and the away side loses by one", func() {
				So(board1, ShouldHaveLength, 2)
				So(board1[0].UserID, ShouldEqual, "home-fan")
				So(board1[0].TotalPoints.String(), ShouldEqual, "1")
				So(board1[1].TotalPoints.String(), ShouldEqual, "-1")
			})

			Convey("Then settling again changes nothing", func() {
				So(err, ShouldBeNil)
				So(again, ShouldEqual, 0)
				So(ranking.Equal(board1, board2), ShouldBeTrue)
			})

			Convey("Then the settled picks carry their outcomes", func() {
				picks, _ := f.svc.UserPicks(ctx, "home-fan")
				So(picks.Settled, ShouldHaveLength, 1)
				So(picks.Settled[0].Outcome, ShouldEqual, model.OutcomeWin)
				So(picks.Settled[0].ContestStatus, ShouldEqual, model.StatusFinal)
			})

			Convey("Then a single leaderboard change is published", func() {
				count := 0
				for _, k := range f.notes.kinds() {
					if k == model.KindLeaderboardChanged {
						count++
					}
				}
				So(count, ShouldEqual, 1)
			})

			Convey("Then a different final score is refused", func() {
				_, err := f.svc.RecordResult(ctx, model.Result{ContestID: "g1", HomeScore: intp(21), AwayScore: intp(20), Ended: true})
				So(errors.Is(err, model.ErrResultConflict), ShouldBeTrue)
			})
		})

		Convey("When the scores arrive before the contest has ended", func() {
			_, err := f.svc.RecordResult(ctx, model.Result{ContestID: "g1", HomeScore: intp(14), AwayScore: intp(3)})
			So(err, ShouldBeNil)
			n, err := f.svc.Settle(ctx, "g1")

			Convey("Then nothing is scored yet", func() {
				So(errors.Is(err, model.ErrIncompleteSettlement), ShouldBeTrue)
				So(n, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a spread equal to the final margin", t, func() {
		f := newFixture()
		f.contest("g2", "-4")
		_, _ = f.svc.SubmitPick(ctx, "a", "g2", team("HOME"))
		_, _ = f.svc.SubmitPick(ctx, "b", "g2", team("AWAY"))
		f.clock.Advance(3 * time.Hour)
		f.final("g2", 24, 20)

		Convey("Then both picks push at exactly zero", func() {
			board, _ := f.svc.Leaderboard(ctx, 0)
			So(board, ShouldHaveLength, 2)
			So(board[0].TotalPoints.IsZero(), ShouldBeTrue)
			So(board[1].TotalPoints.IsZero(), ShouldBeTrue)
			So(board[0].UserID, ShouldEqual, "a")
			So(board[1].Rank, ShouldEqual, 2)
		})
	})
}

func TestStandingsMatchRecomputation(t *testing.T) {
	ctx := context.Background()

	Convey("Given many users across many contests settled concurrently", t, func() {
		f := newFixture()
		rng := rand.New(rand.NewSource(99))
		spreads := []string{"-7", "-3.5", "-3", "0", "1.5", "6.5"}
		sides := []string{"HOME", "AWAY"}

		const contests, users = 12, 40
		for c := 0; c < contests; c++ {
			f.contest(fmt.Sprintf("g%d", c), spreads[c%len(spreads)])
		}
		for u := 0; u < users; u++ {
			for c := 0; c < contests; c++ {
				if rng.Intn(3) == 0 {
					continue
				}
				_, err := f.svc.SubmitPick(ctx, fmt.Sprintf("user-%02d", u), fmt.Sprintf("g%d", c), team(sides[rng.Intn(2)]))
				So(err, ShouldBeNil)
			}
		}
		f.clock.Advance(4 * time.Hour)
		So(f.svc.Start(ctx), ShouldBeNil)
		for c := 0; c < contests; c++ {
			f.final(fmt.Sprintf("g%d", c), rng.Intn(40), rng.Intn(40))
		}

		var wg sync.WaitGroup
		for round := 0; round < 3; round++ {
			for _, c := range rng.Perm(contests) {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					_, _ = f.svc.Settle(ctx, id)
				}(fmt.Sprintf("g%d", c))
			}
		}
		wg.Wait()
		So(f.svc.Stop(ctx), ShouldBeNil)

		Convey("Then the incremental standings equal a full recomputation", func() {
			cached, err := f.svc.Leaderboard(ctx, 0)
			So(err, ShouldBeNil)
			pure, err := f.svc.RecomputeLeaderboard(ctx)
			So(err, ShouldBeNil)
			So(ranking.Equal(cached, pure), ShouldBeTrue)

			drift, err := f.svc.Reconcile(ctx)
			So(err, ShouldBeNil)
			So(drift, ShouldBeFalse)
		})

		Convey("Then limit truncates in rank order", func() {
			top, _ := f.svc.Leaderboard(ctx, 5)
			So(top, ShouldHaveLength, 5)
			for i, e := range top {
				So(e.Rank, ShouldEqual, i+1)
			}
		})
	})
}

func TestUserStatsAndSlate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a day with one finished and one upcoming contest", t, func() {
		f := newFixture()
		f.contest("early", "-3.5")
		_, err := f.svc.RegisterContest(ctx, model.Contest{
			ID: "late", Home: model.Team{ID: "HOME"}, Away: model.Team{ID: "AWAY"},
			StartTime: kickoff.Add(4 * time.Hour), Spread: decimal.RequireFromString("2.5"),
		})
		So(err, ShouldBeNil)

		_, _ = f.svc.SubmitPick(ctx, "u1", "early", team("HOME"))
		_, _ = f.svc.SubmitPick(ctx, "u1", "late", team("AWAY"))
		_, _ = f.svc.SubmitPick(ctx, "u2", "early", team("AWAY"))

		f.clock.Advance(2 * time.Hour)
		f.final("early", 24, 20)
		_, err = f.svc.Settle(ctx, "early")
		So(err, ShouldBeNil)

		Convey("Then the user's header reflects points, rank and active picks", func() {
			st, err := f.svc.UserStats(ctx, "u1")
			So(err, ShouldBeNil)
			So(st.TotalPoints.String(), ShouldEqual, "0.5")
			So(st.Rank, ShouldEqual, 1)
			So(st.Active, ShouldEqual, 1)
			So(st.Wins, ShouldEqual, 1)
			So(st.TotalUsers, ShouldEqual, 2)

			counts, err := f.svc.ActiveCounts(ctx)
			So(err, ShouldBeNil)
			So(counts["u1"], ShouldEqual, 1)
			So(counts["u2"], ShouldEqual, 0)
		})

		Convey("Then the slate lists both with their status", func() {
			slate, err := f.svc.ListContests(ctx, "2026-09-13")
			So(err, ShouldBeNil)
			So(slate, ShouldHaveLength, 2)
			So(slate[0].ID, ShouldEqual, "early")
			So(slate[0].Status, ShouldEqual, model.StatusFinal)
			So(slate[1].Status, ShouldEqual, model.StatusOpen)

			today, _ := f.svc.ListContests(ctx, "")
			So(today, ShouldHaveLength, 2)

			tomorrow, _ := f.svc.ListContests(ctx, "2026-09-14")
			So(tomorrow, ShouldBeEmpty)

			_, err = f.svc.ListContests(ctx, "13/09/2026")
			So(errors.Is(err, service.ErrInvalidDate), ShouldBeTrue)
		})

		Convey("Then a user without settled picks has no rank", func() {
			st, err := f.svc.UserStats(ctx, "nobody")
			So(err, ShouldBeNil)
			So(st.Rank, ShouldEqual, 0)
		})
	})
}

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()

	Convey("Given a contest with a final result", t, func() {
		f := newFixture(service.WithInstanceID("self"))
		f.contest("g1", "-3")
		_, _ = f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))
		f.clock.Advance(3 * time.Hour)
		f.final("g1", 24, 20)

		Convey("When the same settled notification arrives twice", func() {
			n := model.Notification{ID: "n-1", Origin: "feed", Kind: model.KindContestSettled, ContestID: "g1"}
			So(f.svc.HandleNotification(ctx, n), ShouldBeNil)
			So(f.svc.HandleNotification(ctx, n), ShouldBeNil)

			Convey("Then the id is remembered once and the score counted once", func() {
				So(f.svc.GetStats(ctx)["dedupeSize"], ShouldEqual, 1)
				board, _ := f.svc.Leaderboard(ctx, 0)
				So(board, ShouldHaveLength, 1)
				So(board[0].TotalPoints.String(), ShouldEqual, "1")
			})
		})

		Convey("When another instance reports a leaderboard change", func() {
			err := f.svc.HandleNotification(ctx, model.Notification{ID: "n-2", Origin: "other", Kind: model.KindLeaderboardChanged})

			Convey("Then the standings are rebuilt to the same rows", func() {
				So(err, ShouldBeNil)
				board, _ := f.svc.Leaderboard(ctx, 0)
				pure, _ := f.svc.RecomputeLeaderboard(ctx)
				So(ranking.Equal(board, pure), ShouldBeTrue)
			})
		})

		Convey("When a notification carries this instance's origin", func() {
			err := f.svc.HandleNotification(ctx, model.Notification{ID: "n-3", Origin: "self", Kind: model.KindContestSettled})

			Convey("Then it is ignored without being recorded", func() {
				So(err, ShouldBeNil)
				So(f.svc.GetStats(ctx)["dedupeSize"], ShouldEqual, 0)
			})
		})
	})
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		f := newFixture()
		So(f.svc.Start(ctx), ShouldBeNil)
		So(f.svc.GetStats(ctx)["started"], ShouldEqual, true)

		f.contest("g1", "-3.5")
		_, _ = f.svc.SubmitPick(ctx, "u1", "g1", team("AWAY"))
		f.clock.Advance(3 * time.Hour)

		Convey("When the feed reports the final", func() {
			f.final("g1", 24, 20)
			So(f.svc.Stop(ctx), ShouldBeNil)

			Convey("Then the queued settlement ran before shutdown finished", func() {
				board, _ := f.svc.Leaderboard(ctx, 0)
				So(board, ShouldHaveLength, 1)
				So(board[0].TotalPoints.String(), ShouldEqual, "-0.5")
				So(f.svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given a service that was never started", t, func() {
		f := newFixture()
		f.contest("g1", "1")
		_, _ = f.svc.SubmitPick(ctx, "u1", "g1", team("HOME"))
		f.clock.Advance(3 * time.Hour)

		Convey("Then a final result is settled inline", func() {
			f.final("g1", 10, 10)
			board, _ := f.svc.Leaderboard(ctx, 0)
			So(board, ShouldHaveLength, 1)
			So(board[0].TotalPoints.String(), ShouldEqual, "1")
			So(f.svc.Stop(ctx), ShouldBeNil)
		})
	})
}
