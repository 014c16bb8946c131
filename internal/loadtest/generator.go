package loadtest

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okian/pickem/internal/domain/model"
)

// Spread and score ranges for generated contests.
const (
	maxHalfPoints = 21 // spreads from -10.5 to +10.5 in half points
	maxScore      = 45
	clearEvery    = 6 // roughly one submission in clearEvery is an un-pick
)

// plan is everything a run submits, generated up front so workers only send.
type plan struct {
	runID    string
	contests []model.Contest
	finals   map[string][2]int
	ops      map[string][]pickRequest // per user, in submission order
}

// newPlan draws contests, final scores and every user's submissions. Each
// user's ops are later sent in order by one worker, so the expected final
// state of every (user, contest) slot is known locally.
func newPlan(cfg *Config, start time.Time) *plan {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	p := &plan{
		runID:  uuid.NewString()[:8],
		finals: make(map[string][2]int, cfg.Contests),
		ops:    make(map[string][]pickRequest, cfg.Users),
	}
	for i := 0; i < cfg.Contests; i++ {
		id := fmt.Sprintf("lt-%s-c%03d", p.runID, i)
		half := rng.IntN(2*maxHalfPoints+1) - maxHalfPoints
		p.contests = append(p.contests, model.Contest{
			ID:        id,
			Home:      model.Team{ID: fmt.Sprintf("H%03d", i), Name: fmt.Sprintf("Home %d", i)},
			Away:      model.Team{ID: fmt.Sprintf("A%03d", i), Name: fmt.Sprintf("Away %d", i)},
			StartTime: start,
			Spread:    decimal.NewFromInt(int64(half)).Div(decimal.NewFromInt(2)),
		})
		p.finals[id] = [2]int{rng.IntN(maxScore + 1), rng.IntN(maxScore + 1)}
	}

	for u := 0; u < cfg.Users; u++ {
		user := fmt.Sprintf("lt-%s-u%05d", p.runID, u)
		ops := make([]pickRequest, 0, cfg.OpsPerUser)
		for i := 0; i < cfg.OpsPerUser; i++ {
			c := p.contests[rng.IntN(len(p.contests))]
			req := pickRequest{UserID: user, ContestID: c.ID}
			if rng.IntN(clearEvery) != 0 {
				team := c.Home.ID
				if rng.IntN(2) == 0 {
					team = c.Away.ID
				}
				req.TeamID = &team
			}
			ops = append(ops, req)
		}
		p.ops[user] = ops
	}
	return p
}

// slots tracks the expected pick of every (user, contest) pair.
type slots map[model.PickKey]string

// apply mirrors the engine's submission rules and returns the action the
// engine should report.
func (s slots) apply(req pickRequest) model.Action {
	key := model.PickKey{UserID: req.UserID, ContestID: req.ContestID}
	cur, ok := s[key]
	switch {
	case !ok && req.TeamID == nil:
		return model.ActionNoop
	case ok && (req.TeamID == nil || cur == *req.TeamID):
		delete(s, key)
		return model.ActionDeleted
	case ok:
		s[key] = *req.TeamID
		return model.ActionReplaced
	default:
		s[key] = *req.TeamID
		return model.ActionCreated
	}
}
