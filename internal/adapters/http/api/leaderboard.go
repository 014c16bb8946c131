package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	ActiveCounts(ctx context.Context) (map[string]int, error)
	Reconcile(ctx context.Context) (bool, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
	log      logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
		log:      log,
	}
}

// leaderboardRow adds the user's open pick count when ?active=true.
type leaderboardRow struct {
	model.LeaderboardEntry
	ActivePicks *int `json:"active_picks,omitempty"`
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N&active=true.
// Without limit every ranked user is returned.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()

	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			fail(r.Context(), h.log, w, op, WrapKind(ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
		if h.maxLimit > 0 && n > h.maxLimit {
			fail(r.Context(), h.log, w, op, ErrLimitExceeded)
			return
		}
		limit = n
	}
	withActive, _ := strconv.ParseBool(q.Get("active"))

	entries, err := h.deps.Leaderboard(r.Context(), limit)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}

	rows := make([]leaderboardRow, len(entries))
	var counts map[string]int
	if withActive {
		if counts, err = h.deps.ActiveCounts(r.Context()); err != nil {
			fail(r.Context(), h.log, w, op, err)
			return
		}
	}
	for i, e := range entries {
		rows[i].LeaderboardEntry = e
		if counts != nil {
			n := counts[e.UserID]
			rows[i].ActivePicks = &n
		}
	}
	writeJSON(w, http.StatusOK, rows)
}

type reconcileResponse struct {
	Drift bool `json:"drift"`
}

// HandleReconcile handles POST /leaderboard/reconcile.
func (h *LeaderboardHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	drift, err := h.deps.Reconcile(r.Context())
	if err != nil {
		fail(r.Context(), h.log, w, "api.reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Drift: drift})
}
