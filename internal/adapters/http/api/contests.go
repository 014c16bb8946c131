package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	service "github.com/okian/pickem/internal/app"
	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
)

// ContestsDependencies defines the contest operations the handler needs.
type ContestsDependencies interface {
	ListContests(ctx context.Context, date string) ([]service.ContestView, error)
	RegisterContest(ctx context.Context, c model.Contest) (model.Contest, error)
	RecordResult(ctx context.Context, r model.Result) (model.Contest, error)
	Settle(ctx context.Context, contestID string) (int, error)
}

// ContestsHandler handles the slate, registration, results and settlement.
type ContestsHandler struct {
	deps ContestsDependencies
	log  logger.Logger
}

// NewContestsHandler creates a new contests handler.
func NewContestsHandler(deps ContestsDependencies, log logger.Logger) *ContestsHandler {
	return &ContestsHandler{deps: deps, log: log}
}

// contestRequest mirrors the OpenAPI schema for PUT /contests/{id}. The
// spread accepts a JSON number or string; it is required so a missing field
// is never read as a pick'em line.
type contestRequest struct {
	Home      model.Team       `json:"home_team"`
	Away      model.Team       `json:"away_team"`
	StartTime time.Time        `json:"start_time"`
	Spread    *decimal.Decimal `json:"spread"`
}

type resultRequest struct {
	HomeScore *int `json:"home_score"`
	AwayScore *int `json:"away_score"`
	Ended     bool `json:"ended"`
}

type settleResponse struct {
	Status  string `json:"status"`
	Written int    `json:"written"`
}

// HandleListContests handles GET /contests?date=YYYY-MM-DD.
func (h *ContestsHandler) HandleListContests(w http.ResponseWriter, r *http.Request) {
	slate, err := h.deps.ListContests(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		fail(r.Context(), h.log, w, "api.list_contests", err)
		return
	}
	writeJSON(w, http.StatusOK, slate)
}

// HandleRegisterContest handles PUT /contests/{id}.
func (h *ContestsHandler) HandleRegisterContest(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_contest"
	var req contestRequest
	if err := decode(r, &req); err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	if req.Spread == nil {
		fail(r.Context(), h.log, w, op, WrapKind(ErrBadRequest, errors.New("missing spread")))
		return
	}
	c, err := h.deps.RegisterContest(r.Context(), model.Contest{
		ID:        r.PathValue("id"),
		Home:      req.Home,
		Away:      req.Away,
		StartTime: req.StartTime,
		Spread:    *req.Spread,
	})
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleRecordResult handles POST /contests/{id}/result.
func (h *ContestsHandler) HandleRecordResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_result"
	var req resultRequest
	if err := decode(r, &req); err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	c, err := h.deps.RecordResult(r.Context(), model.Result{
		ContestID: r.PathValue("id"),
		HomeScore: req.HomeScore,
		AwayScore: req.AwayScore,
		Ended:     req.Ended,
	})
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleSettle handles POST /contests/{id}/settle. An incomplete result is
// answered with 202: settlement is deferred, not failed.
func (h *ContestsHandler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Settle(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, model.ErrIncompleteSettlement):
		writeJSON(w, http.StatusAccepted, settleResponse{Status: "deferred"})
	case err != nil:
		fail(r.Context(), h.log, w, "api.settle", err)
	default:
		writeJSON(w, http.StatusOK, settleResponse{Status: "settled", Written: n})
	}
}
