package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/pickem/internal/app"
	"github.com/okian/pickem/pkg/logger"
)

// PicksDependencies defines the pick operations the handler needs.
type PicksDependencies interface {
	SubmitPick(ctx context.Context, userID, contestID string, teamID *string) (service.SubmitResult, error)
	UserPicks(ctx context.Context, userID string) (service.UserPicks, error)
	UserStats(ctx context.Context, userID string) (service.UserSummary, error)
}

// PicksHandler handles pick submission and per-user reads.
type PicksHandler struct {
	deps PicksDependencies
	log  logger.Logger
}

// NewPicksHandler creates a new picks handler.
func NewPicksHandler(deps PicksDependencies, log logger.Logger) *PicksHandler {
	return &PicksHandler{deps: deps, log: log}
}

// pickRequest mirrors the OpenAPI schema for POST /picks. A null or absent
// team_id clears the pick.
type pickRequest struct {
	UserID    string  `json:"user_id"`
	ContestID string  `json:"contest_id"`
	TeamID    *string `json:"team_id"`
}

func (p pickRequest) validate() error {
	switch {
	case strings.TrimSpace(p.UserID) == "":
		return errors.New("missing user_id")
	case strings.TrimSpace(p.ContestID) == "":
		return errors.New("missing contest_id")
	case p.TeamID != nil && strings.TrimSpace(*p.TeamID) == "":
		return errors.New("team_id must be null or a team id")
	}
	return nil
}

// HandleSubmitPick handles POST /picks.
func (h *PicksHandler) HandleSubmitPick(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_pick"
	var req pickRequest
	if err := decode(r, &req); err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	if err := req.validate(); err != nil {
		fail(r.Context(), h.log, w, op, WrapKind(ErrBadRequest, err))
		return
	}
	res, err := h.deps.SubmitPick(r.Context(), req.UserID, req.ContestID, req.TeamID)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleUserPicks handles GET /users/{id}/picks.
func (h *PicksHandler) HandleUserPicks(w http.ResponseWriter, r *http.Request) {
	picks, err := h.deps.UserPicks(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), h.log, w, "api.user_picks", err)
		return
	}
	writeJSON(w, http.StatusOK, picks)
}

// HandleUserStats handles GET /users/{id}/stats.
func (h *PicksHandler) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.UserStats(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), h.log, w, "api.user_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
