// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/pickem/internal/app"
	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
)

// Engine is the operation surface the handlers call. *service.Service
// implements it.
type Engine interface {
	SubmitPick(ctx context.Context, userID, contestID string, teamID *string) (service.SubmitResult, error)
	UserPicks(ctx context.Context, userID string) (service.UserPicks, error)
	UserStats(ctx context.Context, userID string) (service.UserSummary, error)

	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	ActiveCounts(ctx context.Context) (map[string]int, error)
	Reconcile(ctx context.Context) (bool, error)

	ListContests(ctx context.Context, date string) ([]service.ContestView, error)
	RegisterContest(ctx context.Context, c model.Contest) (model.Contest, error)
	RecordResult(ctx context.Context, r model.Result) (model.Contest, error)
	Settle(ctx context.Context, contestID string) (int, error)

	GetStats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	picksHandler       *PicksHandler
	leaderboardHandler *LeaderboardHandler
	contestsHandler    *ContestsHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps
// GET /leaderboard?limit.
func NewServer(engine Engine, maxLimit int, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(engine),
		picksHandler:       NewPicksHandler(engine, log),
		leaderboardHandler: NewLeaderboardHandler(engine, maxLimit, log),
		contestsHandler:    NewContestsHandler(engine, log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /picks", MetricsMiddleware(s.picksHandler.HandleSubmitPick, "picks"))
	mux.HandleFunc("GET /users/{id}/picks", MetricsMiddleware(s.picksHandler.HandleUserPicks, "user_picks"))
	mux.HandleFunc("GET /users/{id}/stats", MetricsMiddleware(s.picksHandler.HandleUserStats, "user_stats"))

	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("POST /leaderboard/reconcile", MetricsMiddleware(s.leaderboardHandler.HandleReconcile, "reconcile"))

	mux.HandleFunc("GET /contests", MetricsMiddleware(s.contestsHandler.HandleListContests, "contests"))
	mux.HandleFunc("PUT /contests/{id}", MetricsMiddleware(s.contestsHandler.HandleRegisterContest, "contest_register"))
	mux.HandleFunc("POST /contests/{id}/result", MetricsMiddleware(s.contestsHandler.HandleRecordResult, "contest_result"))
	mux.HandleFunc("POST /contests/{id}/settle", MetricsMiddleware(s.contestsHandler.HandleSettle, "contest_settle"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps err to its status and writes it. Server errors are logged; every
// other kind is the caller's to act on.
func fail(ctx context.Context, log logger.Logger, w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, err)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(ErrBadRequest, err)
	}
	return nil
}
