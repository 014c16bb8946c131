package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/pickem/internal/app"
	"github.com/okian/pickem/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeds the configured maximum")
)

// WrapKind tags err with kind so classify can map it.
func WrapKind(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

// classify maps an engine error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrLocked):
		return http.StatusConflict, "locked"
	case errors.Is(err, model.ErrSpreadImmutable):
		return http.StatusConflict, "spread_immutable"
	case errors.Is(err, model.ErrResultConflict):
		return http.StatusConflict, "result_conflict"
	case errors.Is(err, model.ErrInvalidTeam):
		return http.StatusBadRequest, "invalid_team"
	case errors.Is(err, model.ErrPartialResult):
		return http.StatusBadRequest, "partial_result"
	case errors.Is(err, model.ErrInvalidContest):
		return http.StatusBadRequest, "invalid_contest"
	case errors.Is(err, model.ErrUserRequired):
		return http.StatusBadRequest, "user_required"
	case errors.Is(err, service.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrContestNotFound), errors.Is(err, model.ErrPickNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrIncompleteSettlement):
		return http.StatusAccepted, "deferred"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
