package repository

import "errors"

// ErrInvalidLimit rejects a leaderboard request for fewer than one row.
// Domain-level error kinds live in model.
var ErrInvalidLimit = errors.New("invalid leaderboard limit")
