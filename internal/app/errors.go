package service

import "errors"

// ErrInvalidDate rejects a slate date that is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")
