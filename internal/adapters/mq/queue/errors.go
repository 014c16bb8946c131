package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("settlement queue full")
	ErrClosed = errors.New("settlement queue closed")
)
