package model

import "errors"

// Sentinel error kinds shared by every layer. Wrap with %w and test with errors.Is.
var (
	// ErrLocked rejects a pick mutation at or after contest start.
	ErrLocked = errors.New("picks are locked for this contest")
	// ErrInvalidTeam rejects a team that is not part of the contest.
	ErrInvalidTeam = errors.New("team does not play in this contest")
	// ErrDuplicateActivePick reports a uniqueness conflict in the backing store.
	ErrDuplicateActivePick = errors.New("duplicate active pick")
	// ErrIncompleteSettlement defers settlement until both final scores exist.
	ErrIncompleteSettlement = errors.New("contest result incomplete")
	ErrContestNotFound      = errors.New("contest not found")
	ErrPickNotFound         = errors.New("pick not found")
	ErrUserRequired         = errors.New("user id is required")
	ErrInvalidContest       = errors.New("invalid contest")
	ErrSpreadImmutable      = errors.New("contest spread cannot change")
	ErrPartialResult        = errors.New("final scores must be both present or both absent")
	ErrResultConflict       = errors.New("final result already recorded with different scores")
)
