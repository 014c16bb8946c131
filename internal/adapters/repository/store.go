// Package repository holds the storage boundary of the engine: picks,
// contests and the incremental standings cache.
package repository

import (
	"context"
	"time"

	"github.com/okian/pickem/internal/domain/model"
)

// Mutation is what a MutateFunc asks the store to do with a key.
//
//   - zero value: leave the key untouched
//   - Delete: remove the current pick
//   - Put: store Put; if a pick with another ID exists it is replaced in the
//     same atomic step, so readers never see zero or two picks for the key
type Mutation struct {
	Delete bool
	Put    *model.Pick
}

// MutateFunc inspects the current pick for a key (nil when absent) and
// decides the mutation. It runs inside the key's critical section, so a
// decision taken here cannot be invalidated by a concurrent caller.
type MutateFunc func(current *model.Pick) (Mutation, error)

// PickStore is the authoritative repository of picks.
type PickStore interface {
	// Mutate serialises all calls for key and applies fn's decision atomically.
	// It returns the pick that was current before the call, if any.
	Mutate(ctx context.Context, key model.PickKey, fn MutateFunc) (*model.Pick, error)

	// Get returns the pick for key or model.ErrPickNotFound.
	Get(ctx context.Context, key model.PickKey) (model.Pick, error)

	ListByUser(ctx context.Context, userID string) ([]model.Pick, error)
	ListByContest(ctx context.Context, contestID string) ([]model.Pick, error)

	// List enumerates every pick for leaderboard recomputation.
	List(ctx context.Context) ([]model.Pick, error)

	// CountUsers returns the number of distinct users holding a pick.
	CountUsers(ctx context.Context) (int, error)
}

// ContestStore keeps the contests the engine knows about.
type ContestStore interface {
	// Upsert registers c. Teams and spread of an existing contest are immutable;
	// a recorded result is preserved. It returns the stored contest.
	Upsert(ctx context.Context, c model.Contest) (model.Contest, error)

	// Get returns the contest or model.ErrContestNotFound.
	Get(ctx context.Context, id string) (model.Contest, error)

	// RecordResult stores the final result asserted by the external feed.
	RecordResult(ctx context.Context, r model.Result) (model.Contest, error)

	// ListBetween returns contests starting in [from, to) ordered by start time.
	ListBetween(ctx context.Context, from, to time.Time) ([]model.Contest, error)
}
