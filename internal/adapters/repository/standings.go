package repository

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/metrics"
)

// Standings is an incremental, treap-backed leaderboard cache.
//
// Ordering: total DESC, then userID ASC. "less" means ranks earlier, so an
// in-order walk yields the leaderboard from best to worst. Every node keeps
// its subtree size, which makes Rank O(log n).
//
// Standings is a cache: it must always equal a full recomputation over the
// pick store, and Reset lets the owner repair it.
type Standings struct {
	mu   sync.RWMutex
	root *node
	byID map[string]standing
}

type standing struct {
	total   decimal.Decimal
	settled int
}

type node struct {
	id    string
	total decimal.Decimal
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aTotal, aID) ranks before (bTotal, bID).
func less(aTotal decimal.Decimal, aID string, bTotal decimal.Decimal, bID string) bool {
	if c := aTotal.Cmp(bTotal); c != 0 {
		return c > 0
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, total decimal.Decimal) *node {
	if n == nil {
		return &node{id: id, total: total, prio: rand.Uint64(), size: 1}
	}
	if less(total, id, n.total, n.id) {
		n.left = insert(n.left, id, total)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, total)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, total decimal.Decimal) *node {
	if n == nil {
		return nil
	}
	switch {
	case id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, total)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, total)
		}
	case less(total, id, n.total, n.id):
		n.left = deleteNode(n.left, id, total)
	default:
		n.right = deleteNode(n.right, id, total)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order.
func (s *Standings) collectTopN(n *node, limit int, out *[]model.LeaderboardEntry) {
	if n == nil || len(*out) >= limit {
		return
	}
	s.collectTopN(n.left, limit, out)
	if len(*out) < limit {
		st := s.byID[n.id]
		*out = append(*out, model.LeaderboardEntry{
			Rank:        len(*out) + 1,
			UserID:      n.id,
			TotalPoints: st.total,
			Settled:     st.settled,
		})
	}
	if len(*out) < limit {
		s.collectTopN(n.right, limit, out)
	}
}

// NewStandings returns an empty standings cache.
func NewStandings() *Standings {
	return &Standings{byID: make(map[string]standing)}
}

// Apply adds delta to userID's total and settledDelta to its settled pick
// count. A user appears once its settled count becomes positive and leaves
// when it drops back to zero.
func (s *Standings) Apply(userID string, delta decimal.Decimal, settledDelta int) {
	s.mu.Lock()
	old, ok := s.byID[userID]
	if ok {
		s.root = deleteNode(s.root, userID, old.total)
	}
	next := standing{total: old.total.Add(delta), settled: old.settled + settledDelta}
	if next.settled > 0 {
		s.byID[userID] = next
		s.root = insert(s.root, userID, next.total)
	} else {
		delete(s.byID, userID)
	}
	n := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateLeaderboardUsers(n)
}

// Reset replaces the whole cache with entries, typically the output of a
// full recomputation.
func (s *Standings) Reset(entries []model.LeaderboardEntry) {
	byID := make(map[string]standing, len(entries))
	var root *node
	for _, e := range entries {
		byID[e.UserID] = standing{total: e.TotalPoints, settled: e.Settled}
		root = insert(root, e.UserID, e.TotalPoints)
	}

	s.mu.Lock()
	s.root = root
	s.byID = byID
	s.mu.Unlock()

	metrics.UpdateLeaderboardUsers(len(entries))
}

// TopN returns the first n rows in rank order.
func (s *Standings) TopN(_ context.Context, n int) ([]model.LeaderboardEntry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("standings", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LeaderboardEntry, 0, min(n, len(s.byID)))
	s.collectTopN(s.root, n, &out)
	return out, nil
}

// Rank returns the row for userID in O(log n), or ok=false when the user has
// no settled pick.
func (s *Standings) Rank(_ context.Context, userID string) (model.LeaderboardEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.byID[userID]
	if !ok {
		return model.LeaderboardEntry{}, false
	}
	rank := 1
	for n := s.root; n != nil; {
		switch {
		case n.id == userID:
			rank += nsize(n.left)
			n = nil
		case less(st.total, userID, n.total, n.id):
			n = n.left
		default:
			rank += nsize(n.left) + 1
			n = n.right
		}
	}
	return model.LeaderboardEntry{Rank: rank, UserID: userID, TotalPoints: st.total, Settled: st.settled}, true
}

// Count returns the number of ranked users.
func (s *Standings) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Entries returns every row in rank order.
func (s *Standings) Entries() []model.LeaderboardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LeaderboardEntry, 0, len(s.byID))
	s.collectTopN(s.root, len(s.byID), &out)
	return out
}
