package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/metrics"
)

// MemoryStore is an in-process PickStore. Mutations on one key are
// serialised by a per-key lock; different keys proceed in parallel and only
// share the short index critical section.
type MemoryStore struct {
	locks *keyLocks

	mu        sync.RWMutex
	byKey     map[model.PickKey]model.Pick
	byUser    map[string]map[string]struct{} // user -> contests
	byContest map[string]map[string]struct{} // contest -> users
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:     newKeyLocks(),
		byKey:     make(map[model.PickKey]model.Pick),
		byUser:    make(map[string]map[string]struct{}),
		byContest: make(map[string]map[string]struct{}),
	}
}

// Mutate implements PickStore.
func (s *MemoryStore) Mutate(ctx context.Context, key model.PickKey, fn MutateFunc) (*model.Pick, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("mutate", float64(time.Since(start).Microseconds())/1000)
	}()

	unlock := s.locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mutate %s: %w", key, err)
	}

	s.mu.RLock()
	cur, ok := s.byKey[key]
	s.mu.RUnlock()

	var current *model.Pick
	if ok {
		c := cur.Clone()
		current = &c
	}

	m, err := fn(current)
	if err != nil {
		return current, err
	}

	switch {
	case m.Put != nil:
		if m.Put.Key() != key {
			return current, fmt.Errorf("%w: pick %s does not belong to key %s", model.ErrDuplicateActivePick, m.Put.ID, key)
		}
		s.mu.Lock()
		s.byKey[key] = m.Put.Clone()
		s.index(key)
		s.mu.Unlock()
	case m.Delete && current != nil:
		s.mu.Lock()
		delete(s.byKey, key)
		s.unindex(key)
		s.mu.Unlock()
	}
	return current, nil
}

func (s *MemoryStore) index(key model.PickKey) {
	if s.byUser[key.UserID] == nil {
		s.byUser[key.UserID] = make(map[string]struct{})
	}
	s.byUser[key.UserID][key.ContestID] = struct{}{}
	if s.byContest[key.ContestID] == nil {
		s.byContest[key.ContestID] = make(map[string]struct{})
	}
	s.byContest[key.ContestID][key.UserID] = struct{}{}
}

func (s *MemoryStore) unindex(key model.PickKey) {
	if set := s.byUser[key.UserID]; set != nil {
		delete(set, key.ContestID)
		if len(set) == 0 {
			delete(s.byUser, key.UserID)
		}
	}
	if set := s.byContest[key.ContestID]; set != nil {
		delete(set, key.UserID)
		if len(set) == 0 {
			delete(s.byContest, key.ContestID)
		}
	}
}

// Get implements PickStore.
func (s *MemoryStore) Get(_ context.Context, key model.PickKey) (model.Pick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byKey[key]
	if !ok {
		return model.Pick{}, model.ErrPickNotFound
	}
	return p.Clone(), nil
}

// ListByUser implements PickStore.
func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]model.Pick, error) {
	s.mu.RLock()
	out := make([]model.Pick, 0, len(s.byUser[userID]))
	for contestID := range s.byUser[userID] {
		out = append(out, s.byKey[model.PickKey{UserID: userID, ContestID: contestID}].Clone())
	}
	s.mu.RUnlock()
	sortPicks(out)
	return out, nil
}

// ListByContest implements PickStore.
func (s *MemoryStore) ListByContest(_ context.Context, contestID string) ([]model.Pick, error) {
	s.mu.RLock()
	out := make([]model.Pick, 0, len(s.byContest[contestID]))
	for userID := range s.byContest[contestID] {
		out = append(out, s.byKey[model.PickKey{UserID: userID, ContestID: contestID}].Clone())
	}
	s.mu.RUnlock()
	sortPicks(out)
	return out, nil
}

// List implements PickStore.
func (s *MemoryStore) List(_ context.Context) ([]model.Pick, error) {
	s.mu.RLock()
	out := make([]model.Pick, 0, len(s.byKey))
	for _, p := range s.byKey {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()
	sortPicks(out)
	return out, nil
}

// CountUsers implements PickStore.
func (s *MemoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser), nil
}

// sortPicks orders by user then contest so listings are stable.
func sortPicks(ps []model.Pick) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].UserID != ps[j].UserID {
			return ps[i].UserID < ps[j].UserID
		}
		return ps[i].ContestID < ps[j].ContestID
	})
}
