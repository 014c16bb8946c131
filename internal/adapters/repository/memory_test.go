package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/pickem/internal/domain/model"
)

func put(p model.Pick) MutateFunc {
	return func(*model.Pick) (Mutation, error) { return Mutation{Put: &p}, nil }
}

func TestMemoryStore_CreateReplaceDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := model.PickKey{UserID: "u1", ContestID: "c1"}

	prev, err := s.Mutate(ctx, key, put(model.Pick{ID: "p1", UserID: "u1", ContestID: "c1", TeamID: "home"}))
	if err != nil || prev != nil {
		t.Fatalf("create: prev=%v err=%v", prev, err)
	}

	prev, err = s.Mutate(ctx, key, put(model.Pick{ID: "p2", UserID: "u1", ContestID: "c1", TeamID: "away"}))
	if err != nil || prev == nil || prev.ID != "p1" {
		t.Fatalf("replace: prev=%v err=%v", prev, err)
	}
	got, err := s.Get(ctx, key)
	if err != nil || got.ID != "p2" || got.TeamID != "away" {
		t.Fatalf("expected p2/away, got %+v err=%v", got, err)
	}
	if picks, _ := s.ListByContest(ctx, "c1"); len(picks) != 1 {
		t.Errorf("expected exactly one pick for the key, got %d", len(picks))
	}

	prev, err = s.Mutate(ctx, key, func(*model.Pick) (Mutation, error) { return Mutation{Delete: true}, nil })
	if err != nil || prev == nil || prev.ID != "p2" {
		t.Fatalf("delete: prev=%v err=%v", prev, err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, model.ErrPickNotFound) {
		t.Errorf("expected ErrPickNotFound, got %v", err)
	}
	if n, _ := s.CountUsers(ctx); n != 0 {
		t.Errorf("expected indexes to be empty, users=%d", n)
	}
	if n := s.locks.len(); n != 0 {
		t.Errorf("expected key locks to be released, got %d", n)
	}
}

func TestMemoryStore_RejectionLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := model.PickKey{UserID: "u1", ContestID: "c1"}
	_, _ = s.Mutate(ctx, key, put(model.Pick{ID: "p1", UserID: "u1", ContestID: "c1", TeamID: "home"}))

	_, err := s.Mutate(ctx, key, func(*model.Pick) (Mutation, error) { return Mutation{}, model.ErrLocked })
	if !errors.Is(err, model.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if got, _ := s.Get(ctx, key); got.ID != "p1" {
		t.Errorf("expected p1 to survive, got %+v", got)
	}

	_, err = s.Mutate(ctx, key, put(model.Pick{ID: "px", UserID: "u2", ContestID: "c1"}))
	if !errors.Is(err, model.ErrDuplicateActivePick) {
		t.Errorf("expected key mismatch to be rejected, got %v", err)
	}
}

func TestMemoryStore_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := model.PickKey{UserID: "u1", ContestID: "c1"}

	// Each writer reads the current pick and replaces it; if two ever ran
	// inside the critical section together, a version would be lost.
	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Mutate(ctx, key, func(cur *model.Pick) (Mutation, error) {
				next := model.Pick{ID: fmt.Sprintf("p%d", i), UserID: "u1", ContestID: "c1", TeamID: "x"}
				if cur != nil {
					next.TeamID = cur.TeamID + "x"
				}
				time.Sleep(time.Microsecond)
				return Mutation{Put: &next}, nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.TeamID) != writers {
		t.Errorf("expected %d serialised writes, got %d", writers, len(got.TeamID))
	}
	if picks, _ := s.ListByUser(ctx, "u1"); len(picks) != 1 {
		t.Errorf("expected one pick, got %d", len(picks))
	}
}

func TestMemoryStore_DifferentKeysDoNotBlock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = s.Mutate(ctx, model.PickKey{UserID: "u1", ContestID: "c1"}, func(*model.Pick) (Mutation, error) {
			close(held)
			<-release
			return Mutation{}, nil
		})
	}()
	<-held

	done := make(chan struct{})
	go func() {
		_, _ = s.Mutate(ctx, model.PickKey{UserID: "u2", ContestID: "c1"},
			put(model.Pick{ID: "p2", UserID: "u2", ContestID: "c1", TeamID: "home"}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation on another key was blocked")
	}
	close(release)
}
