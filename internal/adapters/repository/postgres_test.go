package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pickem/internal/domain/model"
)

// newTestPostgres connects to PICKEM_TEST_DATABASE_URL or skips.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("PICKEM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PICKEM_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore_PickLifecycle(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	user := "u-" + uuid.NewString()
	key := model.PickKey{UserID: user, ContestID: "c-" + uuid.NewString()}
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := model.Pick{ID: uuid.NewString(), UserID: key.UserID, ContestID: key.ContestID, TeamID: "home", CreatedAt: now}
	if _, err := s.Mutate(ctx, key, put(first)); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := first
	second.ID = uuid.NewString()
	second.TeamID = "away"
	prev, err := s.Mutate(ctx, key, put(second))
	if err != nil || prev == nil || prev.ID != first.ID {
		t.Fatalf("replace: prev=%v err=%v", prev, err)
	}

	scored := second
	score := dec("-0.5")
	scored.Score = &score
	if _, err := s.Mutate(ctx, key, put(scored)); err != nil {
		t.Fatalf("score: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil || got.ID != second.ID || got.Score == nil || !got.Score.Equal(score) {
		t.Fatalf("expected scored second pick, got %+v err=%v", got, err)
	}

	if _, err := s.Mutate(ctx, key, func(*model.Pick) (Mutation, error) { return Mutation{Delete: true}, nil }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, model.ErrPickNotFound) {
		t.Errorf("expected ErrPickNotFound, got %v", err)
	}
}

func TestPostgresStore_ConcurrentSubmitsKeepOnePick(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	key := model.PickKey{UserID: "u-" + uuid.NewString(), ContestID: "c-" + uuid.NewString()}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := model.Pick{ID: uuid.NewString(), UserID: key.UserID, ContestID: key.ContestID, TeamID: fmt.Sprintf("t%d", i%2), CreatedAt: time.Now()}
			if _, err := s.Mutate(ctx, key, put(p)); err != nil {
				t.Errorf("mutate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	picks, err := s.ListByUser(ctx, key.UserID)
	if err != nil || len(picks) != 1 {
		t.Errorf("expected exactly one pick, got %d err=%v", len(picks), err)
	}
}

func TestPostgresContests_RoundTrip(t *testing.T) {
	s := newTestPostgres(t).Contests()
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	c := testContest("c-"+uuid.NewString(), start)

	if _, err := s.Upsert(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.Get(ctx, c.ID)
	if err != nil || !got.Spread.Equal(c.Spread) || got.Home.ID != "home" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	c.Spread = dec("1")
	if _, err := s.Upsert(ctx, c); !errors.Is(err, model.ErrSpreadImmutable) {
		t.Errorf("expected ErrSpreadImmutable, got %v", err)
	}

	final, err := s.RecordResult(ctx, model.Result{ContestID: c.ID, HomeScore: intp(10), AwayScore: intp(3), Ended: true})
	if err != nil || !final.Settleable() {
		t.Errorf("record result: %+v err=%v", final, err)
	}

	list, err := s.ListBetween(ctx, start, start.Add(time.Second))
	if err != nil || len(list) == 0 {
		t.Errorf("expected contest in window, got %d err=%v", len(list), err)
	}
}
