package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/metrics"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS contests (
	id          TEXT PRIMARY KEY,
	home_team   JSONB NOT NULL,
	away_team   JSONB NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	spread      NUMERIC NOT NULL,
	home_score  INTEGER,
	away_score  INTEGER,
	ended       BOOLEAN NOT NULL DEFAULT FALSE,
	CHECK ((home_score IS NULL) = (away_score IS NULL))
);
CREATE INDEX IF NOT EXISTS contests_start_time_idx ON contests (start_time);

CREATE TABLE IF NOT EXISTS picks (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	contest_id  TEXT NOT NULL,
	team_id     TEXT NOT NULL,
	score       NUMERIC,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS picks_user_contest_key ON picks (user_id, contest_id);
CREATE INDEX IF NOT EXISTS picks_contest_idx ON picks (contest_id);
`

const pickColumns = `id, user_id, contest_id, team_id, score::text, created_at`

// PostgresStore implements PickStore and ContestStore on PostgreSQL.
//
// Per-key serialisation uses a transaction-scoped advisory lock, so the
// guarantee holds across every process sharing the database. The unique
// index on (user_id, contest_id) is the backstop for anything that bypasses
// the lock.
type PostgresStore struct {
	pool        *pgxpool.Pool
	maxRetries  int
	setupSchema bool
}

// NewPostgresStore connects to dsn, pings the server and prepares the schema.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{maxRetries: 3, setupSchema: true}
	for _, opt := range opts {
		opt(s)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s.pool = pool

	if s.setupSchema {
		if _, err := pool.Exec(ctx, schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return s, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func lockKey(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}

// Mutate implements PickStore.
func (s *PostgresStore) Mutate(ctx context.Context, key model.PickKey, fn MutateFunc) (*model.Pick, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("mutate", float64(time.Since(start).Microseconds())/1000)
	}()

	for attempt := 0; ; attempt++ {
		prev, err := s.mutateOnce(ctx, key, fn)
		if err == nil || !isUniqueViolation(err) {
			return prev, err
		}
		if attempt >= s.maxRetries {
			return prev, fmt.Errorf("pick %s: %w", key, model.ErrDuplicateActivePick)
		}
		metrics.RecordStoreRetry()
	}
}

func (s *PostgresStore) mutateOnce(ctx context.Context, key model.PickKey, fn MutateFunc) (*model.Pick, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockKey(ctx, tx, "pick:"+key.String()); err != nil {
		return nil, err
	}

	current, err := scanPick(tx.QueryRow(ctx,
		`SELECT `+pickColumns+` FROM picks WHERE user_id = $1 AND contest_id = $2`,
		key.UserID, key.ContestID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		current = nil
	case err != nil:
		return nil, fmt.Errorf("load pick %s: %w", key, err)
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
		if err := putPick(ctx, tx, current, m.Put); err != nil {
			return current, err
		}
	case m.Delete && current != nil:
		if _, err := tx.Exec(ctx, `DELETE FROM picks WHERE id = $1`, current.ID); err != nil {
			return current, fmt.Errorf("delete pick %s: %w", current.ID, err)
		}
	default:
		return current, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return current, fmt.Errorf("commit: %w", err)
	}
	return current, nil
}

// putPick writes p, replacing current inside the same transaction.
func putPick(ctx context.Context, tx pgx.Tx, current, p *model.Pick) error {
	score := scoreArg(p.Score)
	if current != nil && current.ID == p.ID {
		_, err := tx.Exec(ctx,
			`UPDATE picks SET team_id = $2, score = $3::numeric WHERE id = $1`,
			p.ID, p.TeamID, score)
		if err != nil {
			return fmt.Errorf("update pick %s: %w", p.ID, err)
		}
		return nil
	}
	if current != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM picks WHERE id = $1`, current.ID); err != nil {
			return fmt.Errorf("replace pick %s: %w", current.ID, err)
		}
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO picks (id, user_id, contest_id, team_id, score, created_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
		p.ID, p.UserID, p.ContestID, p.TeamID, score, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pick %s: %w", p.ID, err)
	}
	return nil
}

func scoreArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func scanPick(row pgx.Row) (*model.Pick, error) {
	var (
		p     model.Pick
		score *string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.ContestID, &p.TeamID, &score, &p.CreatedAt); err != nil {
		return nil, err
	}
	if score != nil {
		d, err := decimal.NewFromString(*score)
		if err != nil {
			return nil, fmt.Errorf("parse score of pick %s: %w", p.ID, err)
		}
		p.Score = &d
	}
	return &p, nil
}

func (s *PostgresStore) queryPicks(ctx context.Context, sql string, args ...any) ([]model.Pick, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query picks: %w", err)
	}
	defer rows.Close()

	var out []model.Pick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Get implements PickStore.
func (s *PostgresStore) Get(ctx context.Context, key model.PickKey) (model.Pick, error) {
	p, err := scanPick(s.pool.QueryRow(ctx,
		`SELECT `+pickColumns+` FROM picks WHERE user_id = $1 AND contest_id = $2`,
		key.UserID, key.ContestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Pick{}, model.ErrPickNotFound
	}
	if err != nil {
		return model.Pick{}, fmt.Errorf("get pick %s: %w", key, err)
	}
	return *p, nil
}

// ListByUser implements PickStore.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]model.Pick, error) {
	return s.queryPicks(ctx,
		`SELECT `+pickColumns+` FROM picks WHERE user_id = $1 ORDER BY contest_id`, userID)
}

// ListByContest implements PickStore.
func (s *PostgresStore) ListByContest(ctx context.Context, contestID string) ([]model.Pick, error) {
	return s.queryPicks(ctx,
		`SELECT `+pickColumns+` FROM picks WHERE contest_id = $1 ORDER BY user_id`, contestID)
}

// List implements PickStore.
func (s *PostgresStore) List(ctx context.Context) ([]model.Pick, error) {
	return s.queryPicks(ctx,
		`SELECT `+pickColumns+` FROM picks ORDER BY user_id, contest_id`)
}

// CountUsers implements PickStore.
func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM picks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Contests returns a ContestStore sharing the same pool.
func (s *PostgresStore) Contests() *PostgresContests {
	return &PostgresContests{pool: s.pool}
}

// PostgresContests implements ContestStore on PostgreSQL.
type PostgresContests struct {
	pool *pgxpool.Pool
}

const contestColumns = `id, home_team, away_team, start_time, spread::text, home_score, away_score, ended`

func scanContest(row pgx.Row) (model.Contest, error) {
	var (
		c          model.Contest
		home, away []byte
		spread     string
	)
	if err := row.Scan(&c.ID, &home, &away, &c.StartTime, &spread, &c.HomeScore, &c.AwayScore, &c.Ended); err != nil {
		return model.Contest{}, err
	}
	if err := json.Unmarshal(home, &c.Home); err != nil {
		return model.Contest{}, fmt.Errorf("decode home team of %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(away, &c.Away); err != nil {
		return model.Contest{}, fmt.Errorf("decode away team of %s: %w", c.ID, err)
	}
	d, err := decimal.NewFromString(spread)
	if err != nil {
		return model.Contest{}, fmt.Errorf("parse spread of %s: %w", c.ID, err)
	}
	c.Spread = d
	return c, nil
}

// withContest runs fn on the locked current row (nil when absent) and saves
// what it returns.
func (s *PostgresContests) withContest(ctx context.Context, id string, fn func(cur *model.Contest) (model.Contest, error)) (model.Contest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Contest{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockKey(ctx, tx, "contest:"+id); err != nil {
		return model.Contest{}, err
	}

	var cur *model.Contest
	c, err := scanContest(tx.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return model.Contest{}, fmt.Errorf("load contest %s: %w", id, err)
	default:
		cur = &c
	}

	next, err := fn(cur)
	if err != nil {
		return model.Contest{}, err
	}

	home, err := json.Marshal(next.Home)
	if err != nil {
		return model.Contest{}, fmt.Errorf("encode home team: %w", err)
	}
	away, err := json.Marshal(next.Away)
	if err != nil {
		return model.Contest{}, fmt.Errorf("encode away team: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO contests (id, home_team, away_team, start_time, spread, home_score, away_score, ended)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			start_time = EXCLUDED.start_time,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			ended = EXCLUDED.ended`,
		next.ID, home, away, next.StartTime, next.Spread.String(), next.HomeScore, next.AwayScore, next.Ended)
	if err != nil {
		return model.Contest{}, fmt.Errorf("save contest %s: %w", next.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Contest{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// Upsert implements ContestStore.
func (s *PostgresContests) Upsert(ctx context.Context, c model.Contest) (model.Contest, error) {
	if err := c.Validate(); err != nil {
		return model.Contest{}, err
	}
	return s.withContest(ctx, c.ID, func(cur *model.Contest) (model.Contest, error) {
		if cur == nil {
			return c, nil
		}
		return mergeContest(*cur, c)
	})
}

// Get implements ContestStore.
func (s *PostgresContests) Get(ctx context.Context, id string) (model.Contest, error) {
	c, err := scanContest(s.pool.QueryRow(ctx, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Contest{}, fmt.Errorf("contest %s: %w", id, model.ErrContestNotFound)
	}
	if err != nil {
		return model.Contest{}, fmt.Errorf("get contest %s: %w", id, err)
	}
	return c, nil
}

// RecordResult implements ContestStore.
func (s *PostgresContests) RecordResult(ctx context.Context, r model.Result) (model.Contest, error) {
	return s.withContest(ctx, r.ContestID, func(cur *model.Contest) (model.Contest, error) {
		if cur == nil {
			return model.Contest{}, fmt.Errorf("contest %s: %w", r.ContestID, model.ErrContestNotFound)
		}
		return applyResult(*cur, r)
	})
}

// ListBetween implements ContestStore.
func (s *PostgresContests) ListBetween(ctx context.Context, from, to time.Time) ([]model.Contest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contestColumns+` FROM contests WHERE start_time >= $1 AND start_time < $2 ORDER BY start_time, id`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}
	defer rows.Close()

	var out []model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
