// Package service is the pick'em engine facade: it wires the lock gate, the
// pick store, settlement and the leaderboard behind the caller-facing
// operations.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/okian/pickem/internal/adapters/mq/queue"
	"github.com/okian/pickem/internal/adapters/mq/worker"
	"github.com/okian/pickem/internal/adapters/notify"
	"github.com/okian/pickem/internal/adapters/repository"
	"github.com/okian/pickem/internal/domain/dedupe"
	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/internal/domain/scoring"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

const defaultTimezone = "America/Chicago"

// Service implements the engine operations.
type Service struct {
	mu sync.RWMutex

	picks     repository.PickStore
	contests  repository.ContestStore
	standings *repository.Standings
	scorer    scoring.Scorer
	notifier  notify.Notifier
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	clock     clockwork.Clock
	location  *time.Location

	// boardMu orders standings deltas against full rebuilds: settlements
	// share it, Reconcile takes it exclusively.
	boardMu sync.RWMutex

	workerCount   int
	queueSize     int
	dedupeSize    int
	settleTimeout time.Duration
	instanceID    string

	started bool
	cancel  context.CancelFunc
	logger  logger.Logger
}

// New constructs a Service with in-memory stores unless options say otherwise.
func New(opts ...Option) *Service {
	s := &Service{
		picks:         repository.NewMemoryStore(),
		contests:      repository.NewMemoryContests(),
		standings:     repository.NewStandings(),
		scorer:        scoring.NewSpreadScorer(),
		clock:         clockwork.NewRealClock(),
		workerCount:   runtime.NumCPU(),
		queueSize:     1024,
		dedupeSize:    10000,
		settleTimeout: 30 * time.Second,
		instanceID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger.Named("notify"))
	}
	if s.location == nil {
		loc, err := time.LoadLocation(defaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		s.location = loc
	}
	s.deduper = dedupe.New(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// subscriber is implemented by notifiers that can also deliver inbound
// notifications from other engine instances.
type subscriber interface {
	Subscribe(ctx context.Context, h notify.Handler) error
}

// Start seeds the standings from the store and starts the settlement workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting pick'em engine", logger.String("instance", s.instanceID))

	if _, err := s.Reconcile(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithLogger(s.logger.Named("settlement")),
		worker.WithJobTimeout(s.settleTimeout))
	s.pool.Start(runCtx)

	if sub, ok := s.notifier.(subscriber); ok {
		if err := sub.Subscribe(runCtx, func(ctx context.Context, n model.Notification) {
			if err := s.HandleNotification(ctx, n); err != nil {
				s.logger.Warn(ctx, "notification not handled", logger.String("id", n.ID), logger.Error(err))
			}
		}); err != nil {
			cancel()
			return err
		}
	}

	s.started = true
	s.logger.Info(ctx, "pick'em engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("rankedUsers", s.standings.Count()))
	return nil
}

// Stop drains queued settlements and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping pick'em engine")

	err := s.pool.Shutdown(ctx)
	s.cancel()
	s.started = false
	s.logger.Info(ctx, "pick'em engine stopped")
	return err
}

// Now returns the engine clock's current instant.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"instance":    s.instanceID,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.deduper.Size(),
		"rankedUsers": s.standings.Count(),
	}
	if n, err := s.picks.CountUsers(ctx); err == nil {
		stats["totalUsers"] = n
	}
	if s.started {
		stats["queueLength"] = s.queue.Len()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.HeapAlloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return stats
}
