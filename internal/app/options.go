package service

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/pickem/internal/adapters/notify"
	"github.com/okian/pickem/internal/adapters/repository"
	"github.com/okian/pickem/internal/domain/scoring"
	"github.com/okian/pickem/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of settlement workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the settlement queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many inbound notification IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSettleTimeout bounds one asynchronous settlement.
func WithSettleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.settleTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock every lock decision reads.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStores replaces the in-memory pick and contest stores.
func WithStores(picks repository.PickStore, contests repository.ContestStore) Option {
	return func(s *Service) {
		if picks != nil {
			s.picks = picks
		}
		if contests != nil {
			s.contests = contests
		}
	}
}

// WithNotifier sets where change notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithScorer replaces the against-the-spread scorer.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithLocation sets the timezone that defines a calendar day for the slate.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithInstanceID names this engine instance in published notifications.
func WithInstanceID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.instanceID = id
		}
	}
}
