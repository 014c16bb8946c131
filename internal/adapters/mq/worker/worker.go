// Package worker runs contest settlements off the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

const (
	defaultWorkerCount = 4
	defaultJobTimeout  = 30 * time.Second
)

// Settler settles one contest and reports how many pick scores it wrote.
type Settler interface {
	Settle(ctx context.Context, contestID string) (int, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.SettlementJob
	Close() error
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	size       int
	queue      Queue
	settler    Settler
	jobTimeout time.Duration
	logger     logger.Logger

	wg sync.WaitGroup
}

// NewPool creates a pool; size < 1 selects the default.
func NewPool(size int, q Queue, s Settler, opts ...Option) *Pool {
	if size < 1 {
		size = defaultWorkerCount
	}
	p := &Pool{
		size:       size,
		queue:      q,
		settler:    s,
		jobTimeout: defaultJobTimeout,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. They exit when the queue closes and drains or
// ctx is done.
func (p *Pool) Start(ctx context.Context) {
	jobs := p.queue.Dequeue(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, jobs, p.logger.Named("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(p.size)
}

func (p *Pool) run(ctx context.Context, jobs <-chan model.SettlementJob, log logger.Logger) {
	defer p.wg.Done()
	for j := range jobs {
		if err := p.process(ctx, j, log); err != nil {
			log.Error(ctx, "settlement failed", logger.String("contest_id", j.ContestID), logger.Error(err))
		}
	}
}

// process settles one job. An incomplete result is not a failure: the job
// is dropped and the next result from the feed enqueues it again.
func (p *Pool) process(ctx context.Context, j model.SettlementJob, log logger.Logger) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	jctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	n, err := p.settler.Settle(jctx, j.ContestID)
	switch {
	case errors.Is(err, model.ErrIncompleteSettlement):
		log.Info(ctx, "settlement deferred", logger.String("contest_id", j.ContestID))
		return nil
	case err != nil:
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "settle")
		return fmt.Errorf("settle %s: %w", j.ContestID, err)
	}
	log.Debug(ctx, "contest settled",
		logger.String("contest_id", j.ContestID),
		logger.Int("updated", n),
		logger.Duration("queued_for", start.Sub(j.ReceivedAt)))
	return nil
}

// Shutdown closes the queue and waits for in-flight and buffered jobs.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
