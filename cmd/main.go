package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/pickem/internal/adapters/http/api"
	"github.com/okian/pickem/internal/adapters/http/swagger"
	"github.com/okian/pickem/internal/adapters/notify"
	"github.com/okian/pickem/internal/adapters/repository"
	app "github.com/okian/pickem/internal/app"
	"github.com/okian/pickem/internal/config"
	"github.com/okian/pickem/internal/domain/dedupe"
	"github.com/okian/pickem/pkg/logger"
	"github.com/okian/pickem/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	metricsInterval   = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "pick'em engine failed", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the engine from cfg and serves HTTP until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	eng, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	if eng.feed != nil {
		if err := eng.feed.Start(ctx); err != nil {
			return err
		}
	}

	go startMetricsUpdater(ctx, eng.svc)

	srv := newHTTPServer(cfg, eng.svc, log)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := eng.svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// engine is the wired service plus the resources it owns.
type engine struct {
	svc     *app.Service
	feed    *notify.ResultFeed
	closers []func()
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// buildEngine selects the store and the notifier from cfg. NATS is optional:
// without nats_url, notifications are only logged and results arrive over
// HTTP alone.
func buildEngine(ctx context.Context, cfg *config.Config, log logger.Logger) (*engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	eng := &engine{}
	opts := []app.Option{
		app.WithLogger(log.Named("engine")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithSettleTimeout(cfg.SettleTimeout()),
		app.WithLocation(loc),
	}

	if cfg.Store == config.StorePostgres {
		store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		eng.closers = append(eng.closers, func() { _ = store.Close() })
		opts = append(opts, app.WithStores(store, store.Contests()))
		log.Info(ctx, "using postgres store")
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		ncfg := notify.DefaultNATSConfig()
		ncfg.URL = cfg.NATSURL
		nc, err = notify.Connect(ncfg, log.Named("nats"))
		if err != nil {
			eng.close()
			return nil, err
		}
		eng.closers = append(eng.closers, nc.Close)
		opts = append(opts, app.WithNotifier(notify.NewNATSNotifier(nc, cfg.NATSSubjectPrefix, log.Named("notify"))))
		log.Info(ctx, "connected to NATS", logger.String("url", nc.ConnectedUrl()))
	}

	eng.svc = app.New(opts...)
	if nc != nil && cfg.ResultFeedSubject != "" {
		seen := dedupe.New(dedupe.WithMaxSize(cfg.DedupeSize))
		eng.feed = notify.NewResultFeed(nc, cfg.ResultFeedSubject, eng.svc, seen, log.Named("feed"))
	}
	return eng, nil
}

// newHTTPServer registers the API and docs routes on a fresh mux.
func newHTTPServer(cfg *config.Config, svc *app.Service, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, cfg.MaxLeaderboardLimit, log.Named("http")).Register(mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startMetricsUpdater refreshes the gauges GetStats maintains.
func startMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.GetStats(ctx)
			if n, ok := stats["rankedUsers"].(int); ok {
				metrics.UpdateLeaderboardUsers(n)
			}
			if n, ok := stats["queueLength"].(int); ok {
				metrics.UpdateQueueSize(n)
			}
		}
	}
}
