package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pickem/internal/loadtest"
	"github.com/okian/pickem/pkg/logger"
)

// Default configuration constants.
const (
	defaultContests   = 16
	defaultUsers      = 500
	defaultOps        = 20
	defaultWorkers    = 4 // multiplier for runtime.NumCPU()
	defaultLead       = 20 * time.Second
	defaultTimeout    = 10 * time.Second
	defaultSettleWait = time.Minute
	defaultPoll       = 250 * time.Millisecond
	defaultRunTimeout = 15 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		contests = flag.Int("contests", defaultContests, "Contests to register")
		users    = flag.Int("users", defaultUsers, "Concurrent users")
		ops      = flag.Int("ops", defaultOps, "Submissions per user")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent HTTP workers")
		lead     = flag.Duration("lead", defaultLead, "Time from registration to contest start")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle   = flag.Duration("settle", defaultSettleWait, "How long to wait for the leaderboard to converge")
		seed     = flag.Uint64("seed", 0, "Plan seed, 0 for random")
		logFile  = flag.String("log", "", "Log file (default: loadtest_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable debug logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	if err := loadtest.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	_, err := loadtest.Run(ctx, &loadtest.Config{
		BaseURL:      *baseURL,
		Contests:     max(*contests, 1),
		Users:        max(*users, 1),
		OpsPerUser:   max(*ops, 1),
		Workers:      max(*workers, 1),
		Lead:         *lead,
		Timeout:      *timeout,
		SettleWait:   *settle,
		PollInterval: defaultPoll,
		Seed:         *seed,
		LogFile:      *logFile,
		Verbose:      *verbose,
	})
	if err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		os.Exit(1)
	}
	logger.Get().Info(ctx, "load run passed")
}
