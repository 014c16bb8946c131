package loadtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/pickem/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to both the console and a file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "loadtest_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Pick'em Load Tool
=================

Registers contests, submits picks from many concurrent users, posts final
results once the contests lock, then waits for the served leaderboard to
match a local recomputation.

Usage:
  go run ./cmd/loadtest [options]

Options:
  -url string         Base URL of the service (default "http://localhost:9080")
  -contests int       Contests to register (default 16)
  -users int          Concurrent users (default 500)
  -ops int            Submissions per user (default 20)
  -workers int        Concurrent HTTP workers (default CPU cores * 4)
  -lead duration      Time from registration to contest start (default 20s)
  -timeout duration   HTTP request timeout (default 10s)
  -settle duration    How long to wait for the leaderboard to converge (default 1m)
  -seed uint          Plan seed, 0 for random
  -log string         Log file (default: loadtest_TIMESTAMP.log)
  -verbose            Enable debug logging
  -help               Show this help message

Examples:
  go run ./cmd/loadtest -users 2000 -ops 40 -lead 45s
`)
}
