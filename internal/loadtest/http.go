package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pickem/internal/domain/model"
	"github.com/okian/pickem/pkg/logger"
)

// errLocked marks a submission the engine refused because the contest started.
var errLocked = errors.New("contest locked")

// HTTPClient wraps http.Client with JSON helpers.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// do sends body as JSON and decodes a 2xx answer into out when out is set.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) submit(ctx context.Context, req pickRequest) (model.Action, error) {
	var res submitResponse
	status, err := c.do(ctx, http.MethodPost, "/picks", req, &res)
	if status == http.StatusConflict {
		return "", errLocked
	}
	return res.Action, err
}

// submitAll sends every user's ops with cfg.Workers workers. A user is owned
// by one worker, so its ops reach the engine in plan order. It returns the
// expected slots after every applied op.
func submitAll(ctx context.Context, cfg *Config, client *HTTPClient, p *plan, stats *Stats) slots {
	log := logger.Named("submit")
	log.Info(ctx, "submitting picks", logger.Int("users", len(p.ops)), logger.Int("workers", cfg.Workers))

	var (
		submitted, applied, locked, mismatched, failed atomic.Int64

		mu       sync.Mutex
		expected = make(slots)
		wg       sync.WaitGroup
	)
	users := make(chan string, cfg.Workers*2)

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range users {
				local := make(slots)
				for _, req := range p.ops[user] {
					if ctx.Err() != nil {
						return
					}
					submitted.Add(1)
					got, err := client.submit(ctx, req)
					switch {
					case errors.Is(err, errLocked):
						locked.Add(1)
						continue
					case err != nil:
						failed.Add(1)
						log.Debug(ctx, "submission failed", logger.String("user", user), logger.Error(err))
						continue
					}
					want := local.apply(req)
					applied.Add(1)
					if got != want {
						mismatched.Add(1)
						log.Warn(ctx, "unexpected action",
							logger.String("user", user),
							logger.String("contest", req.ContestID),
							logger.String("want", string(want)),
							logger.String("got", string(got)))
					}
				}
				mu.Lock()
				for k, v := range local {
					expected[k] = v
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for user := range p.ops {
		select {
		case <-ctx.Done():
			break dispatch
		case users <- user:
		}
	}
	close(users)
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Applied = int(applied.Load())
	stats.Locked = int(locked.Load())
	stats.Mismatched = int(mismatched.Load())
	stats.Failed = int(failed.Load())
	log.Info(ctx, "submission completed",
		logger.Int("applied", stats.Applied),
		logger.Int("locked", stats.Locked),
		logger.Int("mismatched", stats.Mismatched),
		logger.Int("failed", stats.Failed))
	return expected
}
