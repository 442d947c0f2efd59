// Package health implements the post-deploy HTTP probe.
//
// The probe is deliberately simple: GET the configured URL, treat any
// 2xx as healthy, retry a bounded number of times with a fixed
// interval. No distinction is made between retryable and fatal
// failures beyond the attempt budget — a stack that cannot answer a
// health endpoint within the budget is treated as a failed deploy
// either way.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// Prober probes an HTTP endpoint until it answers healthy or the
// attempt budget is exhausted.
type Prober struct {
	// URL is the endpoint to probe.
	URL string

	// Attempts is the bounded retry budget. Must be at least 1.
	Attempts int

	// Interval is the pause between attempts.
	Interval time.Duration

	// Timeout bounds a single attempt, connection included.
	Timeout time.Duration

	// Client is the HTTP client to probe with. When nil, a plain
	// http.Client is used; tests inject an httptest-backed client.
	Client *http.Client

	// Logger receives one line per attempt.
	Logger zerolog.Logger
}

// Check runs the probe loop. It returns nil as soon as one attempt
// gets a 2xx response, and a CLIError with ExitHealthCheckFailed when
// all attempts fail. Context cancellation aborts the loop between
// attempts and mid-request.
func (p *Prober) Check(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{}
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			// Fixed-interval wait, abandoned early on cancellation.
			select {
			case <-time.After(p.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := p.probeOnce(ctx, client)
		if err == nil {
			p.Logger.Info().Str("url", p.URL).Int("attempt", attempt).Msg("health check passed")
			return nil
		}
		lastErr = err
		p.Logger.Warn().Str("url", p.URL).Int("attempt", attempt).Int("budget", p.Attempts).
			Err(err).Msg("health check attempt failed")

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return model.WrapCLIError(
		model.ExitHealthCheckFailed,
		fmt.Sprintf("health check failed after %d attempt(s) against %s", p.Attempts, p.URL),
		lastErr,
	)
}

// probeOnce performs a single GET bounded by the per-attempt timeout.
func (p *Prober) probeOnce(ctx context.Context, client *http.Client) error {
	attemptCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
