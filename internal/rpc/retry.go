package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	"github.com/goran-ethernal/ChainSyncer/pkg/config"
)

// jitter is the relative spread applied to every backoff delay.
const jitter = 0.25

// temporary reports whether a failed request may succeed when repeated: throttling and 5xx
// answers, transport failures and truncated bodies. Other API answers are final.
func temporary(err error) bool {
	if err == nil {
		return false
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Temporary()
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// covers *url.Error returned by http.Client, including client timeouts
	var netErr net.Error
	return errors.As(err, &netErr)
}

// backoff computes the delay before a retry.
type backoff struct {
	base       time.Duration
	max        time.Duration
	multiplier float64
}

func newBackoff(cfg *config.HTTPConfig) backoff {
	return backoff{
		base:       cfg.RetrySleep.Duration,
		max:        cfg.MaxRetrySleep.Duration,
		multiplier: cfg.RetryMultiplier,
	}
}

// delay returns the sleep before the n-th retry (n starts at 1), capped at max and
// spread by jitter.
func (b backoff) delay(n int) time.Duration {
	if n < 1 || b.base <= 0 {
		return 0
	}

	d := float64(b.base) * math.Pow(b.multiplier, float64(n-1))
	if b.max > 0 {
		d = math.Min(d, float64(b.max))
	}

	d += d * jitter * (2*rand.Float64() - 1) //nolint:gosec

	return time.Duration(d)
}

// retry runs fn until it succeeds, fails with a final error or cfg.RetryCount attempts are spent.
// A nil cfg runs fn once.
func retry(ctx context.Context, cfg *config.HTTPConfig, datasource, endpoint string, fn func() error) error {
	if cfg == nil {
		return fn()
	}

	attempts := max(cfg.RetryCount, 1)
	b := newBackoff(cfg)
	start := time.Now()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			RPCRetryInc(datasource, endpoint)

			select {
			case <-time.After(b.delay(attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled while backing off after attempt %d: %w", endpoint, attempt-1, ctx.Err())
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", endpoint, ctx.Err())
		}
		if !temporary(err) {
			return err
		}
	}

	return fmt.Errorf("%s: all %d attempts failed in %v: %w", endpoint, attempts, time.Since(start).Round(time.Millisecond), err)
}
