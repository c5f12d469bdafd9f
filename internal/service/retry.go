package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/store"
)

// Backoff between transaction attempts.
var retryDelays = []time.Duration{
	25 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
}

const (
	// DefaultMaxAttempts is the default number of transaction attempts.
	DefaultMaxAttempts = 3

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay returns the jittered delay after failed attempt n.
// n is 0-indexed.
func NextRetryDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= len(retryDelays) {
		n = len(retryDelays) - 1
	}

	base := retryDelays[n]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// txRunner runs transactions, retrying transient failures only. fn may run
// more than once and must not carry state between attempts.
type txRunner struct {
	transactor  store.Transactor
	metrics     metrics.Recorder
	maxAttempts int
	backoff     func(n int) time.Duration
}

func (r *txRunner) run(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			r.metrics.IncTxRetry()
			if !wait(ctx, r.backoff(attempt-1)) {
				return err
			}
		}

		start := time.Now()
		err = r.transactor.RunInTx(ctx, fn)
		r.metrics.ObserveTxDuration(time.Since(start))

		if err == nil || !apperror.IsRetryable(err) {
			return err
		}
	}
	return err
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
