package retry

import (
	"context"
	"math"
	"time"

	"tgharvester/internal/wire"
)

func floodWaitOf(err error) (time.Duration, bool) {
	fw, ok := wire.AsFloodWait(err)
	if !ok {
		return 0, false
	}
	return fw.Wait, true
}

// BackoffConfig holds the exponential backoff parameters from spec §4.9,
// defaulting to {max_retries=3, base=1s, factor=2, max_delay=60s}.
type BackoffConfig struct {
	MaxRetries int
	Base       time.Duration
	Factor     float64
	MaxDelay   time.Duration
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{MaxRetries: 3, Base: time.Second, Factor: 2, MaxDelay: 60 * time.Second}
}

// Delay returns the backoff delay before attempt (1-indexed), clamped to
// MaxDelay, per spec §4.9: delay = base * factor^attempt.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	d := float64(c.Base) * math.Pow(c.Factor, float64(attempt))
	if d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Op is a unit of retryable work. A FloodWait error is always honored in
// full and never consumes a retry attempt, per spec §4.9/§7.
type Op func(ctx context.Context, attempt int) error

// Do runs op under the classifier + exponential-backoff policy. Cancellation
// is cooperative: the retry loop checks ctx between attempts, per spec §5.
func Do(ctx context.Context, cfg BackoffConfig, sink Sink, op Op) error {
	attempt := 0
	for {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}

		if fw, ok := floodWaitOf(err); ok {
			if !sleep(ctx, fw) {
				return ctx.Err()
			}
			continue // does not consume a retry attempt
		}

		cat := Classify(err)
		if sink != nil {
			sink.Capture(err, cat)
		}
		if !cat.Retryable() {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return err
		}

		attempt++
		if !sleep(ctx, cfg.Delay(attempt)) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
