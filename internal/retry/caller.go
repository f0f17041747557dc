// Package retry wraps unreliable upstream calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/debatebot/internal/metrics"
	"github.com/cenkalti/backoff/v4"
)

// Class is the retry-relevant category of an upstream error.
type Class string

const (
	// ClassNone marks a successful outcome.
	ClassNone Class = ""
	// ClassAuth errors are never retried.
	ClassAuth Class = "auth"
	// ClassTransient covers rate limits, timeouts and generic upstream failures.
	ClassTransient Class = "transient"
	// ClassUnknown errors are retried like transient ones.
	ClassUnknown Class = "unknown"
)

// ErrAuthentication can be wrapped by collaborators to mark a credential failure.
var ErrAuthentication = errors.New("authentication failed")

// Classifier maps an error to its Class.
type Classifier func(error) Class

// DefaultClassifier recognises ErrAuthentication and context timeouts.
// Everything else is unknown.
func DefaultClassifier(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrAuthentication):
		return ClassAuth
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassUnknown
	}
}

// Config controls the backoff schedule.
type Config struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor applied to each delay, in [0,1).
	Jitter float64
}

// DefaultConfig returns three attempts starting at one second, capped at ten.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      0.1,
	}
}

// Outcome is the result of one backoff-wrapped invocation.
type Outcome[T any] struct {
	Value T
	OK    bool
	// Err is the last error seen when OK is false.
	Err   error
	Class Class
	// Calls is the number of times fn ran.
	Calls int
}

// Caller executes functions with retry and classification.
type Caller struct {
	cfg      Config
	classify Classifier
	logger   *slog.Logger
}

// NewCaller creates a Caller. A nil classifier uses DefaultClassifier.
func NewCaller(cfg Config, classify Classifier, logger *slog.Logger) *Caller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = 0
	}
	if classify == nil {
		classify = DefaultClassifier
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{cfg: cfg, classify: classify, logger: logger}
}

// MaxAttempts returns the configured call cap.
func (c *Caller) MaxAttempts() int { return c.cfg.MaxAttempts }

func (c *Caller) newBackOff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.BaseDelay
	expo.MaxInterval = c.cfg.MaxDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = c.cfg.Jitter
	expo.MaxElapsedTime = 0 // bounded by attempts, not by time

	retries := uint64(c.cfg.MaxAttempts - 1)
	return backoff.WithContext(backoff.WithMaxRetries(expo, retries), ctx)
}

// Invoke runs fn until it succeeds, fails with an auth error, the context is
// done, or the attempt cap is reached. It never panics on upstream errors.
func Invoke[T any](ctx context.Context, c *Caller, op string, fn func(context.Context) (T, error)) Outcome[T] {
	var out Outcome[T]
	start := time.Now()
	defer func() {
		metrics.ExternalLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	attempt := func() error {
		out.Calls++
		value, err := fn(ctx)
		if err == nil {
			out.Value = value
			out.Class = ClassNone
			metrics.ExternalCalls.WithLabelValues(op, "success").Inc()
			return nil
		}

		out.Class = c.classify(err)
		metrics.ExternalCalls.WithLabelValues(op, "failure").Inc()
		metrics.ExternalFailures.WithLabelValues(op, string(out.Class)).Inc()

		if out.Class == ClassAuth {
			c.logger.Error("upstream authentication failed",
				"op", op,
				"attempt", out.Calls,
				"critical", true,
				"error", err,
			)
			return backoff.Permanent(err)
		}
		c.logger.Warn("upstream call failed",
			"op", op,
			"attempt", out.Calls,
			"max_attempts", c.cfg.MaxAttempts,
			"class", out.Class,
			"error", err,
		)
		return err
	}

	notify := func(err error, delay time.Duration) {
		metrics.ExternalRetries.WithLabelValues(op, string(out.Class)).Inc()
		c.logger.Debug("retrying upstream call", "op", op, "next_attempt", out.Calls+1, "delay", delay)
	}

	if err := backoff.RetryNotify(attempt, c.newBackOff(ctx), notify); err != nil {
		out.Err = err
		if out.Class == ClassNone {
			out.Class = c.classify(err)
		}
		if out.Class != ClassAuth {
			c.logger.Warn("upstream call exhausted", "op", op, "calls", out.Calls, "class", out.Class, "error", err)
		}
		return out
	}

	out.OK = true
	return out
}
