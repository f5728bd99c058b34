package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff between attempts.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Resilient wraps an oracle with a per-call timeout, bounded exponential
// backoff retry and a circuit breaker. Exhausted retries return *Error.
type Resilient struct {
	provider   string
	inner      Oracle
	timeout    time.Duration
	maxRetries int
	retryCfg   RetryConfig
	cb         *gobreaker.CircuitBreaker
}

// NewResilient wraps inner. maxRetries counts retries after the first attempt.
// Breaker state changes are logged to logger, or slog.Default when nil.
func NewResilient(provider string, inner Oracle, timeout time.Duration, maxRetries int, retryCfg RetryConfig, logger *slog.Logger) *Resilient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "oracle")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,                // One trial request while half-open
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before a trial request
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not an oracle failure
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Resilient{
		provider:   provider,
		inner:      inner,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryCfg:   retryCfg,
		cb:         cb,
	}
}

// Generate calls the wrapped oracle, retrying transient failures.
func (r *Resilient) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	attempts := 0

	operation := func() error {
		// Fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempts++

		result, err := r.cb.Execute(func() (interface{}, error) {
			callCtx := ctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}
			return r.inner.Generate(callCtx, prompt)
		})
		if err != nil {
			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		text = result.(string)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryCfg.InitialInterval
	policy.MaxInterval = r.retryCfg.MaxInterval
	policy.MaxElapsedTime = 0 // Bounded by retry count instead
	policy.Multiplier = r.retryCfg.Multiplier
	policy.RandomizationFactor = r.retryCfg.RandomizationFactor

	b := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(r.maxRetries))
	if err := backoff.Retry(operation, b); err != nil {
		return "", &Error{Provider: r.provider, Attempts: attempts, Err: err}
	}
	return text, nil
}

// State returns the circuit breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.cb.State()
}
