package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loykin/cgirun/internal/common"
)

// Config controls how history store writes are retried.
type Config struct {
	MaxRetries      int           // attempts after the first one
	InitialDelay    time.Duration // delay before the first retry
	MaxDelay        time.Duration // upper bound for a single delay
	BackoffFactor   float64       // multiplier applied per attempt
	RetryableErrors []string      // lower-case substrings that mark an error transient
}

// DefaultRetryConfig returns the configuration used when none is given.
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"temporary failure",
			"deadlock",
			"database is locked",
			"database table is locked",
			"sqlite_busy",
			"connection lost",
			"broken pipe",
		},
	}
}

func (rc *Config) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range rc.RetryableErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// calculateDelay returns the exponential backoff delay for attempt (0-based).
func (rc *Config) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt)))
	if delay > rc.MaxDelay || delay <= 0 {
		delay = rc.MaxDelay
	}
	return delay
}

// Operation is a unit of store work that may be repeated.
type Operation func() error

// WithRetry runs op until it succeeds, fails with a non-transient error,
// exhausts the configured attempts or ctx is done.
func WithRetry(ctx context.Context, config *Config, op Operation) error {
	_, err := Do(ctx, config, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Do is WithRetry for operations that produce a value.
func Do[T any](ctx context.Context, config *Config, op func() (T, error)) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	logger := common.GetLogger().WithComponent("store-retry")

	var zero T
	var lastErr error
	attempts := config.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := op()
		if err == nil {
			if attempt > 0 {
				logger.Info("store operation succeeded after retry", "attempt", attempt+1)
			}
			return v, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		if !config.isRetryableError(err) {
			logger.Debug("store operation failed with non-retryable error", "error", err, "attempt", attempt+1)
			return zero, err
		}

		delay := config.calculateDelay(attempt)
		logger.Warn("store operation failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"retry_delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}

	logger.Error("store operation failed after all retry attempts", "error", lastErr, "attempts", attempts)
	return zero, fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
