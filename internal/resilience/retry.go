// Package resilience wraps connector I/O with the retry, circuit-breaker,
// rate-limiting, and connection-recovery behavior spec §4.6 requires. It
// decorates calls made through the connector package; connectors themselves
// stay unaware of resilience policy.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/ops"
)

// RetryConfig holds the retry policy's tunables. Zero values are replaced
// by DefaultRetryConfig's values.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	Multiplier     float64
	JitterFraction float64 // e.g. 0.2 for ±20%
}

// DefaultRetryConfig is spec §4.6's retry policy.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:    3,
	InitialDelay:   1 * time.Second,
	Multiplier:     2.0,
	JitterFraction: 0.2,
}

func (c RetryConfig) withDefaults() RetryConfig {
	out := c
	if out.MaxAttempts == 0 {
		out.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if out.InitialDelay == 0 {
		out.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if out.Multiplier == 0 {
		out.Multiplier = DefaultRetryConfig.Multiplier
	}
	if out.JitterFraction == 0 {
		out.JitterFraction = DefaultRetryConfig.JitterFraction
	}
	return out
}

// Retryable reports whether err belongs to a retryable error class: a
// ConnectionFailed or Timeout. Auth failures, schema mismatches, and
// InvalidIdentifier are never retried.
func Retryable(err error) bool {
	var connFailed *connector.ConnectionFailed
	var timeout *connector.Timeout
	return errors.As(err, &connFailed) || errors.As(err, &timeout)
}

// Retry runs fn up to cfg.MaxAttempts times, backing off exponentially with
// jitter between attempts, stopping early on a non-retryable error or when
// ctx is canceled.
func Retry(ctx context.Context, cfg RetryConfig, log ops.Logger, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	if log == nil {
		log = ops.Discard
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialDelay
	eb.Multiplier = cfg.Multiplier
	eb.RandomizationFactor = cfg.JitterFraction
	eb.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall-clock
	bo := backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(&connector.ConnectionFailed{Connector: "resilience", Cause: ctx.Err()})
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		log.Log(logrus.WarnLevel, logrus.Fields{"attempt": attempt}, "retrying after transient failure")
		return err
	}

	return backoff.Retry(operation, bo)
}

// jitteredDelay is exposed for tests that want to assert the jitter bound
// without depending on backoff's internal RNG state.
func jitteredDelay(base time.Duration, fraction float64) time.Duration {
	delta := float64(base) * fraction
	offset := (rand.Float64()*2 - 1) * delta
	return base + time.Duration(offset)
}
