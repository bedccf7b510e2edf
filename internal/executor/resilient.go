package executor

import (
	"context"
	"strings"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/ops"
	"github.com/giaosudau/sqlflow-sub007/internal/resilience"
)

// networked reports whether typeTag talks to an external service, per
// spec §4.6's retry/breaker/rate-limit requirement. Local, in-process
// connectors (CSV, PARQUET, MEMORY) have no endpoint to protect.
func networked(typeTag string) bool {
	switch strings.ToUpper(typeTag) {
	case "POSTGRES", "POSTGRESQL", "S3", "REST":
		return true
	default:
		return false
	}
}

// resilientConnector decorates a connectorVariant's single-shot calls
// (TestConnection, Describe, Write) with retry, a per-type circuit breaker,
// and a shared rate limiter. Read/ReadIncremental stream over a channel
// rather than returning a single error, so they pass through undecorated —
// a connector's own internal retries (if any) govern streaming reads.
type resilientConnector struct {
	connectorVariant
	typeTag     string
	breaker     *resilience.Breaker
	limiter     *resilience.RateLimiter
	retryConfig resilience.RetryConfig
	log         ops.Logger
}

func (e *Executor) wrapResilient(typeTag string, c connectorVariant) connectorVariant {
	if !networked(typeTag) {
		return c
	}
	return &resilientConnector{
		connectorVariant: c,
		typeTag:          typeTag,
		breaker:          e.breakerFor(typeTag),
		limiter:          e.limiter,
		retryConfig:      e.retryConfig,
		log:              e.log,
	}
}

func (e *Executor) breakerFor(typeTag string) *resilience.Breaker {
	if b, ok := e.breakers[typeTag]; ok {
		return b
	}
	b := resilience.NewBreaker(typeTag, e.breakerConfig)
	e.breakers[typeTag] = b
	return b
}

func (r *resilientConnector) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return resilience.Retry(ctx, r.retryConfig, r.log, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return r.breaker.Do(func() error { return fn(ctx) })
	})
}

func (r *resilientConnector) TestConnection(ctx context.Context) (connector.ConnectionTest, error) {
	var result connector.ConnectionTest
	err := r.call(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = r.connectorVariant.TestConnection(ctx)
		return innerErr
	})
	return result, err
}

func (r *resilientConnector) Describe(ctx context.Context, object string) (connector.Schema, error) {
	var sch connector.Schema
	err := r.call(ctx, func(ctx context.Context) error {
		var innerErr error
		sch, innerErr = r.connectorVariant.Describe(ctx, object)
		return innerErr
	})
	return sch, err
}

func (r *resilientConnector) Write(ctx context.Context, object string, chunks []connector.DataChunk, mode connector.LoadMode, mergeKeys []string) (connector.WriteResult, error) {
	var result connector.WriteResult
	err := r.call(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = r.connectorVariant.Write(ctx, object, chunks, mode, mergeKeys)
		return innerErr
	})
	return result, err
}
