package resilience

import "context"

// Reconnector constructs a fresh connector instance, replacing one that a
// connection-recovery pass has decided is unusable.
type Reconnector[T any] func(ctx context.Context) (T, error)

// Recover implements §4.6's connection recovery: it evicts name from cache
// and calls reconnect up to maxAttempts times, returning the first instance
// a reconnect attempt produces. The caller is responsible for deciding when
// recovery is warranted (a detected pool/socket failure) and for re-wiring
// the returned instance into whatever called the connector originally.
func Recover[T any](ctx context.Context, cache *ConnectorCache[T], name string, reconnect Reconnector[T], maxAttempts int) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	cache.Remove(name)

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		inst, err := reconnect(ctx)
		if err == nil {
			cache.Put(name, inst)
			return inst, nil
		}
		lastErr = err
	}
	return zero, lastErr
}
