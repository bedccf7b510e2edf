package resilience

import (
	"fmt"
	"sync"
	"time"
)

// breakerState is the circuit breaker's FSM state, per spec §4.6: there is
// no third-party circuit breaker in the example corpus, so this is
// hand-rolled (see DESIGN.md).
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// BreakerConfig holds the circuit breaker's tunables.
type BreakerConfig struct {
	FailureThreshold int           // K: consecutive failures to trip CLOSED -> OPEN
	RecoverAfter     time.Duration // T_recover: how long OPEN lasts before probing
	SuccessThreshold int           // M: consecutive HALF_OPEN successes to close
}

// DefaultBreakerConfig is spec §4.6's circuit breaker policy.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	RecoverAfter:     30 * time.Second,
	SuccessThreshold: 2,
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	out := c
	if out.FailureThreshold == 0 {
		out.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if out.RecoverAfter == 0 {
		out.RecoverAfter = DefaultBreakerConfig.RecoverAfter
	}
	if out.SuccessThreshold == 0 {
		out.SuccessThreshold = DefaultBreakerConfig.SuccessThreshold
	}
	return out
}

// CircuitOpen is returned by Breaker.Allow (and propagated by Breaker.Do)
// when the breaker is OPEN and not yet due for a probe.
type CircuitOpen struct {
	Endpoint string
	RetryAt  time.Time
}

func (e *CircuitOpen) Error() string {
	return fmt.Sprintf("circuit open for %q until %s", e.Endpoint, e.RetryAt.Format(time.RFC3339))
}

// Breaker is a per-endpoint circuit breaker: CLOSED -> OPEN on K consecutive
// failures, OPEN for T_recover, HALF_OPEN admits probes, M consecutive
// successes returns to CLOSED; a HALF_OPEN failure returns to OPEN.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	endpoint string
	state    breakerState
	fails    int
	succs    int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker constructs a Breaker for endpoint (used only for error
// messages/metrics labeling).
func NewBreaker(endpoint string, cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), endpoint: endpoint, state: stateClosed, now: time.Now}
}

// Allow reports whether a call may proceed, returning *CircuitOpen if not.
// A HALF_OPEN admission counts as an in-flight probe: the caller must
// report its outcome via RecordSuccess/RecordFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		retryAt := b.openedAt.Add(b.cfg.RecoverAfter)
		if b.now().Before(retryAt) {
			return &CircuitOpen{Endpoint: b.endpoint, RetryAt: retryAt}
		}
		b.state = stateHalfOpen
		b.succs = 0
		return nil
	case stateHalfOpen:
		return nil
	}
	return nil
}

// RecordSuccess reports a successful call, per the FSM above.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		b.fails = 0
	case stateHalfOpen:
		b.succs++
		if b.succs >= b.cfg.SuccessThreshold {
			b.state = stateClosed
			b.fails = 0
			b.succs = 0
		}
	}
}

// RecordFailure reports a failed call, per the FSM above.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		b.fails++
		if b.fails >= b.cfg.FailureThreshold {
			b.state = stateOpen
			b.openedAt = b.now()
			b.fails = 0
		}
	case stateHalfOpen:
		b.state = stateOpen
		b.openedAt = b.now()
		b.succs = 0
	}
}

// Do runs fn if the breaker admits the call, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
