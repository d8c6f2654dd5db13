// Package breaker implements a failure-counting circuit breaker for a single
// upstream dependency. All state lives behind a mutex; the breaker performs
// no I/O of its own and is driven entirely through Allow and AfterCall.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llmguard/llmguard/internal/metrics"
)

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Default thresholds, matching the configuration defaults.
const (
	DefaultFailMax      = 3
	DefaultResetTimeout = 60 * time.Second
)

// Breaker tracks consecutive upstream failures and fast-fails callers while
// the upstream is considered unhealthy.
//
// While half-open, concurrent callers are all admitted; any probe success
// closes the breaker and any probe failure reopens it. There is no
// single-probe admission limiting.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
	failMax      int
	resetTimeout time.Duration
	name         string

	// now is swapped out in tests
	now func() time.Time
}

// New creates a breaker that opens after failMax consecutive failures and
// admits a probe resetTimeout after opening. Non-positive arguments fall
// back to the defaults.
func New(name string, failMax int, resetTimeout time.Duration) *Breaker {
	if failMax <= 0 {
		failMax = DefaultFailMax
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	if name == "" {
		name = "llm"
	}
	b := &Breaker{
		state:        Closed,
		failMax:      failMax,
		resetTimeout: resetTimeout,
		name:         name,
		now:          time.Now,
	}
	metrics.Default().SetBreakerState(name, float64(Closed))
	return b
}

// Allow reports whether a call may proceed. When the breaker is open and the
// reset timeout has elapsed it transitions to half-open and admits the call;
// it has no other side effect.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false
		}
		b.transition(HalfOpen)
	}
	return true
}

// AfterCall records the outcome of a permitted call. Success closes the
// breaker and clears the failure count. A failure increments the count and
// opens the breaker when half-open or when the count reaches the threshold.
func (b *Breaker) AfterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failureCount = 0
		b.openedAt = time.Time{}
		if b.state != Closed {
			b.transition(Closed)
		}
		return
	}

	b.failureCount++
	if b.state == HalfOpen || b.failureCount >= b.failMax {
		// Pin the count at the threshold so the closed-state invariant
		// (failureCount < failMax) holds after the next success reset.
		b.failureCount = b.failMax
		b.openedAt = b.now()
		b.transition(Open)
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	metrics.Default().SetBreakerState(b.name, float64(to))
	if from == to {
		return
	}
	log.Info().
		Str("breaker", b.name).
		Str("from", from.String()).
		Str("to", to.String()).
		Int("failure_count", b.failureCount).
		Msg("Circuit breaker state changed")
}
