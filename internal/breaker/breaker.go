// Package breaker contains a circuit breaker.
package breaker

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// State is the state of a CircuitBreaker.
type State int

// states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "halfOpen"
	default:
		return "closed"
	}
}

// Snapshot is a read-only view of the breaker state.
type Snapshot struct {
	State               State
	ConsecutiveFailures int
	ConsecutiveSuccesses int
	LastTransition      time.Time
	CurrentBackoff      time.Duration
}

// CircuitBreaker is a consecutive-failure tracker that gates whether
// an operation should be attempted immediately, deferred, or permitted
// as a trial.
type CircuitBreaker struct {
	FailureThreshold  int
	RecoveryThreshold int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	Multiplier        float64
	JitterLow         float64
	JitterHigh        float64

	// test hooks
	TimeNow   func() time.Time
	RandFloat func() float64

	mutex          sync.Mutex
	state          State
	failures       int
	successes      int
	lastTransition time.Time
	openCount      int
	backoff        time.Duration
	wait           time.Duration
}

// Initialize initializes a CircuitBreaker.
func (b *CircuitBreaker) Initialize() {
	if b.TimeNow == nil {
		b.TimeNow = time.Now
	}
	if b.RandFloat == nil {
		b.RandFloat = rand.Float64
	}

	b.state = StateClosed
	b.lastTransition = b.TimeNow()
	b.backoff = b.BaseBackoff
	b.wait = b.BaseBackoff
}

// RecordSuccess records the success of a gated operation.
func (b *CircuitBreaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0

	case StateHalfOpen:
		b.successes++
		if b.successes >= b.RecoveryThreshold {
			b.transition(StateClosed)
			b.openCount = 0
			b.backoff = b.BaseBackoff
			b.wait = b.BaseBackoff
		}

	case StateOpen:
		// a success can't be observed while open, since the gate
		// rejects attempts. Ignore.
	}
}

// RecordFailure records the failure of a gated operation.
func (b *CircuitBreaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.FailureThreshold {
			b.open()
		}

	case StateHalfOpen:
		// the trial failed, reopen with a longer backoff.
		b.failures++
		b.open()

	case StateOpen:
		b.failures++
	}
}

// ShouldAttempt returns whether a gated operation should be attempted.
// While open, it returns true only once the backoff has elapsed, in
// which case the breaker moves to half-open and permits a single trial;
// callers must serialize trials.
func (b *CircuitBreaker) ShouldAttempt() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true

	default:
		if b.TimeNow().Sub(b.lastTransition) >= b.wait {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	}
}

// Snapshot returns a read-only view of the breaker state.
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return Snapshot{
		State:                b.state,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		LastTransition:       b.lastTransition,
		CurrentBackoff:       b.backoff,
	}
}

func (b *CircuitBreaker) open() {
	b.transition(StateOpen)

	// interval = min(maxBackoff, base * multiplier^openCount),
	// then scaled by a uniform random jitter to avoid thundering herds.
	interval := time.Duration(float64(b.BaseBackoff) * math.Pow(b.Multiplier, float64(b.openCount)))
	if interval > b.MaxBackoff || interval <= 0 {
		interval = b.MaxBackoff
	}
	b.backoff = interval

	jitter := b.JitterLow + b.RandFloat()*(b.JitterHigh-b.JitterLow)
	b.wait = time.Duration(float64(interval) * jitter)

	b.openCount++
}

func (b *CircuitBreaker) transition(s State) {
	b.state = s
	b.lastTransition = b.TimeNow()
	b.failures = 0
	b.successes = 0
}
