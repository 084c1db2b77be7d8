// Package healthchecker supervises the health of the external
// streaming server.
package healthchecker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamwell/camagent/internal/breaker"
	"github.com/streamwell/camagent/internal/defs"
	"github.com/streamwell/camagent/internal/logger"
)

const (
	stopGraceTimeout = 2 * time.Second
)

type healthClient interface {
	CheckHealth(ctx context.Context) error
}

type healthCheckerParent interface {
	logger.Writer
}

// HealthChecker periodically probes the control API of the external
// streaming server, feeds results into a circuit breaker, and exposes
// a gate consulted before path mutations.
type HealthChecker struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	Breaker      *breaker.CircuitBreaker
	Client       healthClient
	Parent       healthCheckerParent

	ctx       context.Context
	ctxCancel func()

	mutex       sync.Mutex
	running     bool
	lastChecked time.Time

	terminate chan struct{}
	done      chan struct{}
}

// Start starts the HealthChecker.
func (hc *HealthChecker) Start() error {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	if hc.running {
		return fmt.Errorf("health checker is already running")
	}

	hc.ctx, hc.ctxCancel = context.WithCancel(context.Background())
	hc.terminate = make(chan struct{})
	hc.done = make(chan struct{})
	hc.running = true

	go hc.run()

	hc.Log(logger.Info, "started (interval: %v)", hc.Interval)

	return nil
}

// Stop stops the HealthChecker. It is idempotent.
func (hc *HealthChecker) Stop() {
	hc.mutex.Lock()
	if !hc.running {
		hc.mutex.Unlock()
		return
	}
	hc.running = false
	hc.mutex.Unlock()

	close(hc.terminate)

	select {
	case <-hc.done:
	case <-time.After(stopGraceTimeout):
		// force-cancel the in-flight probe.
		hc.ctxCancel()
		<-hc.done
	}

	hc.ctxCancel()
	hc.Log(logger.Info, "stopped")
}

// IsHealthy returns whether calls to the streaming server
// should be attempted.
func (hc *HealthChecker) IsHealthy() bool {
	return hc.Breaker.ShouldAttempt()
}

// RecordSuccess reports the success of an external call to the breaker.
func (hc *HealthChecker) RecordSuccess() {
	hc.Breaker.RecordSuccess()
}

// RecordFailure reports the failure of an external call to the breaker.
func (hc *HealthChecker) RecordFailure() {
	hc.Breaker.RecordFailure()
}

// Status returns the current health as seen by the checker.
func (hc *HealthChecker) Status() defs.APIHealth {
	hc.mutex.Lock()
	lastChecked := hc.lastChecked
	hc.mutex.Unlock()

	snap := hc.Breaker.Snapshot()

	return defs.APIHealth{
		Healthy:      snap.State == breaker.StateClosed,
		BreakerState: snap.State.String(),
		LastChecked:  lastChecked,
		Failures:     snap.ConsecutiveFailures,
	}
}

// Log implements logger.Writer.
func (hc *HealthChecker) Log(level logger.Level, format string, args ...interface{}) {
	hc.Parent.Log(level, "[health] "+format, args...)
}

func (hc *HealthChecker) run() {
	defer close(hc.done)

	t := time.NewTicker(hc.Interval)
	defer t.Stop()

	// probe immediately instead of waiting a full interval.
	hc.probe()

	for {
		select {
		case <-t.C:
			hc.probe()

		case <-hc.terminate:
			return
		}
	}
}

// probe runs a single health check. Failures never propagate:
// they are recorded into the breaker and the loop continues.
func (hc *HealthChecker) probe() {
	// while the breaker is open and the backoff has not elapsed,
	// probing is skipped entirely.
	if !hc.Breaker.ShouldAttempt() {
		return
	}

	ctx, cancel := context.WithTimeout(hc.ctx, hc.ProbeTimeout)
	defer cancel()

	err := hc.Client.CheckHealth(ctx)

	hc.mutex.Lock()
	hc.lastChecked = time.Now()
	hc.mutex.Unlock()

	if err != nil {
		hc.Log(logger.Warn, "health check failed: %v", err)
		hc.Breaker.RecordFailure()

		snap := hc.Breaker.Snapshot()
		if snap.State == breaker.StateOpen {
			hc.Log(logger.Warn, "circuit breaker is open, next attempt in %v", snap.CurrentBackoff)
		}
		return
	}

	prev := hc.Breaker.Snapshot().State
	hc.Breaker.RecordSuccess()
	if prev != breaker.StateClosed && hc.Breaker.Snapshot().State == breaker.StateClosed {
		hc.Log(logger.Info, "streaming server has recovered")
	}
}
