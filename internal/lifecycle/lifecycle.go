// Package lifecycle holds process-wide state read by the health endpoint:
// the shutdown flag and the degraded-recovery loop.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. /health answers 503 while set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// CheckFunc probes the backends; nil means they are usable again.
type CheckFunc func(ctx context.Context) error

// Recovery re-checks backends on a Fibonacci schedule after the service
// reports degraded, and calls OnRecovered once a check passes.
type Recovery struct {
	Check        CheckFunc
	Initial      time.Duration
	Max          time.Duration
	CheckTimeout time.Duration
	OnRecovered  func()
	OnExhausted  func()

	mu      sync.Mutex
	notify  chan struct{}
	running atomic.Bool
}

// Start listens for Notify calls until ctx is done. At most one recovery
// run is active at a time.
func (r *Recovery) Start(ctx context.Context) {
	r.mu.Lock()
	r.notify = make(chan struct{}, 1)
	ch := r.notify
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if r.running.Swap(true) {
					continue
				}
				go func() {
					defer r.running.Store(false)
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Notify asks for a recovery run. Non-blocking; a no-op before Start.
func (r *Recovery) Notify() {
	r.mu.Lock()
	ch := r.notify
	r.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Running reports whether a recovery run is in progress.
func (r *Recovery) Running() bool {
	return r.running.Load()
}

// Run waits through the delay schedule, checking after each delay. Returns
// true when a check passed.
func (r *Recovery) Run(ctx context.Context) bool {
	delays := FibonacciDelays(r.Initial, r.Max)
	timeout := r.CheckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	for _, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := r.Check(checkCtx)
		cancel()
		if err == nil {
			if r.OnRecovered != nil {
				r.OnRecovered()
			}
			return true
		}
	}
	if len(delays) > 0 && r.OnExhausted != nil {
		r.OnExhausted()
	}
	return false
}

// FibonacciDelays returns initial×1, ×2, ×3, ×5, ... up to and including max.
func FibonacciDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
	}
	return out
}
