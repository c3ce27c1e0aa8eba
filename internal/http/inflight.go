package http

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests between entry and exit of
// MetricsMiddleware. Shutdown drains it once the server stops accepting
// connections.
type InFlightTracker struct {
	count atomic.Int64
}

func (t *InFlightTracker) Increment() { t.count.Add(1) }

func (t *InFlightTracker) Decrement() { t.count.Add(-1) }

// Count returns the number of requests being served.
func (t *InFlightTracker) Count() int64 { return t.count.Load() }

// Drain polls every checkInterval until no request is in flight. When ctx
// ends first the error carries the number still running.
func (t *InFlightTracker) Drain(ctx context.Context, checkInterval time.Duration) error {
	if checkInterval <= 0 {
		checkInterval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		n := t.Count()
		if n <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d requests still in flight: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the number of requests inside the router.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight drains the router's in-flight requests.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.Drain(ctx, checkInterval)
}
