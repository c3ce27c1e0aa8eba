// Package traffic keeps a sliding window of request outcomes. The health
// endpoint reads it to decide overloaded, idle and degraded states.
package traffic

import (
	"sync"
	"time"
)

// Retention is how long outcomes are kept. Windows longer than this see at
// most Retention worth of data.
const Retention = 30 * time.Minute

type outcome uint8

const (
	outcomeSuccess outcome = iota
	outcomeError
	outcomeDenied
)

type event struct {
	at   time.Time
	kind outcome
}

// Counts is the number of outcomes of each kind inside a window.
type Counts struct {
	Successes int
	Errors    int
	Denied    int
}

// Requests is every outcome, denials included.
func (c Counts) Requests() int {
	return c.Successes + c.Errors + c.Denied
}

// ErrorPercent is errors over served requests (denials excluded), 0 when nothing was served.
func (c Counts) ErrorPercent() float64 {
	served := c.Successes + c.Errors
	if served == 0 {
		return 0
	}
	return float64(c.Errors) * 100 / float64(served)
}

// Tracker records timestamped outcomes. The zero value is ready to use.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns a tracker reading time from now; nil uses time.Now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// RecordSuccess records a request that was served.
func (t *Tracker) RecordSuccess() { t.record(outcomeSuccess) }

// RecordError records a request that failed on a backend (store, model, cache).
func (t *Tracker) RecordError() { t.record(outcomeError) }

// RecordDenied records a rate-limit rejection.
func (t *Tracker) RecordDenied() { t.record(outcomeDenied) }

func (t *Tracker) record(kind outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.events = append(t.events, event{at: now, kind: kind})
	t.pruneLocked(now)
}

// Counts returns the outcomes recorded within window of now.
func (t *Tracker) Counts(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	var c Counts
	// events are appended in time order; walk back until the cutoff.
	for i := len(t.events) - 1; i >= 0; i-- {
		e := t.events[i]
		if e.at.Before(cutoff) {
			break
		}
		switch e.kind {
		case outcomeSuccess:
			c.Successes++
		case outcomeError:
			c.Errors++
		case outcomeDenied:
			c.Denied++
		}
	}
	return c
}

// Reset drops every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-Retention)
	i := 0
	for i < len(t.events) && t.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}

var defaultTracker Tracker

// RecordSuccess records a served request on the process-wide tracker.
func RecordSuccess() { defaultTracker.RecordSuccess() }

// RecordError records a backend failure on the process-wide tracker.
func RecordError() { defaultTracker.RecordError() }

// RecordDenied records a 429 on the process-wide tracker.
func RecordDenied() { defaultTracker.RecordDenied() }

// Window returns the process-wide counts within window.
func Window(window time.Duration) Counts { return defaultTracker.Counts(window) }

// Reset clears the process-wide tracker. For tests.
func Reset() { defaultTracker.Reset() }
