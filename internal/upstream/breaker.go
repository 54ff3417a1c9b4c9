package upstream

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breakerOpenDuration is how long a breaker stays open before the next
// attempt is allowed through as a half-open probe.
const breakerOpenDuration = 30 * time.Second

// breaker is the per-upstream circuit-breaker state machine (spec Section
// 4.5). Transitions:
//
//	closed -> open:      5 consecutive failures
//	open -> half_open:   30s after the open transition
//	half_open -> closed: 3 consecutive successes
//	half_open -> open:   a single failure
type breaker struct {
	mu             sync.Mutex
	state          breakerState
	failureCount   int
	successCount   int
	lastFailureAt  time.Time
	lastSuccessAt  time.Time
	openSince      time.Time
}

func newBreaker() *breaker {
	return &breaker{state: breakerClosed}
}

// stateName returns the breaker's current state as a label for status
// reporting.
func (b *breaker) stateName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// allow reports whether a request may be attempted against this upstream
// right now, transitioning open -> half_open as a side effect once the
// cooldown has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.openSince) >= breakerOpenDuration {
			b.state = breakerHalfOpen
			b.successCount = 0
			return true
		}
		return false
	default:
		return true
	}
}

// record applies the outcome of one attempt to the breaker's state
// machine.
func (b *breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if success {
		b.lastSuccessAt = now
		b.recordSuccessLocked()
	} else {
		b.lastFailureAt = now
		b.recordFailureLocked()
	}
}

func (b *breaker) recordSuccessLocked() {
	b.failureCount = 0
	switch b.state {
	case breakerHalfOpen:
		b.successCount++
		if b.successCount >= 3 {
			b.state = breakerClosed
			b.successCount = 0
		}
	case breakerOpen:
		// A success while open shouldn't occur (allow() gates attempts),
		// but treat it the same as a half-open success for safety.
		b.state = breakerClosed
		b.successCount = 0
	}
}

func (b *breaker) recordFailureLocked() {
	b.successCount = 0
	switch b.state {
	case breakerClosed:
		b.failureCount++
		if b.failureCount >= 5 {
			b.state = breakerOpen
			b.openSince = time.Now()
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openSince = time.Now()
	}
}

// currentState returns the breaker's state, applying the open->half_open
// timeout check without mutating state (used for diagnostics).
func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerOpen && time.Since(b.openSince) >= breakerOpenDuration {
		return breakerHalfOpen
	}
	return b.state
}
