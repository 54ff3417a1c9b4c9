package upstream

import (
	"sync"
	"time"
)

const (
	timeoutInitial = 5000 * time.Millisecond
	timeoutMin     = 1000 * time.Millisecond
	timeoutMax     = 30000 * time.Millisecond
	timeoutDecay   = 0.95
	timeoutGrowth  = 1.2
)

// adaptiveTimeout is the per-upstream I/O deadline (spec Section 4.5): it
// decays on fast success and grows on slow failure, always bounded to
// [1000ms, 30000ms].
type adaptiveTimeout struct {
	mu      sync.Mutex
	current time.Duration
}

func newAdaptiveTimeout() *adaptiveTimeout {
	return &adaptiveTimeout{current: timeoutInitial}
}

// value returns the current timeout to use for the next attempt.
func (a *adaptiveTimeout) value() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// update applies one completed attempt's outcome to the timeout.
// On success with duration < current/2, decay by 0.95x (floor 1000ms).
// On failure where duration >= current, grow by 1.2x (cap 30000ms).
// Other outcomes leave the timeout unchanged.
func (a *adaptiveTimeout) update(success bool, duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case success && duration < a.current/2:
		next := time.Duration(float64(a.current) * timeoutDecay)
		if next < timeoutMin {
			next = timeoutMin
		}
		a.current = next
	case !success && duration >= a.current:
		next := time.Duration(float64(a.current) * timeoutGrowth)
		if next > timeoutMax {
			next = timeoutMax
		}
		a.current = next
	}
}
