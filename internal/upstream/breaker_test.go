package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterFiveFailures(t *testing.T) {
	b := newBreaker()
	for i := 0; i < 4; i++ {
		b.record(false)
		assert.True(t, b.allow(), "breaker must stay closed before the 5th failure")
	}
	b.record(false)
	assert.False(t, b.allow(), "breaker must open on the 5th consecutive failure")
}

func TestBreakerHalfOpensAfterCooldown(t *testing.T) {
	b := newBreaker()
	for i := 0; i < 5; i++ {
		b.record(false)
	}
	require.False(t, b.allow())

	b.openSince = time.Now().Add(-breakerOpenDuration - time.Second)
	assert.True(t, b.allow(), "breaker must allow a probe attempt after the cooldown")
}

func TestBreakerHalfOpenClosesAfterThreeSuccesses(t *testing.T) {
	b := newBreaker()
	b.mu.Lock()
	b.state = breakerHalfOpen
	b.mu.Unlock()

	b.record(true)
	b.record(true)
	assert.Equal(t, breakerHalfOpen, b.currentState(), "two successes must not yet close the breaker")

	b.record(true)
	assert.Equal(t, breakerClosed, b.currentState(), "the third consecutive success must close the breaker")
}

func TestBreakerHalfOpenReopensOnSingleFailure(t *testing.T) {
	b := newBreaker()
	b.mu.Lock()
	b.state = breakerHalfOpen
	b.mu.Unlock()

	b.record(false)
	assert.Equal(t, breakerOpen, b.currentState())
}
