package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRecordDefaults(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	assert.Equal(t, 1.0, r.Weight)
	assert.Equal(t, 100, r.Capacity)
	assert.Equal(t, 1.0, r.SuccessRate(), "a fresh upstream has no history, so success rate defaults to 1.0")
}

func TestRecordHealthyByDefault(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	assert.True(t, r.healthy())
}

func TestRecordUnhealthyBelowSuccessRateThreshold(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	for i := 0; i < 10; i++ {
		r.recordAttempt(false, 10*time.Millisecond)
	}
	assert.False(t, r.healthy())
}

func TestRecordUnhealthyOverLatencyThreshold(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	r.recordAttempt(true, 600*time.Millisecond)
	assert.False(t, r.healthy())
}

func TestRecordUnhealthyOverOutstandingThreshold(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1", Capacity: 10})
	r.outstanding.Store(9)
	assert.False(t, r.healthy())
}

func TestRecordLatencyMovingAverage(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	r.recordAttempt(true, 100*time.Millisecond)
	assert.Equal(t, 100.0, r.AvgLatencyMS())

	r.recordAttempt(true, 300*time.Millisecond)
	assert.Equal(t, 200.0, r.AvgLatencyMS(), "avg := (avg + sample) / 2")
}

func TestRecordHealthyExportedMatchesInternal(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	assert.Equal(t, r.healthy(), r.Healthy())

	r.recordAttempt(true, 600*time.Millisecond)
	assert.Equal(t, r.healthy(), r.Healthy())
}

func TestRecordBreakerStateReportsClosedInitially(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	assert.Equal(t, "closed", r.BreakerState())
}

func TestRecordBreakerStateReportsOpenAfterFailures(t *testing.T) {
	r := NewRecord(UpstreamSpec{ID: "u1", Address: "127.0.0.1"})
	for i := 0; i < 5; i++ {
		r.recordAttempt(false, 10*time.Millisecond)
	}
	assert.Equal(t, "open", r.BreakerState())
}
