package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	assert.False(t, timer.start.IsZero())

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObserve(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_step_seconds",
		Help: "test",
	})
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_step_vec_seconds",
		Help: "test",
	}, []string{"step"})

	timer := NewTimer()
	timer.ObserveDuration(histogram)
	timer.ObserveDurationVec(vec, "start_queued")
	timer.ObserveDurationVec(vec, "scan_running")

	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
	assert.Equal(t, 2, testutil.CollectAndCount(vec))
}
