package metricsstore_test

import (
	"testing"

	"github.com/h4mn/skybridge/metricsstore"
	"github.com/stretchr/testify/assert"
)

func TestCounterIsIdempotentByName(t *testing.T) {
	reg := metricsstore.New("skybridge")
	a := reg.Counter("jobs_total", "total jobs", nil)
	b := reg.Counter("jobs_total", "total jobs", nil)

	a.Inc()
	b.Inc()

	gathered, err := reg.Gatherer().Gather()
	assert.NoError(t, err)
	assert.Len(t, gathered, 1)
	assert.Equal(t, float64(2), gathered[0].Metric[0].GetCounter().GetValue())
}

func TestHistogramPercentile(t *testing.T) {
	reg := metricsstore.New("skybridge")
	h := reg.Histogram("queue_latency_ms", "queue op latency", nil)

	for i := 1; i <= 100; i++ {
		h.Observe(float64(i))
	}

	assert.InDelta(t, 50, h.Percentile(50), 2)
	assert.InDelta(t, 99, h.Percentile(99), 2)
}

func TestGaugeSet(t *testing.T) {
	reg := metricsstore.New("skybridge")
	g := reg.Gauge("queue_size", "pending jobs", nil)
	g.Set(7)

	gathered, err := reg.Gatherer().Gather()
	assert.NoError(t, err)
	assert.Equal(t, float64(7), gathered[0].Metric[0].GetGauge().GetValue())
}
