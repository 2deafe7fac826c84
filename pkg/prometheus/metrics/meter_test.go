package metrics

import (
	"testing"

	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
)

func TestLabeled(t *testing.T) {
	assert.Equal(t, `segreg_live_segments{table="orders"}`, labeled(keyword.LiveSegments, "orders"))
	assert.Equal(t, `segreg_live_segments{table="a\"b\\c"}`, labeled(keyword.LiveSegments, `a"b\c`))
}

func TestMeter_Counters(t *testing.T) {
	m, _ := New()
	const table = "meter_test_counters"

	m.IncAcquire(table)
	m.IncAcquire(table)
	m.IncMiss(table)
	m.IncDestroy(table)

	assert.Equal(t, uint64(2), metrics.GetOrCreateCounter(labeled(keyword.Acquires, table)).Get())
	assert.Equal(t, uint64(1), metrics.GetOrCreateCounter(labeled(keyword.Misses, table)).Get())
	assert.Equal(t, uint64(1), metrics.GetOrCreateCounter(labeled(keyword.Destroys, table)).Get())

	m.SetLiveSegments(table, 7, 1024)
	assert.Equal(t, float64(7), metrics.GetOrCreateGauge(labeled(keyword.LiveSegments, table), nil).Get())

	timer := m.NewDestroyTimer(table)
	assert.Equal(t, `segreg_segment_destroy_ms{table="meter_test_counters"}`, timer.buf.String())
	m.FlushDestroyTimer(timer)
}

func TestMeter_ApiRequests(t *testing.T) {
	m, _ := New()

	m.IncApiRequest("PUT", "201")
	assert.Equal(t, uint64(1), metrics.GetOrCreateCounter(`segreg_api_requests_total{method="PUT",status="201"}`).Get())

	timer := m.NewApiTimer("PUT")
	assert.Equal(t, `segreg_api_request_ms{method="PUT"}`, timer.buf.String())
	m.FlushApiTimer(timer)
}
