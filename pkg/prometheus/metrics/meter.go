package metrics

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
)

type Meter interface {
	IncAcquire(table string)
	IncMiss(table string)
	IncAdd(table string)
	IncReplace(table string)
	IncRemove(table string)
	IncDestroy(table string)
	IncDestroyFailure(table string)
	IncLoad(table string)
	IncLoadFailure(table string)
	IncReclaimQueued()
	IncReclaimOverflow()
	SetLiveSegments(table string, num int64, weight int64)
	NewDestroyTimer(table string) *Timer
	FlushDestroyTimer(t *Timer)
	IncApiRequest(method, status string)
	NewApiTimer(method string) *Timer
	FlushApiTimer(t *Timer)
}

type Metrics struct{}

func New() (*Metrics, error) {
	return &Metrics{}, nil
}

func (m *Metrics) IncAcquire(table string)        { counter(keyword.Acquires, table).Inc() }
func (m *Metrics) IncMiss(table string)           { counter(keyword.Misses, table).Inc() }
func (m *Metrics) IncAdd(table string)            { counter(keyword.Adds, table).Inc() }
func (m *Metrics) IncReplace(table string)        { counter(keyword.Replaces, table).Inc() }
func (m *Metrics) IncRemove(table string)         { counter(keyword.Removes, table).Inc() }
func (m *Metrics) IncDestroy(table string)        { counter(keyword.Destroys, table).Inc() }
func (m *Metrics) IncDestroyFailure(table string) { counter(keyword.DestroyFailures, table).Inc() }
func (m *Metrics) IncLoad(table string)           { counter(keyword.Loads, table).Inc() }
func (m *Metrics) IncLoadFailure(table string)    { counter(keyword.LoadFailures, table).Inc() }

func (m *Metrics) IncReclaimQueued()   { metrics.GetOrCreateCounter(keyword.ReclaimQueued).Inc() }
func (m *Metrics) IncReclaimOverflow() { metrics.GetOrCreateCounter(keyword.ReclaimOverflow).Inc() }

func (m *Metrics) SetLiveSegments(table string, num int64, weight int64) {
	metrics.GetOrCreateGauge(labeled(keyword.LiveSegments, table), nil).Set(float64(num))
	metrics.GetOrCreateGauge(labeled(keyword.SegmentsWeight, table), nil).Set(float64(weight))
}

func counter(name, table string) *metrics.Counter {
	return metrics.GetOrCreateCounter(labeled(name, table))
}

// labeled renders name{table="..."}.
func labeled(name, table string) string {
	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, name...)
	*buf = append(*buf, `{table="`...)
	*buf = append(*buf, sanitize(table)...)
	*buf = append(*buf, `"}`...)

	return string(*buf)
}

// Timer is a pooled teardown latency tracker.
type Timer struct {
	start time.Time
	buf   *bytes.Buffer
}

var timerPool = sync.Pool{
	New: func() any {
		return &Timer{
			buf: bytes.NewBuffer(make([]byte, 0, 128)),
		}
	},
}

func (m *Metrics) NewDestroyTimer(table string) *Timer {
	t := timerPool.Get().(*Timer)
	t.start = time.Now()
	t.buf.Reset()

	t.buf.WriteString(keyword.DestroyDurationMs)
	t.buf.WriteString(`{table="`)
	t.buf.WriteString(sanitize(table))
	t.buf.WriteString(`"}`)

	return t
}

func (m *Metrics) FlushDestroyTimer(t *Timer) {
	durationMs := float64(time.Since(t.start).Microseconds()) / 1000
	metrics.GetOrCreateHistogram(t.buf.String()).Update(durationMs)
	timerPool.Put(t)
}

func (m *Metrics) IncApiRequest(method, status string) {
	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, keyword.ApiRequests...)
	*buf = append(*buf, `{method="`...)
	*buf = append(*buf, sanitize(method)...)
	*buf = append(*buf, `",status="`...)
	*buf = append(*buf, status...)
	*buf = append(*buf, `"}`...)

	metrics.GetOrCreateCounter(string(*buf)).Inc()
}

func (m *Metrics) NewApiTimer(method string) *Timer {
	t := timerPool.Get().(*Timer)
	t.start = time.Now()
	t.buf.Reset()

	t.buf.WriteString(keyword.ApiDurationMs)
	t.buf.WriteString(`{method="`)
	t.buf.WriteString(sanitize(method))
	t.buf.WriteString(`"}`)

	return t
}

// FlushApiTimer shares the histogram path with destroy timers.
func (m *Metrics) FlushApiTimer(t *Timer) {
	m.FlushDestroyTimer(t)
}

// sanitize escapes quotes and backslashes in label values.
func sanitize(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// ===== buf []byte pooling =====

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

func getBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

func putBuf(b *[]byte) {
	*b = (*b)[:0]
	bufPool.Put(b)
}
