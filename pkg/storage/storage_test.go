package storage

import (
	"errors"
	"runtime"
	"testing"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/mock"
	"github.com/Borislavv/segment-registry/pkg/storage/table"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxSegmentsNum = 100_000

func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
}

func newRegistry(tb testing.TB, name string) *table.Registry {
	r := table.NewRegistry(table.WithPreallocate(8))
	require.NoError(tb, r.Init(config.Table{Name: name, DataDir: "/tmp/" + name, ReadMode: config.Heap, WorkerThreads: 1}))
	require.NoError(tb, r.Start())
	return r
}

func TestTables_RegisterGetNames(t *testing.T) {
	tables := NewTables()
	require.NoError(t, tables.Register(newRegistry(t, "orders")))
	require.NoError(t, tables.Register(newRegistry(t, "clicks")))

	assert.ErrorIs(t, tables.Register(newRegistry(t, "orders")), ErrTableExists)
	assert.Equal(t, []string{"clicks", "orders"}, tables.Names())

	r, err := tables.Get("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", r.Name())

	_, err = tables.Get("absent")
	assert.ErrorIs(t, err, ErrTableNotFound)

	require.NoError(t, tables.Shutdown())
}

func TestTables_ShutdownAggregates(t *testing.T) {
	tr := mock.NewTracker()
	tables := NewTables()

	for _, name := range []string{"a", "b", "c"} {
		r := newRegistry(t, name)
		require.NoError(t, r.Add("ok", tr.NewSegment("ok", 1)))
		require.NoError(t, r.Add("bad", tr.NewFailingSegment("bad")))
		require.NoError(t, tables.Register(r))
	}

	err := tables.Shutdown()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mock.ErrDestroyFailed))
	assert.Contains(t, err.Error(), "shutdown table a")
	assert.Contains(t, err.Error(), "shutdown table c")
	assert.Equal(t, tr.Created(), tr.Destroyed())
}

func reportMem(b *testing.B, weight int64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	b.ReportMetric(float64(mem.Alloc)/1024/1024, "allocsMB")
	b.ReportMetric(float64(weight), "segmentsWeight")
}

func fill(b *testing.B, r *table.Registry) []string {
	num := b.N + 1
	if num > maxSegmentsNum {
		num = maxSegmentsNum
	}
	segments := mock.NewTracker().GenerateSegments("seg_", num)
	names := make([]string, 0, len(segments))
	for _, seg := range segments {
		if err := r.Add(seg.Name(), seg); err != nil {
			b.Fatal(err)
		}
		names = append(names, seg.Name())
	}
	return names
}

func BenchmarkAcquireRelease1000TimesPerIter(b *testing.B) {
	r := newRegistry(b, "bench")
	defer func() { _ = r.Shutdown() }()

	names := fill(b, r)
	length := len(names)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			for j := 0; j < 1000; j++ {
				if h, ok := r.Acquire(names[(i*j)%length]); ok {
					_ = h.Release()
				}
			}
			i += 1000
		}
	})
	b.StopTimer()

	reportMem(b, r.Weight())
}

func BenchmarkReplaceInPlace(b *testing.B) {
	r := newRegistry(b, "bench")
	defer func() { _ = r.Shutdown() }()

	names := fill(b, r)
	tr := mock.NewTracker()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		name := names[i%len(names)]
		if err := r.Add(name, tr.NewSegment(name, 1)); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	reportMem(b, r.Weight())
}

func BenchmarkAcquireAllocs(b *testing.B) {
	r := newRegistry(b, "bench")
	defer func() { _ = r.Shutdown() }()

	seg := mock.NewTracker().NewSegment("seg", 1)
	if err := r.Add("seg", seg); err != nil {
		b.Fatal(err)
	}

	allocs := testing.AllocsPerRun(100_000, func() {
		h, _ := r.Acquire("seg")
		_ = h.Release()
	})
	b.ReportMetric(allocs, "allocs/op")
}
