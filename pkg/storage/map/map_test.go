package sharded

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/Borislavv/segment-registry/pkg/mock"
	"github.com/Borislavv/segment-registry/pkg/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(tr *mock.Tracker, name string, docs int) *segment.Entry {
	return segment.NewEntry(name, tr.NewSegment(name, docs), nil)
}

func TestMapShardKey_StableAndBounded(t *testing.T) {
	for i := 0; i < 1000; i++ {
		name := "segment_" + strconv.Itoa(i)
		key := MapShardKey(name)
		assert.Less(t, key, uint64(NumOfShards))
		assert.Equal(t, key, MapShardKey(name))
	}
}

func TestMap_SwapGetRemove(t *testing.T) {
	tr := mock.NewTracker()
	m := NewMap[*segment.Entry](4)

	v1 := newEntry(tr, "S1", 10)
	_, replaced := m.Swap("S1", v1)
	assert.False(t, replaced)
	assert.Equal(t, int64(1), m.Len())
	assert.Equal(t, int64(10), m.Weight())

	got, ok := m.Get("S1")
	require.True(t, ok)
	assert.Same(t, v1, got)

	v2 := newEntry(tr, "S1", 25)
	old, replaced := m.Swap("S1", v2)
	require.True(t, replaced)
	assert.Same(t, v1, old)
	assert.Equal(t, int64(1), m.Len())
	assert.Equal(t, int64(25), m.Weight())

	removed, ok := m.Remove("S1")
	require.True(t, ok)
	assert.Same(t, v2, removed)
	assert.Zero(t, m.Len())
	assert.Zero(t, m.Weight())

	_, ok = m.Remove("S1")
	assert.False(t, ok)
	_, ok = m.Get("S1")
	assert.False(t, ok)
}

func TestMap_AcquireChargesReference(t *testing.T) {
	tr := mock.NewTracker()
	m := NewMap[*segment.Entry](0)

	e := newEntry(tr, "S1", 1)
	m.Swap("S1", e)

	got, ok := m.Acquire("S1")
	require.True(t, ok)
	assert.Equal(t, int32(2), got.RefCount())
	require.NoError(t, got.Release())

	_, ok = m.Acquire("missing")
	assert.False(t, ok)

	// an entry which already dropped to zero is never handed out
	dead := newEntry(tr, "S2", 1)
	require.NoError(t, dead.Release())
	m.Swap("S2", dead)
	_, ok = m.Acquire("S2")
	assert.False(t, ok)
}

func TestMap_SnapshotAndAcquireAll(t *testing.T) {
	tr := mock.NewTracker()
	m := NewMap[*segment.Entry](0)

	const num = 300
	for i := 0; i < num; i++ {
		name := "seg_" + strconv.Itoa(i)
		m.Swap(name, newEntry(tr, name, 1))
	}

	snap := m.Snapshot()
	assert.Len(t, snap, num)
	for _, e := range snap {
		assert.Equal(t, int32(1), e.RefCount())
	}

	all := m.AcquireAll()
	require.Len(t, all, num)
	seen := make(map[string]struct{}, num)
	for _, e := range all {
		_, dup := seen[e.Name()]
		assert.False(t, dup, "duplicate %s", e.Name())
		seen[e.Name()] = struct{}{}
		assert.Equal(t, int32(2), e.RefCount())
		require.NoError(t, e.Release())
	}
}

func TestMap_DrainHandsOverEverything(t *testing.T) {
	tr := mock.NewTracker()
	m := NewMap[*segment.Entry](0)
	for i := 0; i < 50; i++ {
		name := "seg_" + strconv.Itoa(i)
		m.Swap(name, newEntry(tr, name, 2))
	}

	drained := m.Drain()
	assert.Len(t, drained, 50)
	assert.Zero(t, m.Len())
	assert.Zero(t, m.Weight())
	assert.Empty(t, m.Snapshot())

	for _, e := range drained {
		require.NoError(t, e.Release())
	}
	assert.Equal(t, 50, tr.Destroyed())
}

func TestMap_WalkShards(t *testing.T) {
	tr := mock.NewTracker()
	m := NewMap[*segment.Entry](0)
	for i := 0; i < 100; i++ {
		name := "seg_" + strconv.Itoa(i)
		m.Swap(name, newEntry(tr, name, 1))
	}

	var shards, items int
	m.WalkShards(func(key uint64, shard *Shard[*segment.Entry]) {
		shards++
		assert.Equal(t, key, shard.ID())
		shard.Walk(context.Background(), func(name string, e *segment.Entry) bool {
			assert.Equal(t, key, MapShardKey(name))
			items++
			return true
		})
	})
	assert.Equal(t, NumOfShards, shards)
	assert.Equal(t, 100, items)
}

func TestMap_ConcurrentSwapAndAcquire(t *testing.T) {
	tr := mock.NewTracker()
	m := NewMap[*segment.Entry](0)
	m.Swap("hot", newEntry(tr, "hot", 1))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	misses := make(chan string, 1)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				e, ok := m.Acquire("hot")
				if !ok {
					select {
					case misses <- "hot":
					default:
					}
					continue
				}
				if err := e.Release(); err != nil {
					t.Error(err)
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		old, replaced := m.Swap("hot", newEntry(tr, "hot", 1))
		require.True(t, replaced)
		require.NoError(t, old.Release())
	}
	close(stop)
	wg.Wait()

	select {
	case name := <-misses:
		t.Fatalf("%s was observed absent during in-place swaps", name)
	default:
	}
	assert.Equal(t, tr.Created()-1, tr.Destroyed())
}
