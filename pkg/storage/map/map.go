package sharded

import (
	"github.com/zeebo/xxh3"
)

// NumOfShards must be a power of two, MapShardKey masks the hash with it.
const NumOfShards = 64

// Value is anything the map can hold: refcounted and able to report its weight.
type Value interface {
	TryAcquire() bool
	Weight() int64
}

// MapShardKey selects the shard for a segment name.
func MapShardKey(name string) uint64 {
	return xxh3.HashString(name) & (NumOfShards - 1)
}

// Map is a name-keyed map split into NumOfShards independently locked shards.
type Map[V Value] struct {
	shards [NumOfShards]*Shard[V]
}

// NewMap creates a map with every shard preallocated for defaultLen items.
func NewMap[V Value](defaultLen int) *Map[V] {
	m := &Map[V]{}
	for id := uint64(0); id < NumOfShards; id++ {
		m.shards[id] = NewShard[V](id, defaultLen)
	}
	return m
}

func (m *Map[V]) Shard(name string) *Shard[V] {
	return m.shards[MapShardKey(name)]
}

func (m *Map[V]) Get(name string) (V, bool) {
	return m.Shard(name).Get(name)
}

func (m *Map[V]) Acquire(name string) (V, bool) {
	return m.Shard(name).Acquire(name)
}

func (m *Map[V]) Swap(name string, v V) (old V, replaced bool) {
	return m.Shard(name).Swap(name, v)
}

func (m *Map[V]) Remove(name string) (old V, removed bool) {
	return m.Shard(name).Remove(name)
}

// rlockAll read-locks every shard in index order; writers only ever hold a single shard lock,
// so the fixed order cannot deadlock against them.
func (m *Map[V]) rlockAll() {
	for _, shard := range m.shards {
		shard.RLock()
	}
}

func (m *Map[V]) runlockAll() {
	for i := NumOfShards - 1; i >= 0; i-- {
		m.shards[i].RUnlock()
	}
}

// Snapshot returns every value mapped at one instant: all shards are read-locked together.
// No references are charged.
func (m *Map[V]) Snapshot() []V {
	m.rlockAll()
	defer m.runlockAll()

	out := make([]V, 0, m.lenLocked())
	for _, shard := range m.shards {
		for _, v := range shard.items {
			out = append(out, v)
		}
	}
	return out
}

// AcquireAll charges a reference on every value mapped at one instant and returns those
// which accepted it.
func (m *Map[V]) AcquireAll() []V {
	m.rlockAll()
	defer m.runlockAll()

	out := make([]V, 0, m.lenLocked())
	for _, shard := range m.shards {
		for _, v := range shard.items {
			if v.TryAcquire() {
				out = append(out, v)
			}
		}
	}
	return out
}

// Drain empties the map and hands every value (and its map reference) to the caller.
func (m *Map[V]) Drain() []V {
	var out []V
	for _, shard := range m.shards {
		shard.Lock()
		out = shard.drainLocked(out)
		shard.Unlock()
	}
	return out
}

func (m *Map[V]) lenLocked() int {
	var n int
	for _, shard := range m.shards {
		n += len(shard.items)
	}
	return n
}

// Len returns the number of mapped values.
func (m *Map[V]) Len() int64 {
	var n int64
	for _, shard := range m.shards {
		n += shard.Len()
	}
	return n
}

// Weight returns the summed weight of all mapped values.
func (m *Map[V]) Weight() int64 {
	var w int64
	for _, shard := range m.shards {
		w += shard.Weight()
	}
	return w
}

// WalkShards calls fn for every shard in index order.
func (m *Map[V]) WalkShards(fn func(key uint64, shard *Shard[V])) {
	for key, shard := range m.shards {
		fn(uint64(key), shard)
	}
}
