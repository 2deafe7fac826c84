package sharded

import (
	"context"
	"sync"
	"sync/atomic"
)

// Shard is a single partition of the sharded map.
// Each shard is an independent map with its own lock, structural changes take the write lock
// only for the swap itself.
type Shard[V Value] struct {
	*sync.RWMutex              // Shard-level RWMutex for concurrency
	items         map[string]V // Actual storage: name -> Value
	id            uint64       // Shard ID (index)
	mem           int64        // Weight usage in bytes (atomic)
	len           int64        // Length as int64 for use it as atomic
}

// NewShard creates a new shard with its own lock and value map.
func NewShard[V Value](id uint64, defaultLen int) *Shard[V] {
	return &Shard[V]{
		id:      id,
		RWMutex: &sync.RWMutex{},
		items:   make(map[string]V, defaultLen),
	}
}

// ID returns the numeric index of this shard.
func (shard *Shard[V]) ID() uint64 {
	return shard.id
}

// Weight returns an approximate total memory pinned by values of this shard.
func (shard *Shard[V]) Weight() int64 {
	return atomic.LoadInt64(&shard.mem)
}

func (shard *Shard[V]) Len() int64 {
	return atomic.LoadInt64(&shard.len)
}

// Swap installs value under key and returns the value it displaced, if any.
// Readers observe either the old or the new value, never a gap.
func (shard *Shard[V]) Swap(key string, value V) (old V, replaced bool) {
	shard.Lock()
	old, replaced = shard.items[key]
	shard.items[key] = value
	shard.Unlock()

	if replaced {
		atomic.AddInt64(&shard.mem, value.Weight()-old.Weight())
	} else {
		atomic.AddInt64(&shard.len, 1)
		atomic.AddInt64(&shard.mem, value.Weight())
	}
	return old, replaced
}

// Get returns the value stored under key without charging a reference.
func (shard *Shard[V]) Get(key string) (val V, ok bool) {
	shard.RLock()
	val, ok = shard.items[key]
	shard.RUnlock()
	return val, ok
}

// Acquire looks the key up and charges a reference while the read lock is still held,
// so a concurrent Swap cannot drop the looked-up value in between.
func (shard *Shard[V]) Acquire(key string) (val V, ok bool) {
	shard.RLock()
	defer shard.RUnlock()

	val, ok = shard.items[key]
	if ok && val.TryAcquire() {
		return val, true
	}

	var zero V
	return zero, false
}

// Remove deletes the key and returns the removed value. The caller owns the value's map reference.
func (shard *Shard[V]) Remove(key string) (old V, removed bool) {
	shard.Lock()
	old, removed = shard.items[key]
	if removed {
		delete(shard.items, key)
	}
	shard.Unlock()

	if removed {
		atomic.AddInt64(&shard.len, -1)
		atomic.AddInt64(&shard.mem, -old.Weight())
	}
	return old, removed
}

// drainLocked empties the shard and returns everything it held. Caller holds the write lock.
func (shard *Shard[V]) drainLocked(dst []V) []V {
	for key, v := range shard.items {
		dst = append(dst, v)
		delete(shard.items, key)
	}
	atomic.StoreInt64(&shard.len, 0)
	atomic.StoreInt64(&shard.mem, 0)
	return dst
}

// Walk iterates over the shard under a read lock. Stops when fn returns false or ctx is done.
func (shard *Shard[V]) Walk(ctx context.Context, fn func(key string, v V) bool) {
	shard.RLock()
	defer shard.RUnlock()

	for k, v := range shard.items {
		select {
		case <-ctx.Done():
			return
		default:
			if !fn(k, v) {
				return
			}
		}
	}
}
