package segment

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Borislavv/segment-registry/pkg/resource"
)

var (
	ErrAlreadyDestroyed = errors.New("segment entry already destroyed")
	ErrStillReferenced  = errors.New("segment entry still referenced")
)

// Segment is the loaded data an entry owns. Its Destroy is called at most once.
type Segment = resource.Segment

// Reclaimer decides where the teardown of a zero-referenced entry runs.
type Reclaimer interface {
	Reclaim(e *Entry) error
}

// ReclaimFunc adapts a function to the Reclaimer interface.
type ReclaimFunc func(e *Entry) error

func (f ReclaimFunc) Reclaim(e *Entry) error { return f(e) }

// destroyInline is the reclaimer used when none was provided: the last releaser pays for teardown.
var destroyInline = ReclaimFunc(func(e *Entry) error { return e.Destroy() })

var _ resource.Releasable = (*Entry)(nil)

// Entry is the sole owner of one segment and its reference count.
// It is created with refCount=1, that unit is the registry's own structural hold.
// Once the count reaches zero the entry is terminal: TryAcquire never succeeds again.
type Entry struct {
	name      string
	segment   resource.Segment
	reclaimer Reclaimer
	refCount  atomic.Int32
	tornDown  atomic.Bool
}

// NewEntry wraps the segment with refCount=1. A nil reclaimer means inline teardown.
func NewEntry(name string, seg resource.Segment, reclaimer Reclaimer) *Entry {
	if reclaimer == nil {
		reclaimer = destroyInline
	}
	e := &Entry{
		name:      name,
		segment:   seg,
		reclaimer: reclaimer,
	}
	e.refCount.Store(1)
	return e
}

func (e *Entry) Name() string              { return e.name }
func (e *Entry) Segment() resource.Segment { return e.segment }
func (e *Entry) RefCount() int32           { return e.refCount.Load() }

// IsDestroyed reports whether the count reached zero (teardown may still be queued).
func (e *Entry) IsDestroyed() bool { return e.refCount.Load() == 0 }

// IsTornDown reports whether the segment's Destroy has already been invoked.
func (e *Entry) IsTornDown() bool { return e.tornDown.Load() }

func (e *Entry) String() string { return fmt.Sprintf("%s(ref=%d)", e.name, e.RefCount()) }

// Weight returns the memory pinned by the segment, zero when the segment does not report it.
func (e *Entry) Weight() int64 {
	if sized, ok := e.segment.(resource.Sized); ok {
		return sized.Weight()
	}
	return 0
}

// TryAcquire charges one reference. It refuses to move the count up from zero:
// a concurrent last release may already be tearing the segment down.
func (e *Entry) TryAcquire() bool {
	for {
		cur := e.refCount.Load()
		if cur <= 0 {
			return false
		}
		if e.refCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release returns one reference. The caller which performs the 1->0 transition hands
// the entry to its reclaimer and gets back the teardown error, if the reclaimer runs inline.
// Releasing more times than acquired is a caller bug and panics.
func (e *Entry) Release() error {
	for {
		cur := e.refCount.Load()
		if cur <= 0 {
			panic(fmt.Sprintf("segment %q: released more times than acquired", e.name))
		}
		if !e.refCount.CompareAndSwap(cur, cur-1) {
			continue
		}
		if cur > 1 {
			return nil
		}
		return e.reclaimer.Reclaim(e)
	}
}

// Destroy tears the owned segment down. Reclaimers call it once the count is zero;
// the segment's own Destroy runs at most once whatever the caller does.
func (e *Entry) Destroy() error {
	if e.refCount.Load() != 0 {
		return fmt.Errorf("%w: %s", ErrStillReferenced, e)
	}
	if !e.tornDown.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrAlreadyDestroyed, e.name)
	}
	if err := e.segment.Destroy(); err != nil {
		return fmt.Errorf("destroy segment %q: %w", e.name, err)
	}
	return nil
}
