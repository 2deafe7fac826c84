package table

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics"
	"github.com/Borislavv/segment-registry/pkg/reclaim"
	"github.com/Borislavv/segment-registry/pkg/segment"
	sharded "github.com/Borislavv/segment-registry/pkg/storage/map"
	"github.com/Borislavv/segment-registry/pkg/utils"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var (
	ErrWrongState     = errors.New("registry is in the wrong state")
	ErrEmptyTableName = errors.New("table name must not be empty")
	ErrEmptySegment   = errors.New("segment name must not be empty")
	ErrNilSegment     = errors.New("segment must not be nil")
)

type State int32

const (
	Created State = iota
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Started:
		return "STARTED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

var _ segment.Reclaimer = (*Registry)(nil)

// Registry maps segment names of one table to refcounted entries.
//
// Every mapped entry carries one reference owned by the registry itself. Callers borrow
// further references through Acquire* and give them back through Release. Whoever drops
// the last reference has the segment torn down by the configured reclaim strategy.
type Registry struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      config.Table
	entries  *sharded.Map[*segment.Entry]
	strategy reclaim.Strategy
	meter    metrics.Meter

	prealloc      int
	statsInterval time.Duration

	// lifecycle is held shared by mutators and exclusively by lifecycle transitions,
	// so nothing can be installed after Shutdown drained the map.
	lifecycle   sync.RWMutex
	state       atomic.Int32
	initialized bool
}

type Option func(r *Registry)

// WithStrategy sets where teardowns run. Inline by default.
func WithStrategy(s reclaim.Strategy) Option {
	return func(r *Registry) { r.strategy = s }
}

func WithMeter(m metrics.Meter) Option {
	return func(r *Registry) { r.meter = m }
}

// WithPreallocate presizes each shard of the mapping.
func WithPreallocate(perShard int) Option {
	return func(r *Registry) { r.prealloc = perShard }
}

// WithStatsLogger makes a started registry log its size every interval until Shutdown.
func WithStatsLogger(ctx context.Context, interval time.Duration) Option {
	return func(r *Registry) {
		r.ctx = ctx
		r.statsInterval = interval
	}
}

// NewRegistry returns a registry in the CREATED state.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{ctx: context.Background()}
	for _, opt := range opts {
		opt(r)
	}
	if r.strategy == nil {
		r.strategy = reclaim.Inline{}
	}
	if r.meter == nil {
		r.meter, _ = metrics.New()
	}
	return r
}

// Init takes the table configuration. The registry keeps it without interpreting anything but the name.
func (r *Registry) Init(cfg config.Table) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.State() != Created || r.initialized {
		return fmt.Errorf("%w: init of table %q in %s", ErrWrongState, cfg.Name, r.State())
	}
	if cfg.Name == "" {
		return ErrEmptyTableName
	}

	r.cfg = cfg
	r.entries = sharded.NewMap[*segment.Entry](r.prealloc)
	r.ctx, r.cancel = context.WithCancel(r.ctx)
	r.initialized = true
	return nil
}

func (r *Registry) Start() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.State() != Created || !r.initialized {
		return fmt.Errorf("%w: start of table %q in %s (initialized: %t)", ErrWrongState, r.cfg.Name, r.State(), r.initialized)
	}
	r.state.Store(int32(Started))

	if r.statsInterval > 0 {
		r.runLogger()
	}

	log.Info().Msgf("[registry][%s] started (data dir: %s, read mode: %s)", r.cfg.Name, r.cfg.DataDir, r.cfg.ReadMode)
	return nil
}

// Shutdown stops the registry and drops its own reference on every mapped entry.
// Handles already held stay valid until released. Teardown failures are collected and returned.
func (r *Registry) Shutdown() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	state := r.State()
	if state == Stopped {
		return fmt.Errorf("%w: shutdown of table %q in %s", ErrWrongState, r.cfg.Name, state)
	}
	r.state.Store(int32(Stopped))
	if r.cancel != nil {
		r.cancel()
	}
	if r.entries == nil {
		return nil
	}

	var (
		err     error
		drained = r.entries.Drain()
	)
	for _, e := range drained {
		err = multierr.Append(err, e.Release())
	}
	r.meter.SetLiveSegments(r.cfg.Name, 0, 0)

	log.Info().Msgf("[registry][%s] stopped, released %d segments", r.cfg.Name, len(drained))
	return err
}

// Add maps name to a new entry owning seg.
// If the name is already mapped the new entry replaces the old one in a single swap, so the name
// is never observed absent, and the old entry's registry reference is released afterwards.
// A non-nil error after a replace reports the old segment's teardown failure; seg is installed regardless.
func (r *Registry) Add(name string, seg segment.Segment) error {
	if name == "" {
		return ErrEmptySegment
	}
	if seg == nil {
		return ErrNilSegment
	}

	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()

	if err := r.requireStarted("add"); err != nil {
		return err
	}

	old, replaced := r.entries.Swap(name, segment.NewEntry(name, seg, r))
	r.updateGauge()
	if !replaced {
		r.meter.IncAdd(r.cfg.Name)
		log.Debug().Str("table", r.cfg.Name).Str("segment", name).Msg("[registry] segment added")
		return nil
	}

	r.meter.IncReplace(r.cfg.Name)
	log.Debug().Str("table", r.cfg.Name).Str("segment", name).Msg("[registry] segment replaced in place")
	return old.Release()
}

// Remove unmaps name and releases the registry's reference on its entry. Unknown names are a no-op.
// A non-nil error reports a teardown failure; the name is unmapped regardless.
func (r *Registry) Remove(name string) error {
	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()

	if err := r.requireStarted("remove"); err != nil {
		return err
	}

	old, removed := r.entries.Remove(name)
	if !removed {
		return nil
	}
	r.updateGauge()
	r.meter.IncRemove(r.cfg.Name)
	log.Debug().Str("table", r.cfg.Name).Str("segment", name).Msg("[registry] segment removed")
	return old.Release()
}

// ReplaceTwoStep removes name and adds seg under it after pause. Unlike an in-place Add,
// concurrent acquires may find the name absent in between.
func (r *Registry) ReplaceTwoStep(name string, seg segment.Segment, pause time.Duration) error {
	err := r.Remove(name)
	if errors.Is(err, ErrWrongState) {
		return err
	}
	if pause > 0 {
		time.Sleep(pause)
	}
	return multierr.Append(err, r.Add(name, seg))
}

// Acquire charges one reference on the entry mapped to name.
// Not found, a lost race against the last release, and a registry which is not started all report false.
func (r *Registry) Acquire(name string) (segment.Handle, bool) {
	if r.State() != Started {
		return segment.Handle{}, false
	}
	e, ok := r.entries.Acquire(name)
	if !ok {
		r.meter.IncMiss(r.cfg.Name)
		return segment.Handle{}, false
	}
	r.meter.IncAcquire(r.cfg.Name)
	return segment.NewHandle(e), true
}

// AcquireMany acquires each name independently and silently omits those not found.
func (r *Registry) AcquireMany(names []string) []segment.Handle {
	handles := make([]segment.Handle, 0, len(names))
	for _, name := range names {
		if h, ok := r.Acquire(name); ok {
			handles = append(handles, h)
		}
	}
	return handles
}

// AcquireAll acquires every entry mapped at one instant.
func (r *Registry) AcquireAll() []segment.Handle {
	if r.State() != Started {
		return nil
	}
	entries := r.entries.AcquireAll()
	handles := make([]segment.Handle, 0, len(entries))
	for _, e := range entries {
		handles = append(handles, segment.NewHandle(e))
	}
	return handles
}

// Release gives back the reference carried by h. Releasing the empty handle is a no-op.
// Valid in any state so handles held across Shutdown can drain.
func (r *Registry) Release(h segment.Handle) error {
	return h.Release()
}

// ReleaseAll releases every handle and collects teardown failures.
func (r *Registry) ReleaseAll(handles []segment.Handle) error {
	var err error
	for _, h := range handles {
		err = multierr.Append(err, h.Release())
	}
	return err
}

// Reclaim is called by an entry whose count dropped to zero.
func (r *Registry) Reclaim(e *segment.Entry) error {
	return r.strategy.Submit(e.Name(), func() error { return r.destroy(e) })
}

func (r *Registry) destroy(e *segment.Entry) error {
	timer := r.meter.NewDestroyTimer(r.cfg.Name)
	err := e.Destroy()
	r.meter.FlushDestroyTimer(timer)

	r.meter.IncDestroy(r.cfg.Name)
	if err != nil {
		r.meter.IncDestroyFailure(r.cfg.Name)
		return fmt.Errorf("table %s: %w", r.cfg.Name, err)
	}
	return nil
}

func (r *Registry) requireStarted(op string) error {
	if state := r.State(); state != Started {
		return fmt.Errorf("%w: %s on table %q in %s", ErrWrongState, op, r.cfg.Name, state)
	}
	return nil
}

func (r *Registry) updateGauge() {
	r.meter.SetLiveSegments(r.cfg.Name, r.entries.Len(), r.entries.Weight())
}

func (r *Registry) Name() string         { return r.cfg.Name }
func (r *Registry) Config() config.Table { return r.cfg }
func (r *Registry) State() State         { return State(r.state.Load()) }

// Len returns the number of mapped segments.
func (r *Registry) Len() int64 {
	if r.entries == nil {
		return 0
	}
	return r.entries.Len()
}

// Weight returns the memory pinned by mapped segments which report it.
func (r *Registry) Weight() int64 {
	if r.entries == nil {
		return 0
	}
	return r.entries.Weight()
}

// RefCount reports the current count of the entry mapped to name, registry reference included.
func (r *Registry) RefCount(name string) (int32, bool) {
	if r.entries == nil {
		return 0, false
	}
	e, ok := r.entries.Get(name)
	if !ok {
		return 0, false
	}
	return e.RefCount(), true
}

// runLogger emits table stats every statsInterval until the registry stops.
func (r *Registry) runLogger() {
	go func() {
		ticker := utils.NewTicker(r.ctx, r.statsInterval)
		for {
			select {
			case <-r.ctx.Done():
				return
			case _, ok := <-ticker:
				if !ok {
					return
				}
				var (
					length = r.entries.Len()
					weight = r.entries.Weight()
				)
				r.meter.SetLiveSegments(r.cfg.Name, length, weight)
				log.Info().
					Str("table", r.cfg.Name).
					Int64("segments", length).
					Int64("weight", weight).
					Msgf("[registry][%s] segments: %d, pinned: %s", r.cfg.Name, length, utils.FmtMem(weight))
			}
		}
	}()
}
