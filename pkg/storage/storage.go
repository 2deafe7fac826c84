package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/segment"
	"github.com/Borislavv/segment-registry/pkg/storage/table"
	"go.uber.org/multierr"
)

var (
	ErrTableExists   = errors.New("table already registered")
	ErrTableNotFound = errors.New("table not found")
)

// Registry is the per-table segment registry API consumed by callers.
type Registry interface {
	// Init takes the table configuration; Start makes the registry serve requests.
	Init(cfg config.Table) error
	Start() error
	// Shutdown drops the registry's own references. Held handles drain via Release.
	Shutdown() error

	// Add maps name to seg, replacing any current mapping in place.
	Add(name string, seg segment.Segment) error
	// Remove unmaps name; unknown names are a no-op.
	Remove(name string) error
	// ReplaceTwoStep removes and re-adds name, the name may be observed absent in between.
	ReplaceTwoStep(name string, seg segment.Segment, pause time.Duration) error

	// Acquire returns false when name is not found.
	Acquire(name string) (segment.Handle, bool)
	AcquireMany(names []string) []segment.Handle
	AcquireAll() []segment.Handle
	Release(h segment.Handle) error
	ReleaseAll(handles []segment.Handle) error

	Name() string
	Len() int64
	Weight() int64
	RefCount(name string) (int32, bool)
}

var _ Registry = (*table.Registry)(nil)

// Tables is the node's set of per-table registries.
type Tables struct {
	mu     sync.RWMutex
	tables map[string]Registry
}

func NewTables() *Tables {
	return &Tables{tables: make(map[string]Registry)}
}

func (t *Tables) Register(r Registry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tables[r.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, r.Name())
	}
	t.tables[r.Name()] = r
	return nil
}

func (t *Tables) Get(name string) (Registry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return r, nil
}

// Names returns registered table names in sorted order.
func (t *Tables) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedLocked()
}

// Shutdown stops every registry and returns all teardown failures together.
func (t *Tables) Shutdown() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var err error
	for _, name := range t.sortedLocked() {
		if serr := t.tables[name].Shutdown(); serr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown table %s: %w", name, serr))
		}
	}
	return err
}

func (t *Tables) sortedLocked() []string {
	names := make([]string, 0, len(t.tables))
	for name := range t.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
