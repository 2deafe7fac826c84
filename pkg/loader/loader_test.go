package loader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics"
	"github.com/Borislavv/segment-registry/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
}

// countingPolicy wraps a policy and counts operation invocations.
type countingPolicy struct {
	inner retry.Policy
	calls int
}

func (p *countingPolicy) Attempt(ctx context.Context, op func() error) error {
	return p.inner.Attempt(ctx, func() error {
		p.calls++
		return op()
	})
}

func newTestLoader(t *testing.T, policy retry.Policy) *Loader {
	meter, err := metrics.New()
	require.NoError(t, err)
	return New(config.Loader{}, policy, meter)
}

func newTable(t *testing.T, mode config.ReadMode, files map[string]string) config.Table {
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return config.Table{Name: "orders", DataDir: dir, ReadMode: mode, WorkerThreads: 1}
}

func TestLoader_LoadHeap(t *testing.T) {
	table := newTable(t, config.Heap, map[string]string{"seg_0": "hello segment"})
	l := newTestLoader(t, nil)

	seg, err := l.Load(context.Background(), table, "seg_0")
	require.NoError(t, err)

	heap, ok := seg.(*HeapSegment)
	require.True(t, ok)
	assert.Equal(t, "seg_0", heap.Name())
	assert.Equal(t, int64(len("hello segment")), heap.Weight())

	buf := make([]byte, 7)
	n, err := heap.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "segment", string(buf[:n]))

	_, err = heap.ReadAt(buf, 100)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, heap.Destroy())
	assert.Zero(t, heap.Weight())
	assert.ErrorIs(t, heap.Destroy(), ErrAlreadyDestroyed)
	_, err = heap.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrAlreadyDestroyed)
}

func TestLoader_MissingFileIsNotRetried(t *testing.T) {
	table := newTable(t, config.Heap, nil)
	policy := &countingPolicy{inner: retry.NewExponential(config.Retry{
		Attempts:        5,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      2,
	})}
	l := newTestLoader(t, policy)

	_, err := l.Load(context.Background(), table, "absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSegmentNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, policy.calls)
}

func TestLoader_RejectsBadNames(t *testing.T) {
	table := newTable(t, config.Heap, nil)
	l := newTestLoader(t, nil)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`, ".hidden"} {
		_, err := l.Load(context.Background(), table, name)
		assert.True(t, errors.Is(err, ErrInvalidSegmentName), "name %q", name)
	}
}

func TestLoader_Discover(t *testing.T) {
	table := newTable(t, config.Heap, map[string]string{
		"seg_2":     "b",
		"seg_1":     "a",
		".lock":     "",
		"seg_3.tmp": "partial",
		"seg_10":    "c",
	})
	require.NoError(t, os.Mkdir(filepath.Join(table.DataDir, "nested"), 0o755))

	names, err := newTestLoader(t, nil).Discover(table)
	require.NoError(t, err)
	assert.Equal(t, []string{"seg_1", "seg_10", "seg_2"}, names)
}

func TestLoader_DiscoverMissingDir(t *testing.T) {
	table := config.Table{Name: "ghost", DataDir: filepath.Join(t.TempDir(), "nope")}
	_, err := newTestLoader(t, nil).Discover(table)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_CancelledContext(t *testing.T) {
	table := newTable(t, config.Heap, map[string]string{"seg_0": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLoader(t, nil).Load(ctx, table, "seg_0")
	assert.Error(t, err)
}
