package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/prometheus/metrics"
	"github.com/Borislavv/segment-registry/pkg/rate"
	"github.com/Borislavv/segment-registry/pkg/retry"
	"github.com/Borislavv/segment-registry/pkg/segment"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const tmpSuffix = ".tmp"

var (
	ErrInvalidSegmentName = errors.New("invalid segment name")
	ErrSegmentNotFound    = errors.New("segment file not found")
)

// Loader brings segment files of a table's data directory into memory.
type Loader struct {
	limiter *rate.Limiter
	policy  retry.Policy
	meter   metrics.Meter
}

func New(cfg config.Loader, policy retry.Policy, meter metrics.Meter) *Loader {
	if policy == nil {
		policy = retry.NoRetry{}
	}
	return &Loader{
		limiter: rate.NewLimiter(cfg.Rate, cfg.Burst),
		policy:  policy,
		meter:   meter,
	}
}

// Load opens dataDir/name in the table's read mode. Missing files are not retried.
func (l *Loader) Load(ctx context.Context, table config.Table, name string) (segment.Segment, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := l.limiter.Take(ctx); err != nil {
		return nil, fmt.Errorf("wait for load slot: %w", err)
	}

	path := filepath.Join(table.DataDir, name)
	from := time.Now()

	var seg segment.Segment
	err := l.policy.Attempt(ctx, func() error {
		s, err := open(table.ReadMode, name, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return retry.Permanent(fmt.Errorf("%w: %w", ErrSegmentNotFound, err))
			}
			log.Warn().Err(err).Str("table", table.Name).Str("segment", name).Msg("[loader] load attempt failed")
			return err
		}
		seg = s
		return nil
	})
	if err != nil {
		l.meter.IncLoadFailure(table.Name)
		return nil, fmt.Errorf("load segment %s/%s: %w", table.Name, name, err)
	}

	l.meter.IncLoad(table.Name)
	log.Debug().
		Str("table", table.Name).
		Str("segment", name).
		Str("mode", string(table.ReadMode)).
		Dur("took", time.Since(from)).
		Msg("[loader] segment loaded")

	return seg, nil
}

// Discover lists the segment files of the table's data directory, sorted by name.
// Hidden and temporary files are skipped.
func (l *Loader) Discover(table config.Table) ([]string, error) {
	entries, err := os.ReadDir(table.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir of table %s: %w", table.Name, err)
	}
	return lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		name := e.Name()
		return name, e.Type().IsRegular() && ValidateName(name) == nil && !strings.HasSuffix(name, tmpSuffix)
	}), nil
}

// ValidateName rejects names which could address anything outside the data directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSegmentName, name)
	case strings.ContainsAny(name, `/\`), strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidSegmentName, name)
	}
	return nil
}

func open(mode config.ReadMode, name, path string) (segment.Segment, error) {
	if mode == config.MMap {
		return openMapped(name, path)
	}
	seg, err := openHeap(name, path)
	if err != nil {
		return nil, err
	}
	return seg, nil
}
