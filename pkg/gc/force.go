package gc

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Run periodically forces Go's garbage collector and returns freed pages back to the OS.
//
// Heap-mode segments are large byte slices which become garbage all at once when a segment
// is replaced or removed. Once the heap has grown to hold a table's working set, the next
// GOGC-driven cycle may come only after the heap doubles, so dropped segments would
// keep pinning RSS. Both intervals are configurable.
func Run(ctx context.Context, cfg *config.Config) {
	if !cfg.Node.ForceGC.Enabled {
		log.Info().Msg("[force-GC] disabled")
		return
	}

	go func() {
		gcTicker := time.NewTicker(cfg.Node.ForceGC.GCInterval)
		defer gcTicker.Stop()

		freeOssMemTicker := time.NewTicker(cfg.Node.ForceGC.FreeOsMemInterval)
		defer freeOssMemTicker.Stop()

		log.Info().Msgf(
			"[force-GC] running with gcInterval=%s, freeOsMemInterval=%s",
			cfg.Node.ForceGC.GCInterval, cfg.Node.ForceGC.FreeOsMemInterval,
		)

		var lastAlloc uint64

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("[force-GC] stopped")
				return

			case <-gcTicker.C:
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)

				runtime.GC()

				log.Info().Msgf(
					"[force-GC] forced GC pass (last GC pass at: %s, pause: %s)",
					time.Unix(0, int64(mem.LastGC)).Format(time.RFC3339Nano),
					lastGCPauseNs(mem.PauseNs),
				)

				lastAlloc = mem.Alloc
			case <-freeOssMemTicker.C:
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)

				if lastAlloc == 0 {
					lastAlloc = mem.Alloc
					continue
				}

				debug.FreeOSMemory() // use madvise(DONTNEED) under the hood

				log.Info().Msgf(
					"[force-GC] forcing flush of freed memory to OS (alloc was %s, now %s)",
					utils.FmtMem(int64(lastAlloc)), utils.FmtMem(int64(mem.Alloc)),
				)

				lastAlloc = mem.Alloc
			}
		}
	}()
}

func lastGCPauseNs(pauses [256]uint64) time.Duration {
	for i := 255; i >= 0; i-- {
		if pauses[i] > 0 {
			return time.Duration(pauses[i])
		}
	}
	return time.Duration(0)
}
