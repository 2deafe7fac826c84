//go:build !unix

package loader

import (
	"github.com/Borislavv/segment-registry/pkg/segment"
	"github.com/rs/zerolog/log"
)

// openMapped reads the file into memory where mmap is not available.
func openMapped(name, path string) (segment.Segment, error) {
	log.Debug().Str("segment", name).Msg("[loader] mmap is not supported on this platform, reading into heap")
	seg, err := openHeap(name, path)
	if err != nil {
		return nil, err
	}
	return seg, nil
}
