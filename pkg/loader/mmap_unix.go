//go:build unix

package loader

import (
	"fmt"
	"os"
	"sync"

	"github.com/Borislavv/segment-registry/pkg/segment"
	"golang.org/x/sys/unix"
)

var _ segment.Segment = (*MappedSegment)(nil)

// MappedSegment is a segment file mapped read-only into the address space.
type MappedSegment struct {
	mu        sync.RWMutex
	name      string
	path      string
	data      []byte
	f         *os.File
	destroyed bool
}

func openMapped(name, path string) (segment.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment file %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat segment file %s: %w", path, err)
	}

	s := &MappedSegment{name: name, path: path, f: f}
	if size := fi.Size(); size > 0 {
		s.data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("mmap segment file %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *MappedSegment) Name() string { return s.name }
func (s *MappedSegment) Path() string { return s.path }

func (s *MappedSegment) Weight() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data))
}

func (s *MappedSegment) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return 0, ErrAlreadyDestroyed
	}
	return readAt(s.data, p, off)
}

// Destroy unmaps the data and closes the file.
func (s *MappedSegment) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrAlreadyDestroyed
	}
	s.destroyed = true

	var err error
	if s.data != nil {
		if err = unix.Munmap(s.data); err != nil {
			err = fmt.Errorf("munmap %s: %w", s.path, err)
		}
		s.data = nil
	}
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close %s: %w", s.path, cerr)
	}
	return err
}
