package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Borislavv/segment-registry/pkg/segment"
)

var ErrAlreadyDestroyed = errors.New("segment data already released")

var _ segment.Segment = (*HeapSegment)(nil)

// HeapSegment holds a segment file read fully into memory.
type HeapSegment struct {
	mu        sync.RWMutex
	name      string
	path      string
	data      []byte
	destroyed bool
}

func openHeap(name, path string) (*HeapSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segment file %s: %w", path, err)
	}
	return &HeapSegment{name: name, path: path, data: data}, nil
}

func (s *HeapSegment) Name() string { return s.name }
func (s *HeapSegment) Path() string { return s.path }

// Weight is the number of bytes held, zero once destroyed.
func (s *HeapSegment) Weight() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data))
}

// ReadAt implements io.ReaderAt over the segment bytes.
func (s *HeapSegment) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed {
		return 0, ErrAlreadyDestroyed
	}
	return readAt(s.data, p, off)
}

// Destroy drops the buffer so the GC can take it back.
func (s *HeapSegment) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrAlreadyDestroyed
	}
	s.destroyed = true
	s.data = nil
	return nil
}

func readAt(data, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
