package mock

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

var ErrDestroyFailed = errors.New("mock: destroy failed")

// Segment is an in-memory segment which counts its teardowns.
type Segment struct {
	name      string
	totalDocs int
	destroys  atomic.Int32
	fail      bool
}

func (s *Segment) Name() string    { return s.name }
func (s *Segment) TotalDocs() int  { return s.totalDocs }
func (s *Segment) Destroys() int32 { return s.destroys.Load() }
func (s *Segment) Weight() int64   { return int64(s.totalDocs) }

func (s *Segment) Destroy() error {
	s.destroys.Add(1)
	if s.fail {
		return ErrDestroyFailed
	}
	return nil
}

// Tracker creates segments and remembers every one of them, so tests can check
// the destroy-exactly-once property over the whole run.
type Tracker struct {
	mu       sync.Mutex
	segments []*Segment
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// NewSegment makes a tracked segment.
func (t *Tracker) NewSegment(name string, totalDocs int) *Segment {
	return t.add(&Segment{name: name, totalDocs: totalDocs})
}

// NewFailingSegment makes a tracked segment whose Destroy reports an error.
func (t *Tracker) NewFailingSegment(name string) *Segment {
	return t.add(&Segment{name: name, fail: true})
}

func (t *Tracker) add(s *Segment) *Segment {
	t.mu.Lock()
	t.segments = append(t.segments, s)
	t.mu.Unlock()
	return s
}

// Segments returns a copy of all segments created so far.
func (t *Tracker) Segments() []*Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

func (t *Tracker) Created() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments)
}

// Destroyed is the total number of Destroy calls over all tracked segments.
func (t *Tracker) Destroyed() int {
	var n int
	for _, s := range t.Segments() {
		n += int(s.Destroys())
	}
	return n
}

// GenerateSegments produces num tracked segments named prefix0..prefix(num-1).
func (t *Tracker) GenerateSegments(prefix string, num int) []*Segment {
	list := make([]*Segment, 0, num)
	for i := 0; i < num; i++ {
		list = append(list, t.NewSegment(prefix+strconv.Itoa(i), i+1))
	}
	return list
}
