package segment

import "github.com/Borislavv/segment-registry/pkg/resource"

// Handle is a caller's borrowed view of an Entry with one reference charged to it.
// The zero Handle means "not found"; releasing it does nothing.
type Handle struct {
	entry *Entry
}

// NewHandle wraps an entry the caller has already acquired.
func NewHandle(e *Entry) Handle {
	return Handle{entry: e}
}

func (h Handle) IsEmpty() bool { return h.entry == nil }
func (h Handle) Entry() *Entry { return h.entry }

func (h Handle) Name() string {
	if h.entry == nil {
		return ""
	}
	return h.entry.name
}

func (h Handle) Segment() resource.Segment {
	if h.entry == nil {
		return nil
	}
	return h.entry.segment
}

// Release returns the handle's reference. No-op for the empty handle.
func (h Handle) Release() error {
	if h.entry == nil {
		return nil
	}
	return h.entry.Release()
}
