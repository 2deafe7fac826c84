package resource

// Segment is a loaded, immutable unit of table data. Only its teardown is visible to the registry.
// Destroy is called at most once and never while a handle to the segment is outstanding.
type Segment interface {
	Destroy() error
}

// Sized is implemented by segments which know how much memory they pin.
type Sized interface {
	Weight() int64
}
