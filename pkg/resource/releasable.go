package resource

// Releasable defines reference-counted lifetime management for registry entries.
type Releasable interface {
	// TryAcquire charges one reference unless the count already dropped to zero.
	TryAcquire() bool
	// Release returns one reference; the caller which drops the count to zero triggers teardown.
	Release() error
	RefCount() int32
	IsDestroyed() bool
}
