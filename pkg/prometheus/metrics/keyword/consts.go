package keyword

var (
	Acquires          = "segreg_segment_acquires_total" // successful acquires
	Misses            = "segreg_segment_misses_total"   // acquires which resolved to not found
	Adds              = "segreg_segment_adds_total"     // adds of a new name
	Replaces          = "segreg_segment_replaces_total" // in-place replaces
	Removes           = "segreg_segment_removes_total"  // removes of a mapped name
	Destroys          = "segreg_segment_destroys_total" // teardowns run
	DestroyFailures   = "segreg_segment_destroy_errors" // teardowns which returned an error
	DestroyDurationMs = "segreg_segment_destroy_ms"     // teardown latency histogram
	LiveSegments      = "segreg_live_segments"          // currently mapped segments
	SegmentsWeight    = "segreg_live_segments_bytes"    // memory pinned by mapped segments
	Loads             = "segreg_loader_loads_total"     // segment files loaded
	LoadFailures      = "segreg_loader_load_errors"     // loads given up on
	ReclaimQueued     = "segreg_reclaim_queued_total"   // teardowns handed to the background queue
	ReclaimOverflow   = "segreg_reclaim_overflow_total" // teardowns run inline because the queue was full or closed
	ApiRequests       = "segreg_api_requests_total"     // admin api requests by method and status
	ApiDurationMs     = "segreg_api_request_ms"         // admin api latency histogram
)
