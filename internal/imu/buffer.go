package imu

import "sync/atomic"

// LatestBuffer holds the most recent published Sample plus a writer-owned
// staging slot. The control-loop tick is the only writer; the telemetry
// query path may read concurrently from another goroutine. Publication is
// a single pointer swap, so a reader sees either the previous sample or
// the fully-formed new one, never a partial write. No locks.
type LatestBuffer struct {
	cur     atomic.Pointer[Sample]
	staging Sample
}

// Staging returns the in-progress slot. Writer only. The contents are not
// visible to readers until Publish is called.
func (b *LatestBuffer) Staging() *Sample {
	return &b.staging
}

// Publish atomically makes the staging slot the current sample.
// The staging slot stays owned by the writer and may be reused immediately.
func (b *LatestBuffer) Publish() {
	s := b.staging
	b.cur.Store(&s)
}

// Load returns the current published sample. Safe from any goroutine.
// ok is false until the first Publish.
func (b *LatestBuffer) Load() (Sample, bool) {
	p := b.cur.Load()
	if p == nil {
		return Sample{}, false
	}
	return *p, true
}
