package nodestore

import (
	"fmt"
	"sync"
	"time"

	"github.com/contentgraph/corestore/internal/clock"
	"github.com/contentgraph/corestore/revision"
)

// Checkpoints is an in-memory table of named, time-limited revision
// pointers (§6 checkpoint/retrieve). Neither segment.GC.Sweep nor the
// split worker consults it; ActiveRevisions exposes the live entries for
// inspection.
type Checkpoints struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]checkpointEntry
}

type checkpointEntry struct {
	revision  revision.Revision
	expiresAt int64
}

// NewCheckpoints returns an empty checkpoint table using c as its time
// source.
func NewCheckpoints(c clock.Clock) *Checkpoints {
	return &Checkpoints{clock: c, entries: make(map[string]checkpointEntry)}
}

// Create pins r for lifetime and returns an opaque checkpoint name.
func (cp *Checkpoints) Create(r revision.Revision, lifetime time.Duration) string {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	name := fmt.Sprintf("cp-%s-%d", r.String(), cp.clock.NowMillis())
	cp.entries[name] = checkpointEntry{
		revision:  r,
		expiresAt: cp.clock.NowMillis() + lifetime.Milliseconds(),
	}
	return name
}

// Retrieve returns the revision name was checkpointed at, or false if
// name is unknown or has expired.
func (cp *Checkpoints) Retrieve(name string) (revision.Revision, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	e, ok := cp.entries[name]
	if !ok {
		return revision.Revision{}, false
	}
	if cp.clock.NowMillis() > e.expiresAt {
		delete(cp.entries, name)
		return revision.Revision{}, false
	}
	return e.revision, true
}

// Release drops a checkpoint before its natural expiry.
func (cp *Checkpoints) Release(name string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	delete(cp.entries, name)
}

// sweepExpired drops every checkpoint past its expiry. Retrieve also
// drops an expired entry when it is looked up.
func (cp *Checkpoints) sweepExpired() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	now := cp.clock.NowMillis()
	for name, e := range cp.entries {
		if now > e.expiresAt {
			delete(cp.entries, name)
		}
	}
}

// ActiveRevisions returns every currently-pinned (non-expired) revision.
func (cp *Checkpoints) ActiveRevisions() []revision.Revision {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	now := cp.clock.NowMillis()
	out := make([]revision.Revision, 0, len(cp.entries))
	for _, e := range cp.entries {
		if now <= e.expiresAt {
			out = append(out, e.revision)
		}
	}
	return out
}
