package document

import (
	"context"
	"time"

	"github.com/contentgraph/corestore/internal/rlog"
	"github.com/contentgraph/corestore/revision"
)

// SplitWorker periodically scans for documents that have crossed the
// §4.8 split thresholds and splits them off, resuming from where the
// previous pass left off via a cursor over document ids — the same
// resumable-background-worker shape the teacher uses for its long-running
// conversion loop, adapted here to split bookkeeping instead of chain
// replay.
type SplitWorker struct {
	store                    Store
	localClusterId           uint32
	interval                 time.Duration
	revisionsSplitOffSize    int
	forceSplitThresholdBytes int64
	isCommitted              func(key string, r revision.Revision) bool

	cursor string // last-scanned document id, for resumability across ticks
}

// NewSplitWorker returns a worker that scans store's NODES collection on
// interval, splitting any document past the configured thresholds.
// isCommitted classifies a key's revision marker the same way the
// visibility Resolver does.
func NewSplitWorker(store Store, localClusterId uint32, interval time.Duration, revisionsSplitOffSize int, forceSplitThresholdBytes int64, isCommitted func(key string, r revision.Revision) bool) *SplitWorker {
	return &SplitWorker{
		store:                    store,
		localClusterId:           localClusterId,
		interval:                 interval,
		revisionsSplitOffSize:    revisionsSplitOffSize,
		forceSplitThresholdBytes: forceSplitThresholdBytes,
		isCommitted:              isCommitted,
	}
}

// Run blocks, ticking every w.interval until ctx is canceled. Each tick is
// best-effort: a failed split is logged and the cursor still advances, so
// one bad document never wedges the worker (§5: split is best-effort and
// may be aborted between document mutations without inconsistency).
func (w *SplitWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick scans one batch of documents starting after w.cursor, splitting
// any that qualify, and advances the cursor for the next tick.
func (w *SplitWorker) tick() {
	const batchSize = 256

	docs, err := w.store.Query(CollectionNodes, w.cursor, "", batchSize)
	if err != nil {
		rlog.Error("split worker: scan failed", "error", err)
		return
	}
	if len(docs) == 0 {
		w.cursor = "" // wrap around for the next pass
		return
	}

	for _, doc := range docs {
		w.cursor = doc.Id
		if !SplitCandidate(doc, w.revisionsSplitOffSize, w.forceSplitThresholdBytes) {
			continue
		}
		_, op, err := Split(w.store, doc, w.localClusterId, w.isCommitted)
		if err != nil {
			rlog.Error("split worker: split failed", "document", doc.Id, "error", err)
			continue
		}
		if op == nil {
			continue
		}
		if _, err := w.store.CreateOrUpdate(CollectionNodes, op); err != nil {
			rlog.Error("split worker: apply primary update failed", "document", doc.Id, "error", err)
		}
	}
}
