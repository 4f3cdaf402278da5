// Package engerr defines the engine's error taxonomy (§7): a small set of
// sentinel kinds that every package wraps its own context around, so
// callers can classify failures with errors.Is/errors.As regardless of
// which layer raised them.
package engerr

import "errors"

// Sentinel kinds (§7). Wrap these with fmt.Errorf("...: %w", KindX) to add
// local context while keeping errors.Is(err, KindX) working.
var (
	// ConflictingUpdate: a concurrent commit touched the same property
	// after the committer's baseRevision. Reported to the caller; the
	// commit driver may rebase and retry a bounded number of times.
	ConflictingUpdate = errors.New("conflicting update")

	// MissingDocument: a referenced _prev document does not exist.
	// Readers treat this as a hole in the revision window and continue
	// scanning rather than raising.
	MissingDocument = errors.New("missing document")

	// SegmentNotFound: a RecordId references an unloadable segment id.
	// Fatal to the current read operation.
	SegmentNotFound = errors.New("segment not found")

	// CommitHookRejection: a validator vetoed the transaction; the
	// branch is discarded.
	CommitHookRejection = errors.New("commit hook rejected transaction")

	// Corruption: an invariant was violated (unaligned RecordId,
	// non-monotonic revision, document missing commit root, ...).
	// Fatal.
	Corruption = errors.New("corruption")

	// StoreIO: the underlying store failed.
	StoreIO = errors.New("store io error")
)

// wrapped pairs a sentinel kind with local detail and an optional cause,
// following the teacher's errValidationHalt/errReorgManualRequired shape:
// a small struct implementing Error() and Unwrap() so errors.Is still
// finds the sentinel through fmt.Errorf chains or direct wrapping alike.
type wrapped struct {
	kind   error
	detail string
	cause  error
}

func (e *wrapped) Error() string {
	if e.cause != nil {
		return e.detail + ": " + e.cause.Error()
	}
	return e.detail
}

func (e *wrapped) Unwrap() error {
	if e.cause != nil {
		return errors.Join(e.kind, e.cause)
	}
	return e.kind
}

// Wrap builds an error reporting kind with detail, optionally chaining
// cause so both remain discoverable via errors.Is/errors.As.
func Wrap(kind error, detail string, cause error) error {
	return &wrapped{kind: kind, detail: detail, cause: cause}
}
