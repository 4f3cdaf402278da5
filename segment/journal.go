package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/contentgraph/corestore/internal/engerr"
)

// journalKeyPrefix namespaces journal head slots within the journal's
// pebble keyspace.
var journalKeyPrefix = []byte("journal/head/")

// Journal is the single-named-slot-per-workspace CAS store described in
// §4.12: setHead(base, head) succeeds only if the current head equals
// base, giving writers an atomic rebase point.
type Journal struct {
	db *pebble.DB
	mu sync.Mutex
}

// OpenJournal opens (creating if necessary) a pebble database at dir for
// journal head slots.
func OpenJournal(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("segment: journal: open %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

func journalKey(workspace string) []byte {
	return append(append([]byte{}, journalKeyPrefix...), workspace...)
}

func encodeRecordId(r RecordId) []byte {
	b := make([]byte, 20)
	binary.BigEndian.PutUint64(b[0:8], r.Segment.MSB)
	binary.BigEndian.PutUint64(b[8:16], r.Segment.LSB)
	binary.BigEndian.PutUint32(b[16:20], r.Offset)
	return b
}

func decodeRecordId(b []byte) (RecordId, error) {
	if len(b) != 20 {
		return RecordId{}, fmt.Errorf("segment: journal: malformed head entry (%d bytes)", len(b))
	}
	return RecordId{
		Segment: Id{MSB: binary.BigEndian.Uint64(b[0:8]), LSB: binary.BigEndian.Uint64(b[8:16])},
		Offset:  binary.BigEndian.Uint32(b[16:20]),
	}, nil
}

// Head returns the current head RecordId for workspace, or the zero value
// and false if the workspace has never been initialized.
func (j *Journal) Head(workspace string) (RecordId, bool, error) {
	v, closer, err := j.db.Get(journalKey(workspace))
	if errors.Is(err, pebble.ErrNotFound) {
		return RecordId{}, false, nil
	}
	if err != nil {
		return RecordId{}, false, engerr.Wrap(engerr.StoreIO, "segment: journal: get head", err)
	}
	defer closer.Close()
	rid, err := decodeRecordId(v)
	if err != nil {
		return RecordId{}, false, err
	}
	return rid, true, nil
}

// SetHead performs the CAS described in §4.12: it succeeds only if the
// workspace's current head equals base (a zero RecordId with ok=false
// matches an uninitialized workspace).
func (j *Journal) SetHead(workspace string, base RecordId, baseOk bool, head RecordId) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	current, ok, err := j.Head(workspace)
	if err != nil {
		return err
	}
	if ok != baseOk || (ok && current != base) {
		return fmt.Errorf("segment: journal: %w: workspace %q head changed concurrently", engerr.ConflictingUpdate, workspace)
	}

	if err := j.db.Set(journalKey(workspace), encodeRecordId(head), pebble.Sync); err != nil {
		return engerr.Wrap(engerr.StoreIO, "segment: journal: set head", err)
	}
	return nil
}

// Close releases the underlying pebble database.
func (j *Journal) Close() error {
	return j.db.Close()
}
