package document

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/contentgraph/corestore/internal/engerr"
)

// PebbleStore is a pebble-backed Store (§6), the alternative durable
// backend to LevelStore. Pebble's LSM and its CAS-friendly
// read-modify-write-under-lock shape also back the segment Journal, so
// reusing it here keeps the node to one less storage engine to operate.
type PebbleStore struct {
	db       *pebble.DB
	rowLocks sync.Map // string -> *sync.Mutex
}

// OpenPebbleStore opens (creating if necessary) a pebble database at dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("document: pebblestore: open %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func pebbleKey(c Collection, id string) []byte {
	return []byte(string(c) + "/" + id)
}

func (s *PebbleStore) rowLock(id string) *sync.Mutex {
	v, _ := s.rowLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *PebbleStore) Find(c Collection, id string) (*NodeDocument, error) {
	v, closer, err := s.db.Get(pebbleKey(c, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, engerr.Wrap(engerr.StoreIO, "document: pebblestore: get", err)
	}
	defer closer.Close()
	doc, err := unmarshalDocument(v)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PebbleStore) Query(c Collection, fromId, toId string, limit int) ([]*NodeDocument, error) {
	lower := pebbleKey(c, fromId)
	var upper []byte
	if toId != "" {
		upper = pebbleKey(c, toId)
	} else {
		upper = append(append([]byte{}, []byte(string(c)+"/")...), 0xFF)
	}

	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, engerr.Wrap(engerr.StoreIO, "document: pebblestore: iterate", err)
	}
	defer it.Close()

	var out []*NodeDocument
	for it.First(); it.Valid(); it.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		doc, err := unmarshalDocument(it.Value())
		if err != nil {
			return nil, err
		}
		if doc.Id == fromId {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *PebbleStore) CreateOrUpdate(c Collection, op *UpdateOp) (*NodeDocument, error) {
	lock := s.rowLock(op.Id)
	lock.Lock()
	defer lock.Unlock()

	before, err := s.Find(c, op.Id)
	if err != nil {
		return nil, err
	}
	if op.IsNew && before != nil {
		return before, fmt.Errorf("document: %w: %s already exists", engerr.ConflictingUpdate, op.Id)
	}
	if !op.CheckPreconditions(before) {
		return before, fmt.Errorf("document: %w: precondition failed for %s", engerr.ConflictingUpdate, op.Id)
	}

	doc := before
	if doc == nil {
		doc = New(op.Id)
	} else {
		doc = cloneDocument(doc)
	}
	op.Apply(doc)

	data, err := marshalDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(pebbleKey(c, op.Id), data, pebble.Sync); err != nil {
		return nil, engerr.Wrap(engerr.StoreIO, "document: pebblestore: set", err)
	}
	return before, nil
}

func (s *PebbleStore) Create(c Collection, ops []*UpdateOp) (bool, error) {
	for _, op := range ops {
		lock := s.rowLock(op.Id)
		lock.Lock()
		_, closer, err := s.db.Get(pebbleKey(c, op.Id))
		if err == nil {
			closer.Close()
		}
		lock.Unlock()
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return false, engerr.Wrap(engerr.StoreIO, "document: pebblestore: get", err)
		}
	}
	for _, op := range ops {
		doc := New(op.Id)
		op.Apply(doc)
		data, err := marshalDocument(doc)
		if err != nil {
			return false, err
		}
		if err := s.db.Set(pebbleKey(c, op.Id), data, pebble.Sync); err != nil {
			return false, engerr.Wrap(engerr.StoreIO, "document: pebblestore: set", err)
		}
	}
	return true, nil
}

func (s *PebbleStore) Remove(c Collection, id string) error {
	if err := s.db.Delete(pebbleKey(c, id), pebble.Sync); err != nil {
		return engerr.Wrap(engerr.StoreIO, "document: pebblestore: delete", err)
	}
	return nil
}

// Close releases the underlying pebble database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
