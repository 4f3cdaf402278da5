package document

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/contentgraph/corestore/internal/engerr"
)

// LevelStore is a goleveldb-backed Store (§6 DocumentStore contract), an
// alternative to MemoryStore for a single-node embedded deployment that
// should survive restarts without running a separate database process.
type LevelStore struct {
	db *leveldb.DB

	// rowLocks serializes CreateOrUpdate per document id so the
	// read-modify-write against the on-disk key behaves like the
	// conditional per-document atomic update the contract requires;
	// leveldb itself has no per-key locking primitive.
	rowLocks sync.Map // string -> *sync.Mutex
}

// OpenLevelStore opens (creating if necessary) a goleveldb database at dir.
func OpenLevelStore(dir string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("document: levelstore: open %s: %w", dir, err)
	}
	return &LevelStore{db: db}, nil
}

func levelKey(c Collection, id string) []byte {
	return []byte(string(c) + "/" + id)
}

func (s *LevelStore) rowLock(id string) *sync.Mutex {
	v, _ := s.rowLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *LevelStore) Find(c Collection, id string) (*NodeDocument, error) {
	data, err := s.db.Get(levelKey(c, id), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, engerr.Wrap(engerr.StoreIO, "document: levelstore: get", err)
	}
	return unmarshalDocument(data)
}

func (s *LevelStore) Query(c Collection, fromId, toId string, limit int) ([]*NodeDocument, error) {
	rng := &util.Range{Start: levelKey(c, fromId)}
	if toId != "" {
		rng.Limit = levelKey(c, toId)
	}
	var it iterator.Iterator = s.db.NewIterator(rng, nil)
	defer it.Release()

	var out []*NodeDocument
	for it.Next() {
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
	if err := it.Error(); err != nil {
		return nil, engerr.Wrap(engerr.StoreIO, "document: levelstore: iterate", err)
	}
	return out, nil
}

func (s *LevelStore) CreateOrUpdate(c Collection, op *UpdateOp) (*NodeDocument, error) {
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
	if err := s.db.Put(levelKey(c, op.Id), data, nil); err != nil {
		return nil, engerr.Wrap(engerr.StoreIO, "document: levelstore: put", err)
	}
	return before, nil
}

func (s *LevelStore) Create(c Collection, ops []*UpdateOp) (bool, error) {
	for _, op := range ops {
		lock := s.rowLock(op.Id)
		lock.Lock()
		_, err := s.db.Get(levelKey(c, op.Id), nil)
		lock.Unlock()
		if err == nil {
			return false, nil
		}
		if err != leveldb.ErrNotFound {
			return false, engerr.Wrap(engerr.StoreIO, "document: levelstore: get", err)
		}
	}
	for _, op := range ops {
		doc := New(op.Id)
		op.Apply(doc)
		data, err := marshalDocument(doc)
		if err != nil {
			return false, err
		}
		if err := s.db.Put(levelKey(c, op.Id), data, nil); err != nil {
			return false, engerr.Wrap(engerr.StoreIO, "document: levelstore: put", err)
		}
	}
	return true, nil
}

func (s *LevelStore) Remove(c Collection, id string) error {
	if err := s.db.Delete(levelKey(c, id), nil); err != nil {
		return engerr.Wrap(engerr.StoreIO, "document: levelstore: delete", err)
	}
	return nil
}

// Close releases the underlying goleveldb database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}
