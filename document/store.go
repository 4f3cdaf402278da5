package document

import (
	"fmt"
	"sort"
	"sync"

	goccy "github.com/goccy/go-json"

	"github.com/contentgraph/corestore/internal/engerr"
	"github.com/contentgraph/corestore/revision"
)

// Collection names a logical document collection (§6). The engine uses a
// single NODES collection; the type exists so the contract matches other
// Oak-style backends that also keep a SETTINGS/JOURNAL collection.
type Collection string

const CollectionNodes Collection = "nodes"

// Store is the DocumentStore contract consumed by the DocumentEngine
// (§6): conditional per-document updates plus range queries ordered by
// id, matching NodeDocument's "<depth>:<path>" and
// "<depth>:p/<parent>/<rev>" id encodings.
type Store interface {
	Find(collection Collection, id string) (*NodeDocument, error)
	Query(collection Collection, fromId, toId string, limit int) ([]*NodeDocument, error)
	CreateOrUpdate(collection Collection, op *UpdateOp) (*NodeDocument, error)
	Create(collection Collection, ops []*UpdateOp) (bool, error)
	Remove(collection Collection, id string) error
}

// MemoryStore is an in-process Store, the natural backend for tests and
// for the single-process embedded mode.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[Collection]map[string]*NodeDocument
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[Collection]map[string]*NodeDocument)}
}

func (s *MemoryStore) collection(c Collection) map[string]*NodeDocument {
	m, ok := s.docs[c]
	if !ok {
		m = make(map[string]*NodeDocument)
		s.docs[c] = m
	}
	return m
}

func (s *MemoryStore) Find(c Collection, id string) (*NodeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collection(c)[id]
	if !ok {
		return nil, nil
	}
	return doc, nil
}

func (s *MemoryStore) Query(c Collection, fromId, toId string, limit int) ([]*NodeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(c)
	ids := make([]string, 0, len(coll))
	for id := range coll {
		if id > fromId && (toId == "" || id < toId) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*NodeDocument, len(ids))
	for i, id := range ids {
		out[i] = coll[id]
	}
	return out, nil
}

// CreateOrUpdate applies op atomically: preconditions are checked against
// the current document, and on success the mutation is applied in place,
// returning the document state as it was before the update (§6).
func (s *MemoryStore) CreateOrUpdate(c Collection, op *UpdateOp) (*NodeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(c)
	before := coll[op.Id]

	if op.IsNew && before != nil {
		return before, fmt.Errorf("document: %w: %s already exists", engerr.ConflictingUpdate, op.Id)
	}
	if !op.CheckPreconditions(before) {
		return before, fmt.Errorf("document: %w: precondition failed for %s", engerr.ConflictingUpdate, op.Id)
	}

	var prevCopy *NodeDocument
	if before != nil {
		prevCopy = cloneDocument(before)
	}

	doc := before
	if doc == nil {
		doc = New(op.Id)
	}
	op.Apply(doc)
	coll[op.Id] = doc

	return prevCopy, nil
}

func (s *MemoryStore) Create(c Collection, ops []*UpdateOp) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(c)
	for _, op := range ops {
		if _, exists := coll[op.Id]; exists {
			return false, nil
		}
	}
	for _, op := range ops {
		doc := New(op.Id)
		op.Apply(doc)
		coll[op.Id] = doc
	}
	return true, nil
}

func (s *MemoryStore) Remove(c Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collection(c), id)
	return nil
}

func cloneDocument(d *NodeDocument) *NodeDocument {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := New(d.Id)
	out.ModCount = d.ModCount
	out.Modified = d.Modified
	for key, m := range d.Values {
		nm := make(map[revision.Revision]string, len(m))
		for r, v := range m {
			nm[r] = v
		}
		out.Values[key] = nm
	}
	for cid, r := range d.LastRev {
		out.LastRev[cid] = r
	}
	out.Prev = append(out.Prev, d.Prev...)
	return out
}

// documentWire is NodeDocument's JSON-safe shape for durable backends:
// revision-keyed maps become string-keyed maps via revision.String(),
// since Go's encoding and goccy/go-json both require string (or
// TextMarshaler) map keys for object encoding.
type documentWire struct {
	Id       string                      `json:"id"`
	ModCount int64                       `json:"modCount"`
	Modified int64                       `json:"modified"`
	Values   map[string]map[string]string `json:"values"`
	LastRev  map[uint32]string           `json:"lastRev"`
	Prev     []wirePrevEntry             `json:"prev"`
}

type wirePrevEntry struct {
	High string `json:"high"`
	Low  string `json:"low"`
}

// marshalDocument serializes a document snapshot for durable backends,
// using goccy/go-json for the same fast-path encoding the rest of the
// engine uses for wire payloads.
func marshalDocument(d *NodeDocument) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	values := make(map[string]map[string]string, len(d.Values))
	for key, m := range d.Values {
		vm := make(map[string]string, len(m))
		for r, v := range m {
			vm[r.String()] = v
		}
		values[key] = vm
	}
	lastRev := make(map[uint32]string, len(d.LastRev))
	for cid, r := range d.LastRev {
		lastRev[cid] = r.String()
	}
	prev := make([]wirePrevEntry, len(d.Prev))
	for i, p := range d.Prev {
		prev[i] = wirePrevEntry{High: p.High.String(), Low: p.Low.String()}
	}

	return goccy.Marshal(documentWire{
		Id:       d.Id,
		ModCount: d.ModCount,
		Modified: d.Modified,
		Values:   values,
		LastRev:  lastRev,
		Prev:     prev,
	})
}

// unmarshalDocument is the inverse of marshalDocument.
func unmarshalDocument(data []byte) (*NodeDocument, error) {
	var w documentWire
	if err := goccy.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("document: unmarshal: %w", err)
	}

	d := New(w.Id)
	d.ModCount = w.ModCount
	d.Modified = w.Modified
	for key, vm := range w.Values {
		m := make(map[revision.Revision]string, len(vm))
		for rs, v := range vm {
			r, err := revision.Parse(rs)
			if err != nil {
				return nil, fmt.Errorf("document: unmarshal %s[%s]: %w", key, rs, err)
			}
			m[r] = v
		}
		d.Values[key] = m
	}
	for cid, rs := range w.LastRev {
		r, err := revision.Parse(rs)
		if err != nil {
			return nil, fmt.Errorf("document: unmarshal lastRev: %w", err)
		}
		d.LastRev[cid] = r
	}
	for _, p := range w.Prev {
		high, err := revision.Parse(p.High)
		if err != nil {
			return nil, fmt.Errorf("document: unmarshal prev.high: %w", err)
		}
		low, err := revision.Parse(p.Low)
		if err != nil {
			return nil, fmt.Errorf("document: unmarshal prev.low: %w", err)
		}
		d.Prev = append(d.Prev, PrevEntry{High: high, Low: low})
	}
	return d, nil
}
