package hamt

import (
	"github.com/contentgraph/corestore/segment"
)

// WriteNode serializes n as a MapRecord (§4.5): a leaf writes its entry
// count followed by (name-string-ref, value RecordId) pairs in hash
// order; a branch writes its bitmap followed by one child RecordId per
// set bit, in ascending index order. Children are written bottom-up so
// every referenced RecordId already exists by the time the parent record
// is written.
func WriteNode(w *segment.Writer, n *Node) (segment.RecordId, error) {
	if n == nil {
		return segment.RecordId{}, nil
	}
	if n.leaf {
		return writeLeaf(w, n)
	}
	return writeBranch(w, n)
}

func writeLeaf(w *segment.Writer, n *Node) (segment.RecordId, error) {
	nameRefs := make([]segment.RecordId, len(n.entries))
	for i, e := range n.entries {
		ref, err := w.WriteString(e.Key)
		if err != nil {
			return segment.RecordId{}, err
		}
		nameRefs[i] = ref.RecordId
	}

	head := w.WriteBytes([]byte{0}) // 0 = leaf
	w.WriteInt(uint32(len(n.entries)))
	for i, e := range n.entries {
		if _, err := w.WriteRecordId(nameRefs[i]); err != nil {
			return segment.RecordId{}, err
		}
		if _, err := w.WriteRecordId(e.Value); err != nil {
			return segment.RecordId{}, err
		}
	}
	return segment.RecordId{Segment: w.CurrentId(), Offset: head}, nil
}

func writeBranch(w *segment.Writer, n *Node) (segment.RecordId, error) {
	childIds := make(map[uint32]segment.RecordId, len(n.kids))
	for idx, kid := range n.kids {
		id, err := WriteNode(w, kid)
		if err != nil {
			return segment.RecordId{}, err
		}
		childIds[idx] = id
	}

	head := w.WriteBytes([]byte{1}) // 1 = branch
	w.WriteInt(n.bitmap)
	for idx := uint32(0); idx < 32; idx++ {
		if n.bitmap&(1<<idx) == 0 {
			continue
		}
		if _, err := w.WriteRecordId(childIds[idx]); err != nil {
			return segment.RecordId{}, err
		}
	}
	return segment.RecordId{Segment: w.CurrentId(), Offset: head}, nil
}

// ReadNode decodes the MapRecord at id back into an in-memory Node.
func ReadNode(s *segment.Segment, id segment.RecordId, resolve segment.Resolver, level int) (*Node, error) {
	if id.Segment != s.Id() {
		return nil, errSegmentMismatch(s, id)
	}
	kind, err := s.ReadByte(id.Offset)
	if err != nil {
		return nil, err
	}
	cursor := id.Offset + 4

	if kind == 0 {
		count, err := s.ReadInt(cursor)
		if err != nil {
			return nil, err
		}
		cursor += 4
		entries := make([]Entry, 0, count)
		for i := uint32(0); i < count; i++ {
			nameRef, err := s.ReadRecordId(cursor)
			if err != nil {
				return nil, err
			}
			cursor += 4
			valRef, err := s.ReadRecordId(cursor)
			if err != nil {
				return nil, err
			}
			cursor += 4
			name, err := segment.ResolveString(s, nameRef, resolve)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Key: name, Value: valRef, hash: hashKey(name)})
		}
		return &Node{leaf: true, level: level, entries: entries}, nil
	}

	bitmap, err := s.ReadInt(cursor)
	if err != nil {
		return nil, err
	}
	cursor += 4
	n := &Node{leaf: false, level: level, bitmap: bitmap, kids: make(map[uint32]*Node)}
	for idx := uint32(0); idx < 32; idx++ {
		if bitmap&(1<<idx) == 0 {
			continue
		}
		childId, err := s.ReadRecordId(cursor)
		if err != nil {
			return nil, err
		}
		cursor += 4
		childSeg := s
		if childId.Segment != s.Id() {
			childSeg, err = resolve(childId)
			if err != nil {
				return nil, err
			}
		}
		kid, err := ReadNode(childSeg, childId, resolve, level+1)
		if err != nil {
			return nil, err
		}
		n.kids[idx] = kid
	}
	return n, nil
}

func errSegmentMismatch(s *segment.Segment, id segment.RecordId) error {
	return segmentMismatchError{want: s.Id(), got: id.Segment}
}

type segmentMismatchError struct {
	want, got segment.Id
}

func (e segmentMismatchError) Error() string {
	return "hamt: record " + e.got.String() + " does not belong to segment " + e.want.String()
}
