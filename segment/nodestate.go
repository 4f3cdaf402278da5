package segment

import "fmt"

// PropertyValue is a decoded property value paired with its template slot.
type PropertyValue struct {
	Name   string
	Type   PropertyType
	Multi  bool
	Values []RecordId // one entry, or many if Multi
}

// NodeState is a RecordId pointing to a record
// [templateId(3B)] [childNameOrMapId?] [propertyValueIds...], per §3. It is
// immutable; equality is content-address equality on the RecordId alone.
type NodeState struct {
	Id RecordId
}

// WriteNodeState serializes a node's template, optional single-child
// pointer or child map RecordId, and property value RecordIds, returning
// the NodeState referencing the new record. Record sharing (template,
// child map) happens naturally through Writer's dedup of the inputs the
// caller already built.
func (w *Writer) WriteNodeState(tmpl RecordId, child *RecordId, properties []RecordId) (NodeState, error) {
	off, err := w.WriteRecordId(tmpl)
	if err != nil {
		return NodeState{}, err
	}

	if child != nil {
		w.WriteBytes([]byte{1})
		if _, err := w.WriteRecordId(*child); err != nil {
			return NodeState{}, err
		}
	} else {
		w.WriteBytes([]byte{0})
	}

	w.WriteInt(uint32(len(properties)))
	for _, p := range properties {
		if _, err := w.WriteRecordId(p); err != nil {
			return NodeState{}, err
		}
	}

	return NodeState{Id: RecordId{Segment: w.CurrentId(), Offset: off}}, nil
}

// ReadNodeState decodes the record at ns.Id, resolving cross-segment
// pointers through resolve.
func (s *Segment) ReadNodeState(ns NodeState, resolve Resolver) (templateRef RecordId, child *RecordId, properties []RecordId, err error) {
	if ns.Id.Segment != s.id {
		return RecordId{}, nil, nil, fmt.Errorf("segment: %s: NodeState %s belongs to a different segment", s.id, ns.Id.Segment)
	}

	templateRef, err = s.ReadRecordId(ns.Id.Offset)
	if err != nil {
		return
	}
	cursor := ns.Id.Offset + 4

	hasChild, err := s.ReadByte(cursor)
	if err != nil {
		return
	}
	cursor += 4
	if hasChild != 0 {
		var c RecordId
		c, err = s.ReadRecordId(cursor)
		if err != nil {
			return
		}
		child = &c
		cursor += 4
	}

	count, err := s.ReadInt(cursor)
	if err != nil {
		return
	}
	cursor += 4
	properties = make([]RecordId, count)
	for i := uint32(0); i < count; i++ {
		properties[i], err = s.ReadRecordId(cursor)
		if err != nil {
			return
		}
		cursor += 4
	}
	return
}
