package segment

import (
	"fmt"
	"strings"
)

// ChildKind discriminates a node's child-count shape for template dedup
// (§3: "Template"): nodes that differ only in property values but share
// shape reuse the same Template record.
type ChildKind int

const (
	ChildZero ChildKind = iota
	ChildOne
	ChildMany
)

func (k ChildKind) String() string {
	switch k {
	case ChildZero:
		return "ZERO"
	case ChildOne:
		return "ONE"
	case ChildMany:
		return "MANY"
	default:
		return "UNKNOWN"
	}
}

// PropertyType mirrors the small set of scalar/array property value kinds
// a Template's property slots are typed by.
type PropertyType int

const (
	PropString PropertyType = iota
	PropLong
	PropDouble
	PropBoolean
	PropBinary
	PropName
)

// PropertyTemplate names one property slot in a Template: its name, value
// type, and whether it is multi-valued (§3).
type PropertyTemplate struct {
	Name  string
	Type  PropertyType
	Multi bool
}

// Template is a deduplicated description of a node's shape (§3, §4.11):
// primary type, mixins, child-count discriminator, and property slots.
// Two nodes with an identical Template share the same on-disk record.
type Template struct {
	PrimaryType string // empty if unset
	Mixins      []string
	ChildName   string // set only when Child == ChildOne
	Child       ChildKind
	Properties  []PropertyTemplate
}

// dedupKey returns a canonical string uniquely identifying this template's
// shape, used as the WriteDeduped key so structurally identical templates
// collapse onto one record within a segment.
func (t Template) dedupKey() string {
	var b strings.Builder
	b.WriteString(t.PrimaryType)
	b.WriteByte('\x00')
	b.WriteString(strings.Join(t.Mixins, ","))
	b.WriteByte('\x00')
	fmt.Fprintf(&b, "%d:%s", t.Child, t.ChildName)
	for _, p := range t.Properties {
		fmt.Fprintf(&b, "\x00%s:%d:%v", p.Name, p.Type, p.Multi)
	}
	return b.String()
}

// WriteTemplate serializes t into w's body, deduplicating against any
// identical template already written to the current segment, and returns
// a RecordId for it.
func (w *Writer) WriteTemplate(t Template) (RecordId, error) {
	key := t.dedupKey()
	if off, ok := w.dedupKey(key); ok {
		return RecordId{Segment: w.CurrentId(), Offset: off}, nil
	}

	var propertyIds []uint32
	for _, p := range t.Properties {
		nameRef, err := w.WriteString(p.Name)
		if err != nil {
			return RecordId{}, err
		}
		nameOff, err := w.WriteRecordId(nameRef.RecordId)
		if err != nil {
			return RecordId{}, err
		}
		flags := byte(p.Type)
		if p.Multi {
			flags |= 0x80
		}
		w.WriteBytes([]byte{flags})
		propertyIds = append(propertyIds, nameOff)
	}

	var primaryOff, childNameOff uint32
	var havePrimary, haveChildName bool
	if t.PrimaryType != "" {
		ref, err := w.WriteString(t.PrimaryType)
		if err != nil {
			return RecordId{}, err
		}
		if primaryOff, err = w.WriteRecordId(ref.RecordId); err != nil {
			return RecordId{}, err
		}
		havePrimary = true
	}
	if t.Child == ChildOne {
		ref, err := w.WriteString(t.ChildName)
		if err != nil {
			return RecordId{}, err
		}
		if childNameOff, err = w.WriteRecordId(ref.RecordId); err != nil {
			return RecordId{}, err
		}
		haveChildName = true
	}

	flags := byte(t.Child) << 1
	if havePrimary {
		flags |= 0x01
	}
	if haveChildName {
		flags |= 0x04
	}

	mixinRefs := make([]RecordId, 0, len(t.Mixins))
	for _, m := range t.Mixins {
		ref, err := w.WriteString(m)
		if err != nil {
			return RecordId{}, err
		}
		mixinRefs = append(mixinRefs, ref.RecordId)
	}

	headOff := w.WriteBytes([]byte{flags})
	w.WriteInt(uint32(len(t.Mixins)))
	for _, ref := range mixinRefs {
		if _, err := w.WriteRecordId(ref); err != nil {
			return RecordId{}, err
		}
	}
	if havePrimary {
		w.WriteInt(primaryOff)
	}
	if haveChildName {
		w.WriteInt(childNameOff)
	}
	w.WriteInt(uint32(len(propertyIds)))
	for _, off := range propertyIds {
		w.WriteInt(off)
	}

	w.mu.Lock()
	w.templateDedup[key] = headOff
	w.mu.Unlock()

	return RecordId{Segment: w.CurrentId(), Offset: headOff}, nil
}
