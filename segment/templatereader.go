package segment

import "fmt"

// resolver looks up the segment owning a RecordId's target, following
// external references through a cache or store. SegmentNodeState and
// template reads take one so they can cross segment boundaries lazily.
type Resolver func(RecordId) (*Segment, error)

// ReadTemplate decodes a Template record written by Writer.WriteTemplate.
func (s *Segment) ReadTemplate(offset uint32, resolve Resolver) (Template, error) {
	flags, err := s.ReadByte(offset)
	if err != nil {
		return Template{}, err
	}
	// WriteTemplate stores the child kind shifted left by one and ORs in
	// 0x04 when it writes a child name, which it does only for ChildOne,
	// so bits 1-2 read 0 for ChildZero, 2 for ChildMany and 3 for ChildOne.
	child := ChildKind((flags >> 1) & 0x03)
	if child == 3 {
		child = ChildOne
	}
	havePrimary := flags&0x01 != 0
	haveChildName := child == ChildOne

	cursor := offset + 4 // flags byte is stored 4-byte aligned per WriteBytes alignment

	mixinCount, err := s.ReadInt(cursor)
	if err != nil {
		return Template{}, err
	}
	cursor += 4
	mixins := make([]string, mixinCount)
	for i := range mixins {
		rid, err := s.ReadRecordId(cursor)
		if err != nil {
			return Template{}, err
		}
		cursor += 4
		name, err := resolveString(s, rid, resolve)
		if err != nil {
			return Template{}, err
		}
		mixins[i] = name
	}

	t := Template{Child: child, Mixins: mixins}

	if havePrimary {
		primaryOff, err := s.ReadInt(cursor)
		if err != nil {
			return Template{}, err
		}
		cursor += 4
		rid, err := s.ReadRecordId(primaryOff)
		if err != nil {
			return Template{}, err
		}
		if t.PrimaryType, err = resolveString(s, rid, resolve); err != nil {
			return Template{}, err
		}
	}
	if haveChildName {
		childOff, err := s.ReadInt(cursor)
		if err != nil {
			return Template{}, err
		}
		cursor += 4
		rid, err := s.ReadRecordId(childOff)
		if err != nil {
			return Template{}, err
		}
		if t.ChildName, err = resolveString(s, rid, resolve); err != nil {
			return Template{}, err
		}
	}

	propCount, err := s.ReadInt(cursor)
	if err != nil {
		return Template{}, err
	}
	cursor += 4
	for i := uint32(0); i < propCount; i++ {
		propHeadOff, err := s.ReadInt(cursor)
		if err != nil {
			return Template{}, err
		}
		cursor += 4
		rid, err := s.ReadRecordId(propHeadOff)
		if err != nil {
			return Template{}, err
		}
		name, err := resolveString(s, rid, resolve)
		if err != nil {
			return Template{}, err
		}
		flagsOff := propHeadOff + 4
		pf, err := s.ReadByte(flagsOff)
		if err != nil {
			return Template{}, err
		}
		t.Properties = append(t.Properties, PropertyTemplate{
			Name:  name,
			Type:  PropertyType(pf &^ 0x80),
			Multi: pf&0x80 != 0,
		})
	}

	return t, nil
}

// resolveString follows a RecordId (possibly into another segment) and
// reads the string at its target offset.
func resolveString(local *Segment, rid RecordId, resolve Resolver) (string, error) {
	return ResolveString(local, rid, resolve)
}

// ResolveString follows a RecordId (possibly into another segment) and
// reads the string at its target offset; exported for callers outside the
// package building their own record shapes on top of string refs (e.g.
// segment/hamt's MapRecord entries).
func ResolveString(local *Segment, rid RecordId, resolve Resolver) (string, error) {
	if rid.Segment == local.id {
		return local.ReadString(rid.Offset)
	}
	if resolve == nil {
		return "", fmt.Errorf("segment: %s: cross-segment string reference requires a resolver", local.id)
	}
	target, err := resolve(rid)
	if err != nil {
		return "", err
	}
	return target.ReadString(rid.Offset)
}
