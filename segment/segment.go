package segment

import (
	"encoding/binary"
	"fmt"
)

// MaxSize is the maximum byte size of a Segment (§3, §6): 256 KiB.
const MaxSize = 256 * 1024

// Alignment is the byte alignment every record offset must respect (§3).
const Alignment = 4

// MaxExternalRefs is the maximum number of distinct external segments a
// single segment may reference (§3): one byte's worth minus the self
// sentinel.
const MaxExternalRefs = 255

// headerFixedSize is the byte length of the refs_count and roots_count
// fields that precede the roots table and reference table (§3).
const headerFixedSize = 1 + 2

// Segment is an immutable, content-addressed byte block (§3). Once built it
// is never mutated; readers hold a borrowed handle for the lifetime of a
// read (§3 Ownership).
type Segment struct {
	id   Id
	data []byte // full on-disk bytes, header included
	refs []Id   // segment_reference_table, in table order
	root []uint32

	strCache *stringCache
}

// Id returns the segment's own content address.
func (s *Segment) Id() Id { return s.id }

// Length returns the total byte size of the segment, header included.
func (s *Segment) Length() int { return len(s.data) }

// Roots returns the local (self-segment) aligned offsets the writer marked
// as root records when it sealed this segment.
func (s *Segment) Roots() []uint32 {
	out := make([]uint32, len(s.root))
	copy(out, s.root)
	return out
}

// RefCount returns the number of external segments this segment references.
func (s *Segment) RefCount() int { return len(s.refs) }

// ParseSegment decodes the header of a raw byte block and returns a Segment
// ready for record reads. It does not validate record contents beyond the
// header, matching the lazy-validation style of the rest of the engine.
func ParseSegment(id Id, data []byte) (*Segment, error) {
	if len(data) < headerFixedSize {
		return nil, fmt.Errorf("segment: %s: truncated header (%d bytes)", id, len(data))
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("segment: %s: exceeds max size %d (%d bytes)", id, MaxSize, len(data))
	}

	refsCount := int(data[0])
	rootsCount := int(binary.BigEndian.Uint16(data[1:3]))

	off := headerFixedSize
	rootsBytes := rootsCount * 3
	if off+rootsBytes > len(data) {
		return nil, fmt.Errorf("segment: %s: truncated roots table", id)
	}
	roots := make([]uint32, rootsCount)
	for i := 0; i < rootsCount; i++ {
		var b [3]byte
		copy(b[:], data[off+i*3:off+i*3+3])
		ref, o := decodeRecordPointer(b)
		if ref != selfRef {
			return nil, fmt.Errorf("segment: %s: root entry %d does not reference self", id, i)
		}
		roots[i] = o
	}
	off += rootsBytes

	refsBytes := refsCount * 16
	if off+refsBytes > len(data) {
		return nil, fmt.Errorf("segment: %s: truncated reference table", id)
	}
	refs := make([]Id, refsCount)
	for i := 0; i < refsCount; i++ {
		b := data[off+i*16 : off+i*16+16]
		refs[i] = Id{
			MSB: binary.BigEndian.Uint64(b[0:8]),
			LSB: binary.BigEndian.Uint64(b[8:16]),
		}
	}

	return &Segment{id: id, data: data, refs: refs, root: roots, strCache: newStringCache()}, nil
}

// headerSize returns the byte length of refs_count + roots_count + roots
// table + reference table, i.e. where the record area begins.
func (s *Segment) headerSize() int {
	return headerFixedSize + len(s.root)*3 + len(s.refs)*16
}

// resolveRef maps a reference-table index (or selfRef) to a segment Id.
func (s *Segment) resolveRef(idx byte) (Id, error) {
	if idx == selfRef {
		return s.id, nil
	}
	if int(idx) >= len(s.refs) {
		return Id{}, fmt.Errorf("segment: %s: reference index %d out of range (%d refs)", s.id, idx, len(s.refs))
	}
	return s.refs[idx], nil
}

// checkOffset validates that the body-relative record area [offset,
// offset+n) lies within the segment. Every record offset in this package is
// body-relative — measured from the first byte after the header — which
// lets a record written early in a segment embed pointers to records
// written later without needing to know the final header size (driven by
// the eventual refs_count/roots_count) in advance.
func (s *Segment) checkOffset(offset uint32, n int) error {
	bodyLen := len(s.data) - s.headerSize()
	if int(offset)+n > bodyLen {
		return fmt.Errorf("segment: %s: offset %d+%d out of bounds (body length %d)", s.id, offset, n, bodyLen)
	}
	if offset%Alignment != 0 {
		return fmt.Errorf("segment: %s: unaligned offset %d", s.id, offset)
	}
	return nil
}
