package segment

import (
	"encoding/binary"
	"fmt"
)

// abs translates a body-relative offset to an index into s.data.
func (s *Segment) abs(offset uint32) uint32 { return uint32(s.headerSize()) + offset }

// ReadByte reads a single byte at offset.
func (s *Segment) ReadByte(offset uint32) (byte, error) {
	if err := s.checkOffsetUnaligned(offset, 1); err != nil {
		return 0, err
	}
	return s.data[s.abs(offset)], nil
}

// ReadShort reads a big-endian uint16 at offset.
func (s *Segment) ReadShort(offset uint32) (uint16, error) {
	if err := s.checkOffsetUnaligned(offset, 2); err != nil {
		return 0, err
	}
	o := s.abs(offset)
	return binary.BigEndian.Uint16(s.data[o : o+2]), nil
}

// ReadInt reads a big-endian uint32 at offset.
func (s *Segment) ReadInt(offset uint32) (uint32, error) {
	if err := s.checkOffset(offset, 4); err != nil {
		return 0, err
	}
	o := s.abs(offset)
	return binary.BigEndian.Uint32(s.data[o : o+4]), nil
}

// ReadLong reads a big-endian uint64 at offset.
func (s *Segment) ReadLong(offset uint32) (uint64, error) {
	if err := s.checkOffsetUnaligned(offset, 8); err != nil {
		return 0, err
	}
	o := s.abs(offset)
	return binary.BigEndian.Uint64(s.data[o : o+8]), nil
}

// checkOffsetUnaligned is like checkOffset but without the 4-byte alignment
// requirement, for sub-record scalar fields that may follow a 1-byte length
// prefix.
func (s *Segment) checkOffsetUnaligned(offset uint32, n int) error {
	bodyLen := len(s.data) - s.headerSize()
	if int(offset)+n > bodyLen {
		return fmt.Errorf("segment: %s: offset %d+%d out of bounds (body length %d)", s.id, offset, n, bodyLen)
	}
	return nil
}

// ReadRecordId reads a 3-byte record pointer at offset and resolves it
// against this segment's reference table (§3, §6).
func (s *Segment) ReadRecordId(offset uint32) (RecordId, error) {
	if err := s.checkOffset(offset, 3); err != nil {
		return RecordId{}, err
	}
	var b [3]byte
	a := s.abs(offset)
	copy(b[:], s.data[a:a+3])
	ref, o := decodeRecordPointer(b)
	target, err := s.resolveRef(ref)
	if err != nil {
		return RecordId{}, err
	}
	return RecordId{Segment: target, Offset: o}, nil
}

// string length-prefix tiers (§4.3).
const (
	smallStringMax  = 1<<7 - 1   // 1-byte length prefix, <128
	mediumStringMax = 1<<14 - 65 // long-string fragment size (matches source constant); the 2-byte prefix covers lengths <16512
)

// ReadString decodes a length-prefixed string at offset: 1-byte length for
// strings under 128 bytes, 2-byte length for strings under 16512 bytes, and
// a list of record fragments for anything longer (§4.3). Results are
// memoized in the segment's second-chance string cache.
func (s *Segment) ReadString(offset uint32) (string, error) {
	if cached, ok := s.strCache.get(offset); ok {
		return cached, nil
	}

	lenByte, err := s.ReadByte(offset)
	if err != nil {
		return "", err
	}

	var str string
	switch {
	case lenByte < 0x80:
		n := int(lenByte)
		if err := s.checkOffsetUnaligned(offset+1, n); err != nil {
			return "", err
		}
		a := s.abs(offset + 1)
		str = string(s.data[a : a+uint32(n)])

	case lenByte < 0xC0:
		// 2-byte length: top two bits of the first byte plus the second
		// byte form a 14-bit length, biased by smallStringMax+1.
		second, err := s.ReadByte(offset + 1)
		if err != nil {
			return "", err
		}
		n := (int(lenByte&0x3F)<<8 | int(second)) + smallStringMax + 1
		if err := s.checkOffsetUnaligned(offset+2, n); err != nil {
			return "", err
		}
		a := s.abs(offset + 2)
		str = string(s.data[a : a+uint32(n)])

	default:
		return "", fmt.Errorf("segment: %s: multi-record long strings require list traversal via ReadLongString", s.id)
	}

	s.strCache.put(offset, str)
	return str, nil
}

// ReadLongString decodes a string stored as a list of RecordId fragments,
// each itself a length-prefixed string record (§4.3, for strings of 16512
// bytes or more). recordCount fragments are concatenated in order.
func (s *Segment) ReadLongString(listOffset uint32, recordCount int, resolve func(RecordId) (*Segment, uint32, error)) (string, error) {
	var out []byte
	cursor := listOffset
	for i := 0; i < recordCount; i++ {
		// WriteString packs the fragment pointers at a 3-byte stride, so
		// only the first is 4-byte aligned; decode each one directly.
		if err := s.checkOffsetUnaligned(cursor, 3); err != nil {
			return "", err
		}
		var b [3]byte
		a := s.abs(cursor)
		copy(b[:], s.data[a:a+3])
		ref, off := decodeRecordPointer(b)
		target, err := s.resolveRef(ref)
		if err != nil {
			return "", err
		}
		rid := RecordId{Segment: target, Offset: off}
		seg, localOffset, err := resolve(rid)
		if err != nil {
			return "", err
		}
		frag, err := seg.ReadString(localOffset)
		if err != nil {
			return "", err
		}
		out = append(out, frag...)
		cursor += 3
	}
	return string(out), nil
}

// ReadBytes returns a copy of n raw bytes at offset (used for inline binary
// record payloads).
func (s *Segment) ReadBytes(offset uint32, n int) ([]byte, error) {
	if err := s.checkOffsetUnaligned(offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	a := s.abs(offset)
	copy(out, s.data[a:int(a)+n])
	return out, nil
}
