// Package segment implements the content-addressed, immutable segment store
// (§2 SegmentEngine): fixed-size byte blocks identified by 128-bit IDs,
// packed records, the segment cache, the append-only writer, and the
// journal that publishes new repository heads.
package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Type distinguishes a data segment (node/property/map records) from a bulk
// segment (large binary blobs), encoded in the ID's LSB nibble (§3, §6).
type Type byte

const (
	// DataType marks a segment holding packed records.
	DataType Type = 0xA
	// BulkType marks a segment holding large binary blob data.
	BulkType Type = 0xB
)

func (t Type) String() string {
	switch t {
	case DataType:
		return "data"
	case BulkType:
		return "bulk"
	default:
		return fmt.Sprintf("unknown(%x)", byte(t))
	}
}

// uuidVersionNibble is the UUIDv4 version nibble the spec requires segment
// IDs to carry in their most-significant bits (§3, §6).
const uuidVersionNibble = 0x4

// Id is a 128-bit content-address for a Segment. The low nibble of LSB
// carries the segment Type; bits 12-15 of MSB (the high nibble of byte 6)
// carry the UUID version (always 4).
type Id struct {
	MSB uint64
	LSB uint64
}

// Type extracts the segment type nibble from the LSB.
func (id Id) Type() Type {
	return Type(id.LSB & 0xF)
}

// IsData reports whether id names a data segment.
func (id Id) IsData() bool { return id.Type() == DataType }

// IsBulk reports whether id names a bulk segment.
func (id Id) IsBulk() bool { return id.Type() == BulkType }

// String renders id in standard UUID text form.
func (id Id) String() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.MSB)
	binary.BigEndian.PutUint64(b[8:16], id.LSB)
	u, _ := uuid.FromBytes(b[:])
	return u.String()
}

// bucketKey is the low `bits` bits of LSB, used to index the
// SegmentIdFactory's interning table (§4.2).
func (id Id) bucketKey(bits uint) uint32 {
	mask := (uint64(1) << bits) - 1
	return uint32(id.LSB & mask)
}

// newID mints a fresh random 128-bit value with the UUIDv4 version nibble
// set in MSB and the given type nibble set in LSB.
func newID(t Type) Id {
	u := uuid.New() // v4, cryptographically random
	b := u[:]
	msb := binary.BigEndian.Uint64(b[0:8])
	lsb := binary.BigEndian.Uint64(b[8:16])

	// Force the version nibble (bits 12-15 of the time_hi_and_version
	// field, i.e. the high nibble of byte 6) to uuidVersionNibble; the
	// google/uuid library already does this for v4, but we pin it
	// explicitly since the spec calls out the bit pattern as a contract.
	msb = (msb &^ (0xF << 12)) | (uint64(uuidVersionNibble) << 12)

	// Force the type nibble into the low nibble of LSB.
	lsb = (lsb &^ 0xF) | uint64(t)

	return Id{MSB: msb, LSB: lsb}
}
