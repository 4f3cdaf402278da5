package segment

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// flushMargin is how much headroom SegmentWriter leaves before MaxSize when
// deciding a segment should be sealed rather than grown further (§4.11).
const flushMargin = 4 * 1024

// StringRef is what WriteString returns: a RecordId plus, for strings long
// enough to need the multi-record list form (§4.3), the fragment count a
// reader must pass back into ReadLongString.
type StringRef struct {
	RecordId  RecordId
	LongCount int // 0 for inline (small/medium) strings
}

// Writer appends records to an in-progress segment buffer, as described in
// §4.11: it tracks external segment references, root offsets, and
// string/template dedup caches, sealing the buffer into an immutable
// Segment on Flush or when it approaches MaxSize.
type Writer struct {
	factory *Factory
	store   Store

	mu sync.Mutex

	id   Id
	body []byte

	refs     []Id
	refIndex map[Id]byte
	roots    []uint32

	stringDedup   map[string]uint32
	templateDedup map[string]uint32
}

// NewWriter returns a Writer that mints its first segment Id from factory
// and will publish sealed segments to store.
func NewWriter(factory *Factory, store Store) *Writer {
	w := &Writer{factory: factory, store: store}
	w.resetLocked()
	return w
}

// resetLocked mints a new segment id and clears all per-segment state.
// Caller must hold w.mu (or be constructing the Writer).
func (w *Writer) resetLocked() {
	w.id = *w.factory.NewDataSegmentId()
	w.body = w.body[:0]
	w.refs = nil
	w.refIndex = make(map[Id]byte)
	w.roots = nil
	w.stringDedup = make(map[string]uint32)
	w.templateDedup = make(map[string]uint32)
}

// CurrentId returns the Id the in-progress segment will have once sealed.
// Record writers use it to build self-referencing RecordIds before the
// segment exists on disk.
func (w *Writer) CurrentId() Id {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// Size estimates the byte length the segment would have if sealed right
// now, including its header.
func (w *Writer) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sizeLocked()
}

func (w *Writer) sizeLocked() int {
	return headerFixedSize + len(w.roots)*3 + len(w.refs)*16 + len(w.body)
}

// ShouldFlush reports whether the writer is close enough to MaxSize that
// the caller should seal before writing another record (§4.11).
func (w *Writer) ShouldFlush() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sizeLocked() >= MaxSize-flushMargin
}

func (w *Writer) align() {
	for len(w.body)%Alignment != 0 {
		w.body = append(w.body, 0)
	}
}

func (w *Writer) writeRawLocked(b []byte) uint32 {
	w.align()
	off := uint32(len(w.body))
	w.body = append(w.body, b...)
	return off
}

// refIndexLocked returns the reference-table index for id, interning a new
// entry (and growing the table) if id has not been referenced yet in this
// segment.
func (w *Writer) refIndexLocked(id Id) (byte, error) {
	if id == w.id {
		return selfRef, nil
	}
	if idx, ok := w.refIndex[id]; ok {
		return idx, nil
	}
	if len(w.refs) >= MaxExternalRefs {
		return 0, fmt.Errorf("segment: writer: segment %s already references the maximum %d external segments", w.id, MaxExternalRefs)
	}
	idx := byte(len(w.refs))
	w.refs = append(w.refs, id)
	w.refIndex[id] = idx
	return idx, nil
}

// WriteRecordId appends a 3-byte pointer to target and returns its
// body-relative offset.
func (w *Writer) WriteRecordId(target RecordId) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	refIdx, err := w.refIndexLocked(target.Segment)
	if err != nil {
		return 0, err
	}
	b, err := encodeRecordPointer(refIdx, target.Offset)
	if err != nil {
		return 0, err
	}
	return w.writeRawLocked(b[:]), nil
}

// WriteBytes appends n raw bytes verbatim, 4-byte aligned, and returns the
// offset they start at.
func (w *Writer) WriteBytes(b []byte) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeRawLocked(b)
}

// WriteInt appends a big-endian uint32.
func (w *Writer) WriteInt(v uint32) uint32 {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return w.WriteBytes(b[:])
}

// WriteLong appends a big-endian uint64.
func (w *Writer) WriteLong(v uint64) uint32 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return w.WriteBytes(b[:])
}

// writeInlineString writes one length-prefixed string fragment, s must fit
// within the medium tier (< mediumStringMax bytes).
func (w *Writer) writeInlineStringLocked(s string) uint32 {
	n := len(s)
	var hdr []byte
	if n <= smallStringMax {
		hdr = []byte{byte(n)}
	} else {
		encoded := n - (smallStringMax + 1)
		hdr = []byte{0x80 | byte(encoded>>8&0x3F), byte(encoded)}
	}
	w.align()
	off := uint32(len(w.body))
	w.body = append(w.body, hdr...)
	w.body = append(w.body, s...)
	return off
}

// WriteString interns and writes s, deduplicating identical strings already
// written into this segment (§4.11 "deduplicates identical ... fragments
// via reference equality on prior-written records"). Strings longer than
// the medium tier are split into a list of fragment records (§4.3); the
// returned StringRef.LongCount tells the reader how many fragments to walk.
func (w *Writer) WriteString(s string) (StringRef, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if off, ok := w.stringDedup[s]; ok {
		return StringRef{RecordId: RecordId{Segment: w.id, Offset: off}}, nil
	}

	if len(s) <= smallStringMax+1+(0x3FFF) {
		off := w.writeInlineStringLocked(s)
		w.stringDedup[s] = off
		return StringRef{RecordId: RecordId{Segment: w.id, Offset: off}}, nil
	}

	// Long string: chunk and write a list of self-referencing fragment
	// pointers (§4.3).
	const chunkSize = mediumStringMax
	var fragOffsets []uint32
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		fragOffsets = append(fragOffsets, w.writeInlineStringLocked(s[i:end]))
	}

	w.align()
	listOff := uint32(len(w.body))
	for _, fo := range fragOffsets {
		b, err := encodeRecordPointer(selfRef, fo)
		if err != nil {
			return StringRef{}, err
		}
		w.body = append(w.body, b[:]...)
	}

	ref := StringRef{
		RecordId:  RecordId{Segment: w.id, Offset: listOff},
		LongCount: len(fragOffsets),
	}
	w.stringDedup[s] = listOff
	return ref, nil
}

// AddRoot marks offset (already written into the current segment) as a
// root record — one entry the segment's roots table points to.
func (w *Writer) AddRoot(offset uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.roots = append(w.roots, offset)
}

// dedupKey returns the cached offset for a content key previously written
// via WriteDeduped, used by Template writers to skip re-serializing
// structurally identical shapes (§3 "Two nodes with the same shape share
// the same template record").
func (w *Writer) dedupKey(key string) (uint32, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, ok := w.templateDedup[key]
	return off, ok
}

// WriteDeduped writes b under key unless key was already written to this
// segment, in which case the prior offset is returned instead.
func (w *Writer) WriteDeduped(key string, b []byte) uint32 {
	if off, ok := w.dedupKey(key); ok {
		return off
	}
	w.mu.Lock()
	off := w.writeRawLocked(b)
	w.templateDedup[key] = off
	w.mu.Unlock()
	return off
}

// Flush seals the current in-progress segment, publishes it to the store,
// and returns it. The writer is reset and ready to accumulate a fresh
// segment immediately after.
func (w *Writer) Flush() (*Segment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() (*Segment, error) {
	rootsCount := len(w.roots)
	refsCount := len(w.refs)
	if refsCount > MaxExternalRefs {
		return nil, fmt.Errorf("segment: writer: %d external refs exceeds maximum %d", refsCount, MaxExternalRefs)
	}
	if rootsCount > 0xFFFF {
		return nil, fmt.Errorf("segment: writer: %d roots exceeds uint16 range", rootsCount)
	}

	headerSize := headerFixedSize + rootsCount*3 + refsCount*16
	total := headerSize + len(w.body)
	if total > MaxSize {
		return nil, fmt.Errorf("segment: writer: sealed size %d exceeds MaxSize %d", total, MaxSize)
	}

	data := make([]byte, 0, total)
	data = append(data, byte(refsCount))
	var rc [2]byte
	binary.BigEndian.PutUint16(rc[:], uint16(rootsCount))
	data = append(data, rc[:]...)

	for _, off := range w.roots {
		b, err := encodeRecordPointer(selfRef, off)
		if err != nil {
			return nil, err
		}
		data = append(data, b[:]...)
	}
	for _, ref := range w.refs {
		var b [16]byte
		binary.BigEndian.PutUint64(b[0:8], ref.MSB)
		binary.BigEndian.PutUint64(b[8:16], ref.LSB)
		data = append(data, b[:]...)
	}
	data = append(data, w.body...)

	id := w.id
	seg, err := ParseSegment(id, data)
	if err != nil {
		return nil, err
	}
	if err := w.store.WriteSegment(id, data); err != nil {
		return nil, err
	}

	w.resetLocked()
	return seg, nil
}
