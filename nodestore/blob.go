// Package nodestore implements the NodeStore facade (§6 NodeStore
// contract): Root/MutableTree transient mutation buffers, the move-record
// chain (§4.10), checkpointing, the DocumentEngine commit retry loop, and
// SegmentStore, the separate SegmentEngine commit path.
package nodestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Blob is an opaque, content-addressed binary reference returned by
// createBlob (§6 NodeStore contract).
type Blob struct {
	id     string
	length int64
}

// Id returns the blob's content address.
func (b Blob) Id() string { return b.id }

// Length returns the blob's byte length.
func (b Blob) Length() int64 { return b.length }

// BlobStore is the minimal persistence contract createBlob writes
// through; segment.FileStore (via a segment-engine-specific adapter) or a
// dedicated blob store can both satisfy it.
type BlobStore interface {
	Put(id string, data []byte) error
	Get(id string) (io.ReadCloser, error)
}

// CreateBlob hashes stream's contents and stores it under that content
// address, returning a Blob handle (§6: "createBlob(stream) -> Blob").
func CreateBlob(store BlobStore, stream io.Reader) (Blob, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(stream, h))
	if err != nil {
		return Blob{}, fmt.Errorf("nodestore: createBlob: read: %w", err)
	}
	id := hex.EncodeToString(h.Sum(nil))
	if err := store.Put(id, data); err != nil {
		return Blob{}, fmt.Errorf("nodestore: createBlob: store: %w", err)
	}
	return Blob{id: id, length: int64(len(data))}, nil
}
