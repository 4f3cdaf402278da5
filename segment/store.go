package segment

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/holiman/billy"

	"github.com/contentgraph/corestore/internal/engerr"
)

// Store is the persistence contract segments are written to and read from
// (§3, §6). Implementations are content-addressed: WriteSegment must be
// idempotent for the same Id, and ReadSegment must return the exact bytes
// previously written for that Id.
type Store interface {
	WriteSegment(id Id, data []byte) error
	ReadSegment(id Id) ([]byte, error)
	HasSegment(id Id) bool
	DeleteSegment(id Id) error
	// ForEach visits every segment currently in the store, used by the GC
	// sweep phase (§4.12) to enumerate reclamation candidates.
	ForEach(fn func(id Id, size int) error) error
}

// MemoryStore is an in-memory Store, used by tests and by embedded
// short-lived repositories that never need to survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Id][]byte
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Id][]byte)}
}

func (m *MemoryStore) WriteSegment(id Id, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[id] = cp
	return nil
}

func (m *MemoryStore) ReadSegment(id Id) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[id]
	if !ok {
		return nil, engerr.Wrap(engerr.SegmentNotFound, fmt.Sprintf("segment: %s", id), nil)
	}
	return data, nil
}

func (m *MemoryStore) HasSegment(id Id) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[id]
	return ok
}

func (m *MemoryStore) DeleteSegment(id Id) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MemoryStore) ForEach(fn func(id Id, size int) error) error {
	m.mu.RLock()
	type entry struct {
		id   Id
		size int
	}
	entries := make([]entry, 0, len(m.data))
	for id, data := range m.data {
		entries = append(entries, entry{id, len(data)})
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e.id, e.size); err != nil {
			return err
		}
	}
	return nil
}

// fileStoreShelfSizes buckets billy shelves by segment size so that bulk
// segments (large binary blobs) don't force data segments (small structured
// records) into oversized fixed-size slots, and vice versa.
var fileStoreShelfSizes = []uint32{
	1 << 10,
	4 << 10,
	16 << 10,
	64 << 10,
	MaxSize,
}

// FileStore is a disk-backed, content-addressed Store built on billy's
// shelf-of-fixed-size-slots database (github.com/holiman/billy), the same
// model the teacher uses for its freezer-adjacent blob storage. Segment ids
// are the billy key; FileStore keeps its own id<->billy-slot index since
// billy itself is agnostic to the 16-byte segment id space, durably logged
// to manifest so a reopened FileStore doesn't start with an empty index
// over a non-empty billy database.
type FileStore struct {
	mu       sync.RWMutex
	db       billy.Database
	lock     *flock.Flock
	manifest *os.File
	index    map[Id]uint64 // segment id -> billy slot number
	sizes    map[Id]int
}

// NewFileStore opens (creating if necessary) a billy database rooted at
// dir for segment storage. billy has no notion of exclusive ownership of
// its directory, so FileStore takes its own advisory lock alongside it;
// a second process pointed at the same dir fails fast here instead of
// corrupting the slot index.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("segment: filestore: create %s: %w", dir, err)
	}
	lock := flock.New(dir + "/LOCK")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("segment: filestore: lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("segment: filestore: %s is already locked by another process", dir)
	}

	db, err := billy.Open(billy.Options{Path: dir}, newSlotSizer(), nil)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("segment: filestore: open %s: %w", dir, err)
	}

	index, sizes, manifest, err := openManifest(dir)
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("segment: filestore: %w", err)
	}

	return &FileStore{
		db:       db,
		lock:     lock,
		manifest: manifest,
		index:    index,
		sizes:    sizes,
	}, nil
}

// openManifest replays <dir>/index.log, FileStore's own append-only record
// of which segment id occupies which billy slot, and returns the
// reconstructed index/sizes maps plus the file handle left open for
// further appends. billy's Put hands back a bare slot number with no
// memory of the id it was stored under, so this mapping has nowhere else
// to live across a restart; each WriteSegment/DeleteSegment appends one
// line here after the billy Put/Delete and before updating the in-memory
// maps, replayed in order on open exactly like a write-ahead log.
func openManifest(dir string) (map[Id]uint64, map[Id]int, *os.File, error) {
	path := dir + "/index.log"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open manifest %s: %w", path, err)
	}

	index := make(map[Id]uint64)
	sizes := make(map[Id]int)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "W":
			if len(fields) != 5 {
				continue
			}
			id, err := parseManifestId(fields[1], fields[2])
			if err != nil {
				continue
			}
			slot, err := strconv.ParseUint(fields[3], 10, 64)
			if err != nil {
				continue
			}
			size, err := strconv.Atoi(fields[4])
			if err != nil {
				continue
			}
			index[id] = slot
			sizes[id] = size
		case "D":
			if len(fields) != 3 {
				continue
			}
			id, err := parseManifestId(fields[1], fields[2])
			if err != nil {
				continue
			}
			delete(index, id)
			delete(sizes, id)
		}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return index, sizes, f, nil
}

func parseManifestId(msbHex, lsbHex string) (Id, error) {
	msb, err := strconv.ParseUint(msbHex, 16, 64)
	if err != nil {
		return Id{}, err
	}
	lsb, err := strconv.ParseUint(lsbHex, 16, 64)
	if err != nil {
		return Id{}, err
	}
	return Id{MSB: msb, LSB: lsb}, nil
}

func appendManifestLine(f *os.File, line string) error {
	if _, err := f.WriteString(line); err != nil {
		return err
	}
	return f.Sync()
}

// newSlotSizer returns billy's required shelf-size-to-slot-size function,
// bucketed per fileStoreShelfSizes.
func newSlotSizer() func(uint32) uint32 {
	return func(size uint32) uint32 {
		for _, s := range fileStoreShelfSizes {
			if size <= s {
				return s
			}
		}
		return MaxSize
	}
}

func (f *FileStore) WriteSegment(id Id, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if slot, ok := f.index[id]; ok {
		// Content-addressed: identical id implies identical bytes already
		// on disk, nothing to do.
		_ = slot
		return nil
	}
	slot, err := f.db.Put(data)
	if err != nil {
		return fmt.Errorf("segment: filestore: put %s: %w", id, err)
	}
	line := fmt.Sprintf("W %x %x %d %d\n", id.MSB, id.LSB, slot, len(data))
	if err := appendManifestLine(f.manifest, line); err != nil {
		return fmt.Errorf("segment: filestore: manifest append %s: %w", id, err)
	}
	f.index[id] = slot
	f.sizes[id] = len(data)
	return nil
}

func (f *FileStore) ReadSegment(id Id) ([]byte, error) {
	f.mu.RLock()
	slot, ok := f.index[id]
	f.mu.RUnlock()
	if !ok {
		return nil, engerr.Wrap(engerr.SegmentNotFound, fmt.Sprintf("segment: %s", id), nil)
	}
	data, err := f.db.Get(slot)
	if err != nil {
		return nil, fmt.Errorf("segment: filestore: get %s: %w", id, err)
	}
	return data, nil
}

func (f *FileStore) HasSegment(id Id) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.index[id]
	return ok
}

func (f *FileStore) DeleteSegment(id Id) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.index[id]
	if !ok {
		return nil
	}
	if err := f.db.Delete(slot); err != nil {
		return fmt.Errorf("segment: filestore: delete %s: %w", id, err)
	}
	line := fmt.Sprintf("D %x %x\n", id.MSB, id.LSB)
	if err := appendManifestLine(f.manifest, line); err != nil {
		return fmt.Errorf("segment: filestore: manifest append %s: %w", id, err)
	}
	delete(f.index, id)
	delete(f.sizes, id)
	return nil
}

func (f *FileStore) ForEach(fn func(id Id, size int) error) error {
	f.mu.RLock()
	type entry struct {
		id   Id
		size int
	}
	entries := make([]entry, 0, len(f.index))
	for id, size := range f.sizes {
		entries = append(entries, entry{id, size})
	}
	f.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e.id, e.size); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying billy database's file handles and the
// directory lock.
func (f *FileStore) Close() error {
	err := f.db.Close()
	if f.manifest != nil {
		_ = f.manifest.Close()
	}
	if f.lock != nil {
		_ = f.lock.Unlock()
	}
	return err
}
