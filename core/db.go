// Package core is kvd's log-structured storage engine: a segmented,
// append-only log with an in-memory index and size-tiered compaction. It is
// one of two conforming implementations of engine.Engine (see
// internal/boltengine for the other).
package core

import (
	"fmt"
	"log"
	"os"
	"sync"
	"unicode/utf8"

	"kvd/internal/engine"
	"kvd/internal/kverrors"
)

var _ engine.Engine = (*DB)(nil)

// defaultBase and defaultThreshold are the reference values from §3/GLOSSARY:
// generation G's per-segment cap is base * threshold^G.
const (
	defaultBase      int64 = 1024
	defaultThreshold int   = 4
)

// indexEntry is the in-memory coordinate of a key's most recent live
// record: {generation_and_segment_id, start_offset, length} per §3, plus a
// checksum used only to detect corruption between a write and a later read.
type indexEntry struct {
	gen      int64
	seg      int
	start    int64
	length   int64
	checksum uint64
}

type segKey struct {
	gen int64
	seg int
}

// DB is kvd's log-structured engine. The index (guarded by mu) is the only
// state a reader touches under normal operation; everything else (the live
// segment list, the active writer handle, the current generation and its
// size cap) is owned exclusively by the writer and serialized by writerMu,
// matching §5's "single-writer/multi-reader lock ... writer path
// additionally holds a mutex on the writer handle". The one exception is
// compaction: it also takes mu (write side) around the segment-list swap
// and old-file close, so a Get that is still mid-read under mu's read side
// can never observe a segment file closed out from under it (§4.4).
type DB struct {
	dir    string
	logger *log.Logger

	threshold int
	base      int64

	mu    sync.RWMutex // guards index; compaction also holds it to swap segments/close old files
	index map[string]indexEntry

	writerMu   sync.Mutex // serializes Set/Remove/compact; owns everything below
	generation int64
	segCap     int64
	segments   []*segment

	readers sync.Map // segKey -> *os.File, lazily opened, shared across readers
}

// Option configures a DB at Open.
type Option func(*DB)

// WithLogger sets the logger used for non-fatal warnings (torn-tail
// truncation, orphan segment cleanup). Defaults to log.Default().
func WithLogger(l *log.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// WithThreshold overrides THRESHOLD, the max live segments per generation
// before compaction triggers (reference value 4).
func WithThreshold(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.threshold = n
		}
	}
}

// WithBaseSize overrides BASE, generation 0's per-segment size cap in bytes
// (reference value 1 KiB).
func WithBaseSize(n int64) Option {
	return func(db *DB) {
		if n > 0 {
			db.base = n
		}
	}
}

// Open opens (creating if absent) a log-structured store rooted at dir.
func Open(dir string, opts ...Option) (db *DB, err error) {
	db = &DB{
		dir:       dir,
		logger:    log.Default(),
		threshold: defaultThreshold,
		base:      defaultBase,
	}
	for _, opt := range opts {
		opt(db)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", dir, err)
	}

	if err := engine.CheckTag(dir, engine.KindKV); err != nil {
		return nil, err
	}

	res, err := discover(dir, db.logger.Printf)
	if err != nil {
		return nil, err
	}

	db.generation = res.generation
	db.segments = res.segments
	db.index = res.index
	db.segCap = capForGeneration(db.base, db.threshold, db.generation)

	return db, nil
}

func capForGeneration(base int64, threshold int, gen int64) int64 {
	cap := base
	for i := int64(0); i < gen; i++ {
		cap *= int64(threshold)
	}
	return cap
}

// Close flushes and closes every open file the DB holds.
func (db *DB) Close() error {
	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	var firstErr error
	for _, seg := range db.segments {
		if err := seg.file.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := seg.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	db.readers.Range(func(_, v any) bool {
		_ = v.(*os.File).Close()
		return true
	})
	return firstErr
}

// Set stores value under key, replacing any existing value. It satisfies
// engine.Engine.
func (db *DB) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !utf8.ValidString(value) {
		return kverrors.New(kverrors.CodeInvalidInput, "value must be a UTF-8 string")
	}
	if value == tombstoneValue {
		return kverrors.New(kverrors.CodeInvalidInput,
			fmt.Sprintf("value %q is reserved for tombstones", tombstoneValue))
	}

	db.writerMu.Lock()
	defer db.writerMu.Unlock()
	return db.appendLocked(key, value)
}

// Remove deletes key, appending a tombstone record via the same write path
// as Set (§4.3). It satisfies engine.Engine.
func (db *DB) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	db.mu.RLock()
	_, ok := db.index[key]
	db.mu.RUnlock()
	if !ok {
		return engine.ErrKeyNotFound
	}

	return db.appendLocked(key, tombstoneValue)
}

// appendLocked performs the writer path of §4.3: rotate if the active
// segment is full, append the record, fsync, update the index, then
// compact if the live segment count has grown past threshold. Callers must
// hold writerMu.
func (db *DB) appendLocked(key, value string) error {
	active := db.segments[len(db.segments)-1]

	if active.size >= db.segCap {
		next, err := newSegment(db.dir, db.generation, active.id+1)
		if err != nil {
			return kverrors.Wrap(err, kverrors.CodeIO, "rotate segment")
		}
		db.segments = append(db.segments, next)
		active = next
	}

	n, checksum, err := writeRecord(active.file, key, value)
	if err != nil {
		return kverrors.Wrap(err, kverrors.CodeIO, "append record")
	}
	if err := active.file.Sync(); err != nil {
		return kverrors.Wrap(err, kverrors.CodeIO, "fsync segment")
	}

	entry := indexEntry{
		gen: db.generation, seg: active.id,
		start: active.size + lenPrefixSize, length: n - lenPrefixSize, checksum: checksum,
	}
	active.size += n

	db.mu.Lock()
	if value == tombstoneValue {
		delete(db.index, key)
	} else {
		db.index[key] = entry
	}
	db.mu.Unlock()

	if len(db.segments) > db.threshold {
		if err := db.compactLocked(); err != nil {
			return kverrors.Wrap(err, kverrors.CodeIO, "compact")
		}
	}

	return nil
}

// Get looks up key. The whole lookup-then-read runs under a single read
// lock, matching §4.4's "under a read lock, look up K ... seek ... read
// ... decode ... return" verbatim: releasing the lock between the index
// lookup and the segment read would let a concurrent compaction close the
// very file this call is about to read from (see the DB.mu doc comment).
// It satisfies engine.Engine.
func (db *DB) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	entry, ok := db.index[key]
	if !ok {
		return "", false, nil
	}

	_, value, checksum, err := readRecordAtEntry(db, entry)
	if err != nil {
		return "", false, kverrors.Wrap(err, kverrors.CodeIO, "read record")
	}
	if checksum != entry.checksum {
		return "", false, kverrors.New(kverrors.CodeCodec, fmt.Sprintf("checksum mismatch for key %q", key))
	}

	if value == tombstoneValue {
		// Defensive only: appendLocked never indexes a tombstone record, and
		// the read lock is held from lookup through read, so an entry read
		// here does not decode to the sentinel in normal operation (§4.4).
		return "", false, nil
	}
	return value, true, nil
}

// readRecordAtEntry reads the record an index entry points at, opening (or
// reusing) a shared reader handle for its segment.
func readRecordAtEntry(db *DB, entry indexEntry) (key, value string, checksum uint64, err error) {
	f, err := db.readerFor(entry.gen, entry.seg)
	if err != nil {
		return "", "", 0, err
	}
	return readRecordAt(f, entry.start, entry.length)
}

// readerFor returns a shared, lazily opened *os.File for (gen, seg).
// os.File.ReadAt is safe for concurrent positioned reads, so a single
// shared handle per segment serves every reader without the seek
// contention a shared cursor would create (§5).
func (db *DB) readerFor(gen int64, seg int) (*os.File, error) {
	key := segKey{gen, seg}
	if v, ok := db.readers.Load(key); ok {
		return v.(*os.File), nil
	}

	f, err := os.Open(getSegmentPath(db.dir, gen, seg))
	if err != nil {
		return nil, err
	}

	if actual, loaded := db.readers.LoadOrStore(key, f); loaded {
		f.Close()
		return actual.(*os.File), nil
	}
	return f, nil
}

// DiskSize returns the sum of all live segment file sizes.
func (db *DB) DiskSize() (int64, error) {
	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	var total int64
	for _, seg := range db.segments {
		info, err := seg.file.Stat()
		if err != nil {
			return 0, fmt.Errorf("stat segment %d_kv_%d: %w", seg.gen, seg.id, err)
		}
		total += info.Size()
	}
	return total, nil
}

func validateKey(key string) error {
	if key == "" || !utf8.ValidString(key) {
		return kverrors.New(kverrors.CodeInvalidInput, "key must be a non-empty UTF-8 string")
	}
	return nil
}
