package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"

	"kvd/internal/kverrors"
)

// openResult is everything Open needs to finish constructing a DB after
// replaying whatever is on disk.
type openResult struct {
	generation int64
	segments   []*segment
	index      map[string]indexEntry
}

// discover enumerates dir, picks the current generation, removes (logging
// each one) any files left over from an earlier generation that a crashed
// compaction never unlinked, and replays the current generation's segments
// into an index.
func discover(dir string, logger logFunc) (*openResult, error) {
	found, err := scanDir(dir)
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		seg, err := newSegment(dir, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("create initial segment: %w", err)
		}
		return &openResult{generation: 0, segments: []*segment{seg}, index: map[string]indexEntry{}}, nil
	}

	// Generation invariant #5: a compaction only unlinks the prior
	// generation's files after the new generation's single segment is
	// durable, so whatever generation is highest on disk is always safe to
	// treat as current; anything lower is a crash-orphaned leftover.
	currentGen := found[len(found)-1].gen

	actual := mapset.NewSet[string]()
	expected := mapset.NewSet[string]()
	var current []foundSegment
	for _, f := range found {
		actual.Add(f.name)
		if f.gen == currentGen {
			expected.Add(f.name)
			current = append(current, f)
		}
	}

	if orphans := actual.Difference(expected); orphans.Cardinality() != 0 {
		for _, name := range orphans.ToSlice() {
			logger("discover: removing orphaned segment %q from a crashed compaction", name)
			if err := removeSegmentFileDurable(filepath.Join(dir, name)); err != nil {
				logger("discover: remove orphan %q: %v", name, err)
			}
		}
	}

	index := map[string]indexEntry{}
	segments := make([]*segment, 0, len(current))

	for _, fs := range current {
		path := getSegmentPath(dir, fs.gen, fs.id)
		f, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open segment %d_kv_%d: %w", fs.gen, fs.id, err)
		}

		records, validSize, err := scanSegment(f)
		if err != nil {
			f.Close()
			return nil, kverrors.Wrap(err, kverrors.CodeCodec, fmt.Sprintf("replay %d_kv_%d", fs.gen, fs.id))
		}

		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat %d_kv_%d: %w", fs.gen, fs.id, err)
		}
		if info.Size() > validSize {
			logger("discover: truncating %d_kv_%d.dat from %d to %d bytes (torn tail record)",
				fs.gen, fs.id, info.Size(), validSize)
			if err := f.Truncate(validSize); err != nil {
				f.Close()
				return nil, fmt.Errorf("truncate %d_kv_%d: %w", fs.gen, fs.id, err)
			}
		}
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %d_kv_%d: %w", fs.gen, fs.id, err)
		}

		for _, rec := range records {
			if rec.value == tombstoneValue {
				delete(index, rec.key)
				continue
			}
			index[rec.key] = indexEntry{
				gen: fs.gen, seg: fs.id,
				start: rec.start, length: rec.length, checksum: rec.checksum,
			}
		}

		segments = append(segments, &segment{gen: fs.gen, id: fs.id, file: f, size: validSize})
	}

	return &openResult{generation: currentGen, segments: segments, index: index}, nil
}

// logFunc lets discover log without depending on *log.Logger's concrete
// type, so tests can pass a no-op.
type logFunc func(format string, args ...any)
