package core

import (
	"os"
	"testing"
)

// TestTornTailIsTruncatedOnOpen simulates a crash mid-append: a complete
// record followed by a partial length prefix. Open must recover by
// truncating to the last complete record (§4.1/§9), not fail.
func TestTornTailIsTruncatedOnOpen(t *testing.T) {
	db, path, _ := SetupTempDB(t)

	if err := db.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segPath := getSegmentPath(path, 0, 0)
	f, err := os.OpenFile(segPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	// A torn length prefix: fewer than 8 bytes.
	if _, err := f.Write([]byte{0, 0, 0}); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open after torn tail: %v", err)
	}
	defer reopened.Close()

	if val, ok, err := reopened.Get("k"); err != nil || !ok || val != "v" {
		t.Fatalf("Get(k) after torn-tail recovery = %q, %v, %v; want v, true, nil", val, ok, err)
	}

	info, err := os.Stat(segPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	seg := reopened.segments[len(reopened.segments)-1]
	if info.Size() != seg.size {
		t.Fatalf("file size %d was not truncated to valid size %d", info.Size(), seg.size)
	}
}

// TestMidFileCorruptionIsFatal is the flip side: a complete-looking record
// whose payload fails to decode must fail Open outright, per §4.1/§9's
// distinction between a torn tail and mid-file corruption.
func TestMidFileCorruptionIsFatal(t *testing.T) {
	db, path, _ := SetupTempDB(t)

	if err := db.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segPath := getSegmentPath(path, 0, 0)
	f, err := os.OpenFile(segPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	// A full 8-byte length prefix claiming 10 bytes of payload, followed by
	// 10 bytes that are not valid JSON: looks complete, decodes to garbage.
	if _, err := f.Write([]byte{0, 0, 0, 0, 0, 0, 0, 10}); err != nil {
		t.Fatalf("write length prefix: %v", err)
	}
	if _, err := f.Write([]byte("not-json!!")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatalf("expected Open to fail on mid-file corruption")
	}
}

// TestOrphanedGenerationIsRemovedOnOpen simulates a crashed compaction: an
// older generation's files are still present alongside a newer, durable
// generation. discover must treat the higher generation as current and
// clean up the orphan (§4.5 step 4/§9).
func TestOrphanedGenerationIsRemovedOnOpen(t *testing.T) {
	db, path, _ := SetupTempDB(t, WithThreshold(1), WithBaseSize(8))

	for i := 0; i < 10; i++ {
		if err := db.Set("k", "value-forcing-compaction"); err != nil {
			t.Fatalf("Set #%d: %v", i, err)
		}
	}
	if db.generation == 0 {
		t.Fatalf("expected at least one compaction with threshold 1 and a tiny base size")
	}
	gen := db.generation
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Plant an orphaned segment from an older, already-superseded generation.
	orphanPath := getSegmentPath(path, gen-1, 0)
	if err := os.WriteFile(orphanPath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("plant orphan: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	if _, err := os.Stat(orphanPath); !os.IsNotExist(err) {
		t.Fatalf("expected orphaned segment %q to be removed on open, stat err = %v", orphanPath, err)
	}
	if val, ok, err := reopened.Get("k"); err != nil || !ok || val != "value-forcing-compaction" {
		t.Fatalf("Get(k) after orphan cleanup = %q, %v, %v", val, ok, err)
	}
}
