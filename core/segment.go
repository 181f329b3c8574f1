package core

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// segment is one `G_kv_S.dat` file, owned by the writer. Readers never hold
// a *segment; they address records purely by (generation, segment index,
// offset, length) through indexEntry and go through db.readerFor, so a
// segment's lifetime is entirely in the writer's hands.
type segment struct {
	gen  int64
	id   int
	file *os.File
	size int64 // bytes written so far; equals the file's durable length
}

var segmentFilePattern = regexp.MustCompile(`^(\d+)_kv_(\d+)\.dat$`)

func segmentFileName(gen int64, id int) string {
	return fmt.Sprintf("%d_kv_%d.dat", gen, id)
}

func getSegmentPath(dir string, gen int64, id int) string {
	return filepath.Join(dir, segmentFileName(gen, id))
}

// newSegment durably creates a fresh, empty segment file.
func newSegment(dir string, gen int64, id int) (*segment, error) {
	path := getSegmentPath(dir, gen, id)
	f, err := createSegmentFileDurable(path)
	if err != nil {
		return nil, fmt.Errorf("new segment %d_kv_%d: %w", gen, id, err)
	}
	return &segment{gen: gen, id: id, file: f, size: 0}, nil
}

// foundSegment is one `G_kv_S.dat` file discovered on disk, before it has
// been opened for replay.
type foundSegment struct {
	gen  int64
	id   int
	name string
}

// scanDir lists every file in dir matching the segment filename pattern,
// sorted by (generation, segment index) ascending — the replay and
// active-segment order the on-disk layout is defined by (§6).
func scanDir(dir string) ([]foundSegment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var found []foundSegment
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		m := segmentFilePattern.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}
		gen, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		id, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		found = append(found, foundSegment{gen: gen, id: id, name: ent.Name()})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].gen != found[j].gen {
			return found[i].gen < found[j].gen
		}
		return found[i].id < found[j].id
	})

	return found, nil
}
