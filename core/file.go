package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// createSegmentFileDurable creates path, fsyncs it, then fsyncs its parent
// directory so the directory entry itself survives a crash. Adapted from
// the teacher's createFileDurable (which did the same thing for a manifest
// file); this store has no manifest — the directory listing of
// `G_kv_S.dat` files is the manifest, per §6 — so the only thing left that
// needs durable creation is a fresh segment file.
func createSegmentFileDurable(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync %q: %w", path, err)
	}

	if err := syncDir(filepath.Dir(path)); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

// syncDir fsyncs dir so that directory-entry changes (creates, renames,
// unlinks) inside it are durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %q: %w", dir, err)
	}
	defer d.Close() // nolint:errcheck

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %q: %w", dir, err)
	}
	return nil
}

// removeSegmentFileDurable unlinks path and fsyncs its parent directory so
// the removal survives a crash before the writer reuses the freed space.
func removeSegmentFileDurable(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return syncDir(filepath.Dir(path))
}
