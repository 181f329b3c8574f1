// Package engine defines the get/set/remove contract shared by kvd's two
// conforming storage engines (the log-structured core package and the
// embedded-B+-tree boltengine package), plus the EngineMismatch guard both
// of them are opened through.
package engine

import (
	"errors"
	"os"
	"path/filepath"

	"kvd/internal/kverrors"
)

// ErrKeyNotFound is returned by Remove for a key absent from the store. Get
// never returns it: a miss is reported as a (value, false, nil) result.
var ErrKeyNotFound = kverrors.ErrKeyNotFound

// Engine is the contract exposed to every consumer: the server dispatcher,
// the CLI binaries, and tests. Two conforming implementations exist: the
// log-structured core.DB and the bbolt-backed boltengine.Engine.
type Engine interface {
	// Set stores value under key, replacing any existing value.
	Set(key, value string) error
	// Get looks up key. The bool is false on a miss; err is non-nil only on
	// an actual I/O or decode failure, or (in core.DB) an invalid key.
	Get(key string) (value string, found bool, err error)
	// Remove deletes key. It returns ErrKeyNotFound if key is absent.
	Remove(key string) error
	// Close releases the engine's resources.
	Close() error
}

// Kind names the two conforming engines, matching the server's --engine flag.
type Kind string

const (
	KindKV   Kind = "kvd"
	KindBolt Kind = "bolt"
)

const tagFile = "ENGINE"

// CheckTag enforces EngineMismatch: it reads dir's ENGINE tag file (writing
// one stamped with want if dir is fresh) and fails if a prior open of this
// directory used a different engine. The original project left this
// unenforced; kvd enforces it because both engines now share one CLI and a
// directory opened with the wrong --engine would otherwise be silently
// reinterpreted.
func CheckTag(dir string, want Kind) error {
	path := filepath.Join(dir, tagFile)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return os.WriteFile(path, []byte(want), 0o644)
	}
	if err != nil {
		return kverrors.Wrap(err, kverrors.CodeIO, "read engine tag")
	}

	got := Kind(data)
	if got != want {
		return kverrors.New(kverrors.CodeEngineMismatch,
			"directory was created by engine \""+string(got)+"\", not \""+string(want)+"\"")
	}
	return nil
}
