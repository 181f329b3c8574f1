// Package boltengine is kvd's second conforming engine.Engine
// implementation: an embedded ordered key/value store backed by
// go.etcd.io/bbolt, the direct Go analogue of the original project's sled
// engine (§4.6, §11). A single top-level bucket holds all keys; each
// operation runs in its own transaction, matching the original's
// open/get/set(+flush)/remove(+flush) shape one-for-one.
package boltengine

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"kvd/internal/engine"
	"kvd/internal/kverrors"
)

var bucketName = []byte("kvd")

// Engine wraps a *bolt.DB opened on a single file inside a directory,
// satisfying engine.Engine.
type Engine struct {
	db *bolt.DB
}

const dataFile = "kvd.bolt"

// Open opens (creating if absent) a bbolt-backed store rooted at dir,
// enforcing the same EngineMismatch tag check the log-structured engine
// uses so a directory can't be silently reinterpreted under the wrong
// --engine flag.
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kverrors.Wrap(err, kverrors.CodeIO, "mkdir")
	}

	if err := engine.CheckTag(dir, engine.KindBolt); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, dataFile), 0o644, nil)
	if err != nil {
		return nil, kverrors.Wrap(err, kverrors.CodeIO, "open bolt store")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, kverrors.Wrap(err, kverrors.CodeIO, "create bucket")
	}

	return &Engine{db: db}, nil
}

// Set inserts value under key in a single read-write transaction. bbolt
// fsyncs the backing file on every successful Update commit, giving Set the
// same durable-before-acknowledgement contract §4.3 requires of the
// log-structured engine's Set.
func (e *Engine) Set(key, value string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return kverrors.Wrap(err, kverrors.CodeIO, "bolt put")
	}
	return nil
}

// Get looks up key in a single read-only transaction.
func (e *Engine) Get(key string) (string, bool, error) {
	var value []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...) // v is only valid inside the transaction
		}
		return nil
	})
	if err != nil {
		return "", false, kverrors.Wrap(err, kverrors.CodeIO, "bolt get")
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

// Remove deletes key inside one read-write transaction, checking existence
// first so a miss fails with ErrKeyNotFound exactly like the log-structured
// engine's Remove.
func (e *Engine) Remove(key string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(key)) == nil {
			return engine.ErrKeyNotFound
		}
		return b.Delete([]byte(key))
	})
	if err == engine.ErrKeyNotFound {
		return err
	}
	if err != nil {
		return kverrors.Wrap(err, kverrors.CodeIO, "bolt delete")
	}
	return nil
}

// Close releases the underlying bbolt file handle.
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close bolt store: %w", err)
	}
	return nil
}

var _ engine.Engine = (*Engine)(nil)
