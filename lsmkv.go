// Package lsmkv is an embeddable, single-process, single-directory
// key-value store backed by a log-structured merge tree.
//
// Writes land in an in-memory memtable and a write-ahead log; once the
// memtable accumulates enough distinct keys it is frozen and flushed to
// an immutable SSTable on disk. Reads check the memtable first, then
// SSTables newest-first, so the most recent write for a key always
// wins. Keys and values are arbitrary non-empty byte strings.
//
// Example usage:
//
//	db, err := lsmkv.Open("/path/to/data", nil, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Set([]byte("key"), []byte("value")); err != nil {
//		log.Printf("set failed: %v", err)
//	}
//
//	value, found, err := db.Get([]byte("key"))
//	if err != nil {
//		log.Printf("get failed: %v", err)
//	} else if found {
//		fmt.Printf("value: %s\n", value)
//	}
package lsmkv

import (
	"lsmkv/internal/engine"

	"github.com/sirupsen/logrus"
)

// Config is an alias for engine.Config, re-exported for caller convenience.
type Config = engine.Config

// DefaultConfig returns a Config populated with default values.
var DefaultConfig = engine.DefaultConfig

// DB is a thread-safe handle to an open store.
type DB struct {
	engine *engine.Engine
}

// Open opens or creates a store at dir. The directory is created if it
// doesn't exist. If cfg is nil, DefaultConfig is used. If log is nil, a
// standard logrus logger is used for the store's internal warnings.
func Open(dir string, cfg *Config, log logrus.FieldLogger) (*DB, error) {
	e, err := engine.Open(dir, cfg, log)
	if err != nil {
		return nil, err
	}
	return &DB{engine: e}, nil
}

// Set writes a key-value pair, overwriting any existing value for key.
func (db *DB) Set(key, value []byte) error {
	return db.engine.Set(key, value)
}

// Get retrieves the value for key. found is false if the key has never
// been set, or was removed.
func (db *DB) Get(key []byte) (value []byte, found bool, err error) {
	return db.engine.Get(key)
}

// Remove deletes key from the database.
func (db *DB) Remove(key []byte) error {
	return db.engine.Remove(key)
}

// Close releases all open file handles. It does not flush the memtable;
// any writes not yet flushed to an SSTable are recovered by replaying
// the WAL the next time Open is called on this directory. The DB must
// not be used after Close returns.
func (db *DB) Close() error {
	return db.engine.Close()
}
