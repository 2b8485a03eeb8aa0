package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"chatsync/pkg/logger"
)

var db *pebble.DB

// ErrClosed is returned when the store has not been opened.
var ErrClosed = errors.New("store not opened; call store.Open first")

// Open opens (or creates) a Pebble database at the given path and keeps
// a package handle for the rest of the engine.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool { return db != nil }

// IsNotFound reports whether err is the storage-level missing-key error.
func IsNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }

// Get returns the value for key. The returned slice is a copy.
func Get(key string) ([]byte, error) {
	if db == nil {
		return nil, ErrClosed
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		if err := closer.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Set writes key=value. sync forces an fsync before returning; every
// write that must be durable-before-ack passes true.
func Set(key string, value []byte, sync bool) error {
	if db == nil {
		return ErrClosed
	}
	opt := pebble.NoSync
	if sync {
		opt = pebble.Sync
	}
	if err := db.Set([]byte(key), value, opt); err != nil {
		logger.Error("store_set_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Delete removes key.
func Delete(key string, sync bool) error {
	if db == nil {
		return ErrClosed
	}
	opt := pebble.NoSync
	if sync {
		opt = pebble.Sync
	}
	return db.Delete([]byte(key), opt)
}

// NewBatch returns a write batch; apply it with ApplyBatch.
func NewBatch() *pebble.Batch { return new(pebble.Batch) }

// ApplyBatch applies a batch atomically. sync=true fsyncs before return,
// which is what makes a commit durable-before-ack.
func ApplyBatch(b *pebble.Batch, sync bool) error {
	if db == nil {
		return ErrClosed
	}
	opt := pebble.NoSync
	if sync {
		opt = pebble.Sync
	}
	if err := db.Apply(b, opt); err != nil {
		logger.Error("store_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

// NewIter returns a bounded iterator. A single iterator observes one
// consistent view of the DB, which is what gives Page its monotonic-read
// snapshot. Caller must Close it.
func NewIter(lower, upper []byte) (*pebble.Iterator, error) {
	if db == nil {
		return nil, ErrClosed
	}
	return db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
}

// PrefixIter returns an iterator over all keys with the given prefix.
func PrefixIter(prefix string) (*pebble.Iterator, error) {
	p := []byte(prefix)
	return NewIter(p, PrefixUpperBound(p))
}

// ListPrefix returns all values under prefix in key order, up to max
// (max <= 0 means no cap).
func ListPrefix(prefix string, max int) ([][]byte, error) {
	iter, err := PrefixIter(prefix)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, append([]byte(nil), iter.Value()...))
		if max > 0 && len(out) >= max {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", prefix, err)
	}
	return out, nil
}
