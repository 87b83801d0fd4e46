// Package storage owns the single bbolt file that holds sessions and
// credentials. All access goes through DB.Execute, which serializes
// statements behind one mutex so that no two transactions overlap.
package storage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionvault/internal/util"
)

// Statement is one logical operation against the store. It runs inside a
// single read-write transaction; returning an error rolls the transaction
// back. The returned row may alias bbolt memory, Execute copies it before
// the transaction closes.
type Statement func(tx *bbolt.Tx) ([]byte, error)

// DB is the serialized-access gateway around a bbolt database.
type DB struct {
	mu     sync.Mutex
	db     *bbolt.DB
	path   string
	logger *slog.Logger
	closed bool
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	bolt   *bbolt.Options
	logger *slog.Logger
}

// WithBoltOptions passes options through to bbolt.Open.
func WithBoltOptions(opts *bbolt.Options) Option {
	return func(o *openOptions) {
		o.bolt = opts
	}
}

// WithLogger sets the logger used for schema bootstrap and migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// Open opens (creating if necessary) the bbolt file at path. The schema is
// not touched until Initialize is called.
func Open(path string, opts ...Option) (*DB, error) {
	o := openOptions{
		// Without a timeout a second process holding the file lock would
		// block Open forever.
		bolt:   &bbolt.Options{Timeout: time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	db, err := bbolt.Open(path, 0o600, o.bolt)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("opening bbolt db %s: %w", path, err)}
	}
	return &DB{db: db, path: path, logger: o.logger}, nil
}

// Path returns the file backing the store.
func (d *DB) Path() string {
	return d.path
}

// Close closes the underlying bbolt database. Closing twice is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.db.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	return nil
}

// Execute runs stmt under the gateway lock in one read-write transaction and
// returns a private copy of the row it produced, if any.
func (d *DB) Execute(op string, stmt Statement) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var row []byte
	err := d.db.Update(func(tx *bbolt.Tx) error {
		r, err := stmt(tx)
		if err != nil {
			return err
		}
		row = util.CopyBytes(r)
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	return row, nil
}

// Bucket returns the named bucket or ErrNotInitialized when it is missing.
func Bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket %q: %w", name, ErrNotInitialized)
	}
	return b, nil
}
