package storage

import (
	"errors"
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"
)

// SchemaVersion is the revision written by Initialize.
const SchemaVersion = 2

var (
	VersionBucket         = []byte("version")
	SessionBucket         = []byte("session")
	SessionActivityBucket = []byte("session_activity")
	UserBucket            = []byte("user")

	versionKey = []byte("schema")
)

// migrations[i] upgrades revision i to revision i+1.
var migrations = []func(tx *bbolt.Tx) (int, error){
	createSessionBucket,
	addUsersAndActivityIndex,
}

// Initialize creates the schema on an empty file, or upgrades an older one,
// in a single transaction. Calling it on an up-to-date store is a no-op.
func (d *DB) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var current int
	err := d.db.View(func(tx *bbolt.Tx) error {
		var err error
		current, err = readVersion(tx)
		return err
	})
	if err != nil {
		return &StorageError{Op: "initialize", Err: err}
	}
	if current > SchemaVersion {
		return &StorageError{Op: "initialize", Err: fmt.Errorf("%w: file has %d, supported %d", ErrSchemaVersion, current, SchemaVersion)}
	}
	if current == SchemaVersion {
		return nil
	}

	err = d.db.Update(func(tx *bbolt.Tx) error {
		for rev := current; rev < SchemaVersion; rev++ {
			n, err := migrations[rev](tx)
			if err != nil {
				return fmt.Errorf("migrating schema %d -> %d: %w", rev, rev+1, err)
			}
			d.logger.Info("applied schema migration",
				"path", d.path,
				"from", rev,
				"to", rev+1,
				"rows_touched", n)
		}
		vb, err := tx.CreateBucketIfNotExists(VersionBucket)
		if err != nil {
			return err
		}
		return vb.Put(versionKey, []byte(strconv.Itoa(SchemaVersion)))
	})
	if err != nil {
		return &StorageError{Op: "initialize", Err: err}
	}
	return nil
}

// Version reports the schema revision recorded in the file, 0 for a file
// that was never initialized.
func (d *DB) Version() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var v int
	err := d.db.View(func(tx *bbolt.Tx) error {
		var err error
		v, err = readVersion(tx)
		return err
	})
	if err != nil {
		return 0, &StorageError{Op: "version", Err: err}
	}
	return v, nil
}

func readVersion(tx *bbolt.Tx) (int, error) {
	vb := tx.Bucket(VersionBucket)
	if vb == nil {
		return 0, nil
	}
	raw := vb.Get(versionKey)
	if raw == nil {
		return 0, errors.New("version bucket without schema marker")
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing schema marker %q: %w", raw, err)
	}
	return v, nil
}

func createSessionBucket(tx *bbolt.Tx) (int, error) {
	_, err := tx.CreateBucketIfNotExists(SessionBucket)
	return 0, err
}

// addUsersAndActivityIndex adds the credential bucket and builds the
// last-activity index over the sessions already present. Rows that cannot be
// decoded are dropped; they could never be served anyway.
func addUsersAndActivityIndex(tx *bbolt.Tx) (int, error) {
	if _, err := tx.CreateBucketIfNotExists(UserBucket); err != nil {
		return 0, err
	}
	idx, err := tx.CreateBucketIfNotExists(SessionActivityBucket)
	if err != nil {
		return 0, err
	}
	sessions, err := Bucket(tx, SessionBucket)
	if err != nil {
		return 0, err
	}

	var corrupt [][]byte
	n := 0
	err = sessions.ForEach(func(k, v []byte) error {
		row, err := DecodeSessionRow(v)
		if err != nil {
			corrupt = append(corrupt, append([]byte(nil), k...))
			return nil
		}
		n++
		return idx.Put(ActivityKey(row.Modified, string(k)), []byte{})
	})
	if err != nil {
		return n, err
	}
	for _, k := range corrupt {
		if err := sessions.Delete(k); err != nil {
			return n, err
		}
	}
	return n, nil
}
