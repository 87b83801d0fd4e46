package storage

import "errors"

var (
	// ErrNotInitialized is returned when a statement touches a bucket that
	// Initialize has not created yet.
	ErrNotInitialized = errors.New("store not initialized")
	// ErrSchemaVersion is returned when the file was written by a newer
	// schema revision than this binary understands.
	ErrSchemaVersion = errors.New("unsupported schema version")
)

// StorageError reports a failure of the underlying storage engine: the file
// could not be opened, a transaction failed to commit, a bucket is missing or
// a row is corrupt. It is never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err, or any error it wraps, is a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
