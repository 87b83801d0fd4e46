package credentials

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionvault/internal/util"
	"github.com/jmcleod/sessionvault/storage"
)

const saltLen = 16

// record is the value stored under a username in storage.UserBucket.
type record struct {
	Hash []byte              `json:"hash"`
	Salt []byte              `json:"salt"`
	KDF  util.Argon2idParams `json:"kdf"`
}

// PersistentStore keeps credentials in the storage gateway.
//
// Key derivation never runs while the gateway lock is held: AddUser derives
// first and then stores, VerifyUser loads first and then derives.
type PersistentStore struct {
	db     *storage.DB
	params util.Argon2idParams
	logger *slog.Logger
	// dummy is verified against when the username is unknown so that both
	// rejection paths cost one derivation and one comparison.
	dummy record
}

var _ Store = (*PersistentStore)(nil)

// Option configures a PersistentStore.
type Option func(*PersistentStore)

// WithParams sets the argon2id parameters for newly stored hashes. The
// parameters are not checked against util.Argon2idParams.Validate, which lets
// tests trade strength for speed.
func WithParams(params util.Argon2idParams) Option {
	return func(s *PersistentStore) {
		s.params = params
	}
}

// WithLogger sets the logger used for rejections and rehashes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *PersistentStore) {
		s.logger = logger
	}
}

// NewPersistentStore returns a credential store over db, which must already
// be initialized. It performs one key derivation to prepare the record used
// for unknown usernames.
func NewPersistentStore(db *storage.DB, opts ...Option) (*PersistentStore, error) {
	s := &PersistentStore{
		db:     db,
		params: util.DefaultArgon2idParams(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	secret, err := util.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	s.dummy, err = s.derive(memguard.NewBufferFromBytes(secret))
	if err != nil {
		return nil, fmt.Errorf("preparing dummy credential: %w", err)
	}
	return s, nil
}

func (s *PersistentStore) AddUser(username, password string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if password == "" {
		return ErrEmptyPassword
	}
	rec, err := s.derive(passwordBuffer(password))
	if err != nil {
		return err
	}
	return s.put("user.add", username, rec)
}

func (s *PersistentStore) VerifyUser(username, password string) (Identity, error) {
	row, err := s.db.Execute("user.lookup", func(tx *bbolt.Tx) ([]byte, error) {
		users, err := storage.Bucket(tx, storage.UserBucket)
		if err != nil {
			return nil, err
		}
		return users.Get([]byte(username)), nil
	})
	if err != nil {
		return Identity{}, err
	}

	rec, found := s.dummy, false
	if row != nil {
		var stored record
		if err := json.Unmarshal(row, &stored); err != nil {
			return Identity{}, &storage.StorageError{Op: "user.decode", Err: err}
		}
		rec, found = stored, true
	}

	pw := passwordBuffer(password)
	defer pw.Destroy()
	match, err := util.CompareArgon2idKey(pw.Bytes(), rec.Salt, rec.KDF, rec.Hash)
	if err != nil {
		return Identity{}, fmt.Errorf("verifying credential: %w", err)
	}
	if !(found && match) {
		s.logger.Debug("credential rejected")
		return Identity{}, ErrInvalidCredential
	}

	if rec.KDF != s.params {
		s.rehash(username, pw)
	}
	return Identity{Username: username}, nil
}

// rehash rewrites a credential that was stored with outdated parameters.
// Failure is logged rather than returned: the login itself succeeded.
func (s *PersistentStore) rehash(username string, pw *memguard.LockedBuffer) {
	rec, err := s.derive(memguard.NewBufferFromBytes(util.CopyBytes(pw.Bytes())))
	if err == nil {
		err = s.put("user.rehash", username, rec)
	}
	if err != nil {
		s.logger.Warn("failed to upgrade credential hash", "username", username, "error", err)
		return
	}
	s.logger.Info("upgraded credential hash", "username", username)
}

// derive hashes the password held in pw with a fresh salt and destroys pw.
func (s *PersistentStore) derive(pw *memguard.LockedBuffer) (record, error) {
	defer pw.Destroy()
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return record{}, err
	}
	hash, err := util.DeriveArgon2idKey(pw.Bytes(), salt, s.params)
	if err != nil {
		return record{}, err
	}
	return record{Hash: hash, Salt: salt, KDF: s.params}, nil
}

func (s *PersistentStore) put(op, username string, rec record) error {
	raw, err := json.Marshal(rec)
	util.WipeBytes(rec.Hash)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	_, err = s.db.Execute(op, func(tx *bbolt.Tx) ([]byte, error) {
		users, err := storage.Bucket(tx, storage.UserBucket)
		if err != nil {
			return nil, err
		}
		return nil, users.Put([]byte(username), raw)
	})
	return err
}

// passwordBuffer moves the normalized password into guarded memory.
func passwordBuffer(password string) *memguard.LockedBuffer {
	return memguard.NewBufferFromBytes([]byte(util.Normalize(password)))
}
