package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionvault/internal/util"
	"github.com/jmcleod/sessionvault/storage"
)

// PersistentStore keeps sessions in the storage gateway. Every method is a
// single statement, so each is atomic with respect to the store.
//
// Expiration is lazy: reads sweep the activity index for sessions idle longer
// than maxDuration. The index is ordered by last activity, so a sweep only
// visits rows that are actually expired.
//
// Tokens carry 256 bits of entropy and are not checked for collisions; if two
// NewSession calls ever produced the same token the later write would win.
type PersistentStore struct {
	db          *storage.DB
	maxDuration time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

var _ Store = (*PersistentStore)(nil)

// Option configures a PersistentStore.
type Option func(*PersistentStore)

// WithClock overrides the time source used for activity stamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *PersistentStore) {
		s.now = now
	}
}

// WithLogger sets the logger used to report sweeps.
func WithLogger(logger *slog.Logger) Option {
	return func(s *PersistentStore) {
		s.logger = logger
	}
}

// NewPersistentStore returns a store that expires sessions after maxDuration
// of inactivity. db must already be initialized.
func NewPersistentStore(db *storage.DB, maxDuration time.Duration, opts ...Option) (*PersistentStore, error) {
	if maxDuration <= 0 {
		return nil, fmt.Errorf("session max duration must be positive, got %s", maxDuration)
	}
	s := &PersistentStore{
		db:          db,
		maxDuration: maxDuration,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxDuration returns the inactivity window after which sessions expire.
func (s *PersistentStore) MaxDuration() time.Duration {
	return s.maxDuration
}

func (s *PersistentStore) NewSession(payload Payload) (string, error) {
	token, err := util.RandomToken()
	if err != nil {
		return "", err
	}
	if err := s.Set(token, payload); err != nil {
		return "", err
	}
	return token, nil
}

func (s *PersistentStore) Set(token string, payload Payload) error {
	if token == "" {
		return ErrEmptyToken
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding session payload: %w", err)
	}
	now := s.now()
	_, err = s.db.Execute("session.set", func(tx *bbolt.Tx) ([]byte, error) {
		sessions, index, err := sessionBuckets(tx)
		if err != nil {
			return nil, err
		}
		if raw := sessions.Get([]byte(token)); raw != nil {
			if old, err := storage.DecodeSessionRow(raw); err == nil {
				if err := index.Delete(storage.ActivityKey(old.Modified, token)); err != nil {
					return nil, err
				}
			}
		}
		return nil, putRow(sessions, index, token, storage.SessionRow{Modified: now, Data: data})
	})
	return err
}

func (s *PersistentStore) Get(token string) (Payload, bool, error) {
	data, _, err := s.lookup("session.get", token, false)
	if err != nil {
		return Payload{}, false, err
	}
	if data == nil {
		return Payload{}, false, nil
	}
	p, err := decodePayload(data)
	if err != nil {
		return Payload{}, false, err
	}
	return p, true, nil
}

func (s *PersistentStore) VerifyToken(token string) (Payload, error) {
	data, expired, err := s.lookup("session.verify", token, true)
	if err != nil {
		return Payload{}, err
	}
	if expired {
		return Payload{}, ErrSessionExpired
	}
	if data == nil {
		return Payload{}, ErrSessionNotFound
	}
	return decodePayload(data)
}

func (s *PersistentStore) Delete(token string) error {
	_, err := s.db.Execute("session.delete", func(tx *bbolt.Tx) ([]byte, error) {
		sessions, index, err := sessionBuckets(tx)
		if err != nil {
			return nil, err
		}
		raw := sessions.Get([]byte(token))
		if raw == nil {
			return nil, nil
		}
		if row, err := storage.DecodeSessionRow(raw); err == nil {
			if err := index.Delete(storage.ActivityKey(row.Modified, token)); err != nil {
				return nil, err
			}
		}
		return nil, sessions.Delete([]byte(token))
	})
	return err
}

func (s *PersistentStore) Sweep() (int, error) {
	cutoff := s.now().Add(-s.maxDuration)
	var n int
	_, err := s.db.Execute("session.sweep", func(tx *bbolt.Tx) ([]byte, error) {
		sessions, index, err := sessionBuckets(tx)
		if err != nil {
			return nil, err
		}
		n, err = sweep(sessions, index, cutoff)
		return nil, err
	})
	if err != nil {
		return 0, err
	}
	s.logSweep(n)
	return n, nil
}

// lookup is the single statement behind Get and VerifyToken. It reports
// whether token itself was among the rows swept.
func (s *PersistentStore) lookup(op, token string, touch bool) ([]byte, bool, error) {
	now := s.now()
	cutoff := now.Add(-s.maxDuration)
	var (
		expired bool
		swept   int
	)
	data, err := s.db.Execute(op, func(tx *bbolt.Tx) ([]byte, error) {
		sessions, index, err := sessionBuckets(tx)
		if err != nil {
			return nil, err
		}

		var row *storage.SessionRow
		if raw := sessions.Get([]byte(token)); raw != nil {
			r, err := storage.DecodeSessionRow(raw)
			if err != nil {
				return nil, fmt.Errorf("session %s: %w", redact(token), err)
			}
			row = &r
			expired = r.Modified.Before(cutoff)
		}

		swept, err = sweep(sessions, index, cutoff)
		if err != nil {
			return nil, err
		}
		if row == nil || expired {
			return nil, nil
		}

		if touch {
			if err := index.Delete(storage.ActivityKey(row.Modified, token)); err != nil {
				return nil, err
			}
			row.Modified = now
			if err := putRow(sessions, index, token, *row); err != nil {
				return nil, err
			}
		}
		return row.Data, nil
	})
	if err != nil {
		return nil, false, err
	}
	s.logSweep(swept)
	return data, expired, nil
}

func (s *PersistentStore) logSweep(n int) {
	if n > 0 {
		s.logger.Debug("swept expired sessions", "count", n, "max_duration", s.maxDuration)
	}
}

func sessionBuckets(tx *bbolt.Tx) (*bbolt.Bucket, *bbolt.Bucket, error) {
	sessions, err := storage.Bucket(tx, storage.SessionBucket)
	if err != nil {
		return nil, nil, err
	}
	index, err := storage.Bucket(tx, storage.SessionActivityBucket)
	if err != nil {
		return nil, nil, err
	}
	return sessions, index, nil
}

func putRow(sessions, index *bbolt.Bucket, token string, row storage.SessionRow) error {
	raw, err := storage.EncodeSessionRow(row)
	if err != nil {
		return err
	}
	if err := sessions.Put([]byte(token), raw); err != nil {
		return err
	}
	return index.Put(storage.ActivityKey(row.Modified, token), []byte{})
}

// sweep deletes every session whose last activity is before cutoff and
// returns how many session rows it removed. The index is walked oldest first
// and the walk stops at the first live entry.
func sweep(sessions, index *bbolt.Bucket, cutoff time.Time) (int, error) {
	var stale [][]byte
	c := index.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		ts, _, err := storage.SplitActivityKey(k)
		if err != nil {
			return 0, err
		}
		if !ts.Before(cutoff) {
			break
		}
		stale = append(stale, append([]byte(nil), k...))
	}

	removed := 0
	for _, k := range stale {
		ts, token, _ := storage.SplitActivityKey(k)
		if err := index.Delete(k); err != nil {
			return 0, err
		}
		raw := sessions.Get([]byte(token))
		if raw == nil {
			continue
		}
		// Only remove the row if the index entry is the one describing it.
		if row, err := storage.DecodeSessionRow(raw); err == nil && !row.Modified.Equal(ts) {
			continue
		}
		if err := sessions.Delete([]byte(token)); err != nil {
			return 0, err
		}
		removed++
	}
	return removed, nil
}

func decodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decoding session payload: %w", err)
	}
	return p, nil
}

// redact keeps enough of a token to correlate log lines without exposing a
// usable credential.
func redact(token string) string {
	if len(token) <= 8 {
		return "…"
	}
	return token[:8] + "…"
}

// IsInvalid reports whether err means the token cannot be used, as opposed
// to a storage failure.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}
