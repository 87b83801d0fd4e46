package storage

import (
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitialize(t *testing.T) {
	db := newTestDB(t)

	v, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, db.Initialize())
	v, err = db.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	_, err = db.Execute("check", func(tx *bbolt.Tx) ([]byte, error) {
		for _, name := range [][]byte{VersionBucket, SessionBucket, SessionActivityBucket, UserBucket} {
			if _, err := Bucket(tx, name); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	require.NoError(t, err)

	t.Run("Idempotent", func(t *testing.T) {
		_, err := db.Execute("seed", func(tx *bbolt.Tx) ([]byte, error) {
			b, err := Bucket(tx, UserBucket)
			if err != nil {
				return nil, err
			}
			return nil, b.Put([]byte("alice"), []byte("{}"))
		})
		require.NoError(t, err)

		require.NoError(t, db.Initialize())

		row, err := db.Execute("lookup", func(tx *bbolt.Tx) ([]byte, error) {
			b, err := Bucket(tx, UserBucket)
			if err != nil {
				return nil, err
			}
			return b.Get([]byte("alice")), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), row)
	})
}

func TestInitializeSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Initialize())
	v, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestInitializeRejectsNewerSchema(t *testing.T) {
	db := newTestDB(t)
	err := db.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucket(VersionBucket)
		if err != nil {
			return err
		}
		return b.Put(versionKey, []byte(strconv.Itoa(SchemaVersion+1)))
	})
	require.NoError(t, err)

	err = db.Initialize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaVersion))
	assert.True(t, IsStorageError(err))
}

func TestMigrateFromSessionOnlySchema(t *testing.T) {
	db := newTestDB(t)
	modified := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	good, err := EncodeSessionRow(SessionRow{Modified: modified, Data: []byte(`{"csrf_token":"x"}`)})
	require.NoError(t, err)

	// Revision 1 only had the version marker and the session table.
	err = db.db.Update(func(tx *bbolt.Tx) error {
		vb, err := tx.CreateBucket(VersionBucket)
		if err != nil {
			return err
		}
		if err := vb.Put(versionKey, []byte("1")); err != nil {
			return err
		}
		sb, err := tx.CreateBucket(SessionBucket)
		if err != nil {
			return err
		}
		if err := sb.Put([]byte("tok-good"), good); err != nil {
			return err
		}
		return sb.Put([]byte("tok-corrupt"), []byte("not json"))
	})
	require.NoError(t, err)

	require.NoError(t, db.Initialize())

	v, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)

	err = db.db.View(func(tx *bbolt.Tx) error {
		sb := tx.Bucket(SessionBucket)
		assert.NotNil(t, sb.Get([]byte("tok-good")))
		assert.Nil(t, sb.Get([]byte("tok-corrupt")))

		idx := tx.Bucket(SessionActivityBucket)
		require.NotNil(t, idx)
		k, _ := idx.Cursor().First()
		ts, token, err := SplitActivityKey(k)
		require.NoError(t, err)
		assert.Equal(t, "tok-good", token)
		assert.True(t, ts.Equal(modified))

		assert.NotNil(t, tx.Bucket(UserBucket))
		return nil
	})
	require.NoError(t, err)
}

func TestExecute(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Initialize())

	t.Run("RowIsCopied", func(t *testing.T) {
		_, err := db.Execute("put", func(tx *bbolt.Tx) ([]byte, error) {
			return nil, tx.Bucket(SessionBucket).Put([]byte("k"), []byte("value"))
		})
		require.NoError(t, err)

		row, err := db.Execute("get", func(tx *bbolt.Tx) ([]byte, error) {
			return tx.Bucket(SessionBucket).Get([]byte("k")), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), row)
	})

	t.Run("MissingRow", func(t *testing.T) {
		row, err := db.Execute("get", func(tx *bbolt.Tx) ([]byte, error) {
			return tx.Bucket(SessionBucket).Get([]byte("absent")), nil
		})
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("ErrorRollsBack", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := db.Execute("failing", func(tx *bbolt.Tx) ([]byte, error) {
			if err := tx.Bucket(SessionBucket).Put([]byte("rolled-back"), []byte("v")); err != nil {
				return nil, err
			}
			return nil, boom
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))

		var se *StorageError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "failing", se.Op)

		row, err := db.Execute("get", func(tx *bbolt.Tx) ([]byte, error) {
			return tx.Bucket(SessionBucket).Get([]byte("rolled-back")), nil
		})
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("NotInitialized", func(t *testing.T) {
		fresh := newTestDB(t)
		_, err := fresh.Execute("get", func(tx *bbolt.Tx) ([]byte, error) {
			b, err := Bucket(tx, SessionBucket)
			if err != nil {
				return nil, err
			}
			return b.Get([]byte("k")), nil
		})
		assert.True(t, errors.Is(err, ErrNotInitialized))
	})

	t.Run("AfterClose", func(t *testing.T) {
		closed, err := Open(filepath.Join(t.TempDir(), "closed.db"))
		require.NoError(t, err)
		require.NoError(t, closed.Close())
		_, err = closed.Execute("get", func(tx *bbolt.Tx) ([]byte, error) { return nil, nil })
		assert.True(t, IsStorageError(err))
	})
}

func TestExecuteSerializesConcurrentCallers(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Initialize())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Execute("incr", func(tx *bbolt.Tx) ([]byte, error) {
				b := tx.Bucket(SessionBucket)
				cur, _ := strconv.Atoi(string(b.Get([]byte("counter"))))
				return nil, b.Put([]byte("counter"), []byte(strconv.Itoa(cur+1)))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	row, err := db.Execute("get", func(tx *bbolt.Tx) ([]byte, error) {
		return tx.Bucket(SessionBucket).Get([]byte("counter")), nil
	})
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(n), string(row))
}

func TestActivityKeyOrdering(t *testing.T) {
	early := ActivityKey(time.Unix(100, 0), "zzz")
	late := ActivityKey(time.Unix(200, 0), "aaa")
	assert.Less(t, string(early), string(late))

	ts, token, err := SplitActivityKey(late)
	require.NoError(t, err)
	assert.Equal(t, "aaa", token)
	assert.Equal(t, int64(200), ts.Unix())

	_, _, err = SplitActivityKey([]byte{1, 2})
	assert.Error(t, err)
}
