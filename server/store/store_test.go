package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nStangl/splaykv/server/data"
	dbLog "github.com/nStangl/splaykv/server/log"
	"github.com/nStangl/splaykv/server/memtable"
	"github.com/nStangl/splaykv/server/sstable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, dir string, options ...Option) *StoreImpl {
	t.Helper()

	l, err := dbLog.New(filepath.Join(dir, "db.log"))
	require.NoError(t, err)

	m, err := sstable.NewManager(dir, 4)
	require.NoError(t, err)
	require.NoError(t, m.Startup())

	ers := m.Process()

	go func() {
		for err := range ers {
			t.Errorf("error from manager: %v", err)
		}
	}()

	return New(l, m, func() memtable.Table {
		return memtable.NewSplayTree()
	}, options...)
}

func TestStoreGetSetDel(t *testing.T) {
	s := openStore(t, t.TempDir())

	require.NoError(t, s.Set([]byte("a"), []byte{1}))
	require.NoError(t, s.Set([]byte("b"), []byte{2}))
	require.NoError(t, s.Del([]byte("a")))

	tests := []struct {
		key  string
		want data.Result
	}{
		{"a", data.Result{Kind: data.Tombstoned}},
		{"b", data.Result{Kind: data.Found, Value: []byte{2}}},
		{"c", data.Result{Kind: data.Absent}},
	}

	for _, test := range tests {
		got, err := s.Get([]byte(test.key))
		require.NoError(t, err)
		assert.Equal(t, test.want, got, "Get(%s)", test.key)
	}

	require.NoError(t, s.Close())
}

func TestStoreRejectsOversizedInput(t *testing.T) {
	s := openStore(t, t.TempDir())

	long := []byte(strings.Repeat("k", data.MaxKeySize+1))

	assert.ErrorIs(t, s.Set(long, nil), ErrKeyTooLong)
	assert.ErrorIs(t, s.Del(long), ErrKeyTooLong)

	_, err := s.Get(long)
	assert.ErrorIs(t, err, ErrKeyTooLong)

	assert.ErrorIs(t, s.Set([]byte("k"), make([]byte, data.MaxValueSize+1)), ErrValueTooLong)

	// an empty key is a regular key
	require.NoError(t, s.Set(nil, []byte("empty")))

	r, err := s.Get([]byte{})
	require.NoError(t, err)
	assert.Equal(t, []byte("empty"), r.Value)

	require.NoError(t, s.Close())
}

func TestStoreFlushesFullMemtable(t *testing.T) {
	s := openStore(t, t.TempDir(), WithMaxEntries(10))

	for i := 0; i < 35; i++ {
		require.NoError(t, s.Set([]byte(fmt.Sprintf("key-%02d", i)), []byte(fmt.Sprintf("v%d", i))))
	}

	require.NoError(t, s.Del([]byte("key-03")))

	pending, tables := s.manager.Stats()

	assert.Equal(t, 6, s.memtable.Size())
	assert.Equal(t, 3, pending+tables)

	for i := 0; i < 35; i++ {
		r, err := s.Get([]byte(fmt.Sprintf("key-%02d", i)))
		require.NoError(t, err)

		if i == 3 {
			assert.Equal(t, data.Tombstoned, r.Kind)
			continue
		}

		assert.Equal(t, data.Result{Kind: data.Found, Value: []byte(fmt.Sprintf("v%d", i))}, r)
	}

	db, err := s.Flatten()
	require.NoError(t, err)
	assert.Len(t, db, 34)
	assert.NotContains(t, db, "key-03")

	require.NoError(t, s.Close())
}

func TestStoreFlushesOnBytes(t *testing.T) {
	s := openStore(t, t.TempDir(), WithMaxBytes(1024))

	value := make([]byte, 300)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Set([]byte{byte(i)}, value))
	}

	// the third entry crosses the limit
	pending, tables := s.manager.Stats()

	assert.Equal(t, 1, pending+tables)
	assert.Equal(t, 1, s.memtable.Size())

	require.NoError(t, s.Close())
}

func TestStoreRecover(t *testing.T) {
	dir := t.TempDir()

	s := openStore(t, dir)

	require.NoError(t, s.Set([]byte("x"), []byte("1")))
	require.NoError(t, s.Set([]byte("y"), []byte("2")))
	require.NoError(t, s.Del([]byte("x")))
	require.NoError(t, s.Set([]byte("z"), []byte("3")))

	// log closed and synced, but pretend the memtable was lost
	require.NoError(t, s.log.Close())

	recovered := openStore(t, dir)
	require.NoError(t, recovered.Recover(filepath.Join(dir, "db.log")))

	tests := []struct {
		key  string
		want data.Result
	}{
		{"x", data.Result{Kind: data.Tombstoned}},
		{"y", data.Result{Kind: data.Found, Value: []byte("2")}},
		{"z", data.Result{Kind: data.Found, Value: []byte("3")}},
	}

	for _, test := range tests {
		got, err := recovered.Get([]byte(test.key))
		require.NoError(t, err)
		assert.Equal(t, test.want, got, "Get(%s)", test.key)
	}

	require.NoError(t, recovered.Close())
}

func TestStoreCloseTruncatesLog(t *testing.T) {
	dir := t.TempDir()

	s := openStore(t, dir)

	require.NoError(t, s.Set([]byte("x"), []byte("1")))
	require.NoError(t, s.Del([]byte("y")))
	require.NoError(t, s.Close())

	reopened := openStore(t, dir)
	require.NoError(t, reopened.Recover(filepath.Join(dir, "db.log")))

	// everything comes from the sstable written on close
	assert.Equal(t, 0, reopened.memtable.Size())

	got, err := reopened.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, data.Result{Kind: data.Found, Value: []byte("1")}, got)

	got, err = reopened.Get([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, data.Tombstoned, got.Kind)

	require.NoError(t, reopened.Close())
}

func TestStorePutAndRemoveReportPrevious(t *testing.T) {
	s := openStore(t, t.TempDir())

	prev, err := s.Put([]byte("k"), []byte("1"))
	require.NoError(t, err)
	assert.Equal(t, data.Absent, prev.Kind)

	prev, err = s.Put([]byte("k"), []byte("2"))
	require.NoError(t, err)
	assert.Equal(t, data.Result{Kind: data.Found, Value: []byte("1")}, prev)

	prev, err = s.Remove([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, data.Result{Kind: data.Found, Value: []byte("2")}, prev)

	prev, err = s.Remove([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, data.Tombstoned, prev.Kind)

	// removing an unknown key does not write a tombstone
	prev, err = s.Remove([]byte("never"))
	require.NoError(t, err)
	assert.Equal(t, data.Absent, prev.Kind)
	assert.Equal(t, 1, s.memtable.Size())

	_, err = s.Put([]byte("k"), make([]byte, data.MaxValueSize+1))
	assert.ErrorIs(t, err, ErrValueTooLong)

	require.NoError(t, s.Close())
}

func TestStoreConcurrentPutsSeeOneFreshKey(t *testing.T) {
	s := openStore(t, t.TempDir(), WithMaxEntries(4))

	const workers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fresh   int
		removed int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			prev, err := s.Put([]byte("shared"), []byte{byte(i)})
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()

			if prev.Kind != data.Found {
				fresh++
			}
		}(i)
	}

	wg.Wait()

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			prev, err := s.Remove([]byte("shared"))
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()

			if prev.Kind == data.Found {
				removed++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, removed)

	require.NoError(t, s.Close())
}
