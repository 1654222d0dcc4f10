package sstable

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/nStangl/splaykv/server/codec"
	"github.com/nStangl/splaykv/server/data"
	"github.com/nStangl/splaykv/server/memtable"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/exp/mmap"
	"golang.org/x/exp/slices"
)

// Manager turns full memtables into sstables in the background.
// Memtables handed to Add are frozen: until their table is written
// they are only read through Peek and Iterator.
type Manager struct {
	mu        sync.RWMutex
	root      string
	done      chan struct{}
	work      chan memtable.Table
	tables    []Table
	memtables []memtable.Table
	lastStamp int64
}

const tmpSuffix = ".tmp"

var (
	fileNameRe = regexp.MustCompile(`^sstable-(\d+)\.(db|index)$`)

	createFile = func(name string) (io.WriteCloser, error) { return os.Create(name) }
)

// NewManager does not touch the disk,
// Startup loads the tables found in root
func NewManager(root string, buffer uint) (*Manager, error) {
	return &Manager{
		root: root,
		done: make(chan struct{}),
		work: make(chan memtable.Table, buffer),
	}, nil
}

func (m *Manager) Startup() error {
	tables, err := m.loadTables()
	if err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}

	m.tables = tables

	if len(tables) > 0 {
		m.lastStamp = tables[len(tables)-1].stamp
	}

	return nil
}

func (m *Manager) Add(table memtable.Table) error {
	m.mu.Lock()
	m.memtables = append(m.memtables, table)
	m.mu.Unlock()

	// outside the lock, Process needs it to drain the queue
	m.work <- table

	return nil
}

// Stats reports how many memtables wait to be written
// and how many sstables exist
func (m *Manager) Stats() (pending, tables int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.memtables), len(m.tables)
}

// Lookup searches pending memtables and then tables, newest first.
func (m *Manager) Lookup(key []byte) (data.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.memtables) - 1; i >= 0; i-- {
		if v := m.memtables[i].Peek(key); v.Kind != data.Absent {
			return v, nil
		}
	}

	for i := len(m.tables) - 1; i >= 0; i-- {
		v, err := m.tables[i].Lookup(key)
		if err != nil {
			return data.Result{}, fmt.Errorf("failed to lookup key in %s: %w", tableName(m.tables[i].stamp), err)
		}

		if v.Kind != data.Absent {
			return v, nil
		}
	}

	return data.Result{Kind: data.Absent}, nil
}

func (m *Manager) Flatten() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	db := make(map[string]string)

	apply := func(f codec.Frame) {
		switch f.Kind {
		case data.Found:
			db[string(f.Key)] = string(f.Value)
		case data.Tombstoned:
			delete(db, string(f.Key))
		}
	}

	for i := range m.tables {
		if err := m.tables[i].scan(apply); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", tableName(m.tables[i].stamp), err)
		}
	}

	for _, mt := range m.memtables {
		for it := mt.Iterator(); it.Next(); {
			apply(codec.Frame(it.Value()))
		}
	}

	return db, nil
}

func (m *Manager) Process() <-chan error {
	ers := make(chan error, 10)

	go func() {
		defer close(ers)
		defer close(m.done)

		for table := range m.work {
			t, err := m.flush(table.Iterator())
			if err != nil {
				// keep serving the memtable from memory
				ers <- fmt.Errorf("failed to create new table: %w", err)
				continue
			}

			log.Infof("flushed memtable with %d entries to %s", table.Size(), tableName(t.stamp))

			m.mu.Lock()

			m.memtables = removeTable(m.memtables, table)
			m.tables = append(m.tables, *t)

			m.mu.Unlock()
		}
	}()

	return ers
}

func (m *Manager) Close() error {
	close(m.work)

	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()

	return closeTables(m.tables)
}

// loadTables opens every table with both of its files present,
// oldest first. A table missing its index was cut short by a crash.
func (m *Manager) loadTables() ([]Table, error) {
	const (
		hasTable = 1 << iota
		hasIndex
	)

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", m.root, err)
	}

	found := make(map[int64]int, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		n := fileNameRe.FindStringSubmatch(e.Name())
		if n == nil {
			continue
		}

		stamp, err := strconv.ParseInt(n[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stamp of %q: %w", e.Name(), err)
		}

		if n[2] == "db" {
			found[stamp] |= hasTable
		} else {
			found[stamp] |= hasIndex
		}
	}

	stamps := make([]int64, 0, len(found))

	for stamp, has := range found {
		if has != hasTable|hasIndex {
			log.Warnf("skipping incomplete table %d in %s", stamp, m.root)
			continue
		}

		stamps = append(stamps, stamp)
	}

	slices.Sort(stamps)

	tables := make([]Table, 0, len(stamps))

	for _, stamp := range stamps {
		t, err := m.openTable(stamp)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to open table %d: %w", stamp, err), closeTables(tables))
		}

		tables = append(tables, *t)
	}

	return tables, nil
}

// flush writes both files under temporary names first. The index
// is renamed last, so a crash never leaves a table that looks complete.
func (m *Manager) flush(it memtable.Iterator) (*Table, error) {
	var (
		stamp     = m.nextStamp()
		tablePath = filepath.Join(m.root, tableName(stamp))
		indexPath = filepath.Join(m.root, indexName(stamp))
	)

	if err := writeFiles(it, tablePath+tmpSuffix, indexPath+tmpSuffix); err != nil {
		return nil, err
	}

	if err := os.Rename(tablePath+tmpSuffix, tablePath); err != nil {
		return nil, fmt.Errorf("failed to rename table file: %w", err)
	}

	if err := os.Rename(indexPath+tmpSuffix, indexPath); err != nil {
		return nil, fmt.Errorf("failed to rename index file: %w", err)
	}

	return m.openTable(stamp)
}

// writeFiles closes both files on every path and removes
// them again if anything failed
func writeFiles(it memtable.Iterator, tablePath, indexPath string) (err error) {
	table, err := createFile(tablePath)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}

	index, err := createFile(indexPath)
	if err != nil {
		_ = os.Remove(tablePath)
		return multierr.Combine(fmt.Errorf("failed to create index file: %w", err), table.Close())
	}

	defer func() {
		err = multierr.Combine(err, table.Close(), index.Close())

		if err != nil {
			_ = os.Remove(tablePath)
			_ = os.Remove(indexPath)
		}
	}()

	var (
		tableBuf = bufio.NewWriter(table)
		indexBuf = bufio.NewWriter(index)
	)

	if err := writeTable(it, tableBuf, indexBuf); err != nil {
		return err
	}

	if err := tableBuf.Flush(); err != nil {
		return fmt.Errorf("failed to flush table file: %w", err)
	}

	if err := indexBuf.Flush(); err != nil {
		return fmt.Errorf("failed to flush index file: %w", err)
	}

	return multierr.Combine(syncFile(table), syncFile(index))
}

func (m *Manager) openTable(stamp int64) (*Table, error) {
	f, err := os.Open(filepath.Join(m.root, indexName(stamp)))
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	index, err := NewIndex(bufio.NewReader(f))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to load index: %w", err), f.Close())
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close index file: %w", err)
	}

	file, err := mmap.Open(filepath.Join(m.root, tableName(stamp)))
	if err != nil {
		return nil, fmt.Errorf("failed to mmap table file: %w", err)
	}

	return &Table{stamp: stamp, file: file, index: index}, nil
}

// nextStamp is the current time in nanoseconds,
// bumped if needed so that stamps stay unique and ordered
func (m *Manager) nextStamp() int64 {
	stamp := time.Now().UnixNano()

	if stamp <= m.lastStamp {
		stamp = m.lastStamp + 1
	}

	m.lastStamp = stamp

	return stamp
}

func syncFile(w io.Writer) error {
	if s, ok := w.(interface{ Sync() error }); ok {
		return s.Sync()
	}

	return nil
}

func closeTables(tables []Table) error {
	var result error

	for i := range tables {
		result = multierr.Append(result, tables[i].Close())
	}

	return result
}

func removeTable(tables []memtable.Table, table memtable.Table) []memtable.Table {
	for i := range tables {
		if tables[i] == table {
			return append(tables[:i:i], tables[i+1:]...)
		}
	}

	return tables
}
