package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nStangl/splaykv/server/data"
	dbLog "github.com/nStangl/splaykv/server/log"
	"github.com/nStangl/splaykv/server/memtable"
	"github.com/nStangl/splaykv/server/sstable"
	log "github.com/sirupsen/logrus"
)

type (
	Store interface {
		Get([]byte) (data.Result, error)
		Set([]byte, []byte) error
		Del([]byte) error

		// Put sets a value and returns what the key held before
		Put([]byte, []byte) (data.Result, error)
		// Remove tombstones a key that holds a value and returns
		// that value, any other key is left alone
		Remove([]byte) (data.Result, error)

		Close() error
		Flatten() (map[string]string, error)
	}

	// StoreImpl serialises every operation with a single mutex.
	// Reads take it exclusively too, since a memtable Get
	// may restructure the table.
	StoreImpl struct {
		mu           sync.Mutex
		log          dbLog.Log
		manager      *sstable.Manager
		memtable     memtable.Table
		memtableFunc MemtableFunc
		maxEntries   int
		maxBytes     int
	}

	MemtableFunc func() memtable.Table

	Option func(*StoreImpl)
)

var _ Store = (*StoreImpl)(nil)

var (
	ErrKeyTooLong   = errors.New("key too long")
	ErrValueTooLong = errors.New("value too long")
)

// WithMaxEntries bounds the number of keys held by the active memtable
func WithMaxEntries(n int) Option {
	return func(s *StoreImpl) {
		s.maxEntries = n
	}
}

// WithMaxBytes bounds the approximate memory held by the active memtable
func WithMaxBytes(n int) Option {
	return func(s *StoreImpl) {
		s.maxBytes = n
	}
}

func New(
	log dbLog.Log,
	manager *sstable.Manager,
	memtableFunc MemtableFunc,
	options ...Option,
) *StoreImpl {
	s := StoreImpl{
		log:          log,
		manager:      manager,
		memtable:     memtableFunc(),
		memtableFunc: memtableFunc,
		maxEntries:   memtable.MaxSize,
		maxBytes:     memtable.MaxBytes,
	}

	for _, o := range options {
		o(&s)
	}

	return &s
}

func (s *StoreImpl) Get(key []byte) (data.Result, error) {
	if len(key) > data.MaxKeySize {
		return data.Result{}, ErrKeyTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(key)
}

func (s *StoreImpl) Set(key, value []byte) error {
	if err := validate(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.set(key, value)
}

func (s *StoreImpl) Del(key []byte) error {
	if err := validate(key, nil); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.del(key)
}

func (s *StoreImpl) Put(key, value []byte) (data.Result, error) {
	if err := validate(key, value); err != nil {
		return data.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.get(key)
	if err != nil {
		return data.Result{}, err
	}

	return prev, s.set(key, value)
}

func (s *StoreImpl) Remove(key []byte) (data.Result, error) {
	if err := validate(key, nil); err != nil {
		return data.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.get(key)
	if err != nil || prev.Kind != data.Found {
		return prev, err
	}

	return prev, s.del(key)
}

func (s *StoreImpl) get(key []byte) (data.Result, error) {
	v := s.memtable.Get(key)
	if v.Kind != data.Absent {
		return v, nil
	}

	return s.manager.Lookup(key)
}

func (s *StoreImpl) set(key, value []byte) error {
	if err := s.log.Append(dbLog.NewSet(key, value)); err != nil {
		return fmt.Errorf("failed to append set record: %w", err)
	}

	s.memtable.Set(key, value)

	return s.maybeFlush()
}

func (s *StoreImpl) del(key []byte) error {
	if err := s.log.Append(dbLog.NewTombstone(key)); err != nil {
		return fmt.Errorf("failed to append tombstone record: %w", err)
	}

	s.memtable.Del(key)

	return s.maybeFlush()
}

func validate(key, value []byte) error {
	switch {
	case len(key) > data.MaxKeySize:
		return ErrKeyTooLong
	case len(value) > data.MaxValueSize:
		return ErrValueTooLong
	}

	return nil
}

// Recover replays the write-ahead log at location into the memtable.
// It must run before the store serves any request. After a crash the
// log may repeat writes that already reached an sstable; replaying
// them again is harmless.
func (s *StoreImpl) Recover(location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int

	err := dbLog.Replay(location, func(r dbLog.Record) error {
		n++

		switch r.Kind {
		case data.Found:
			s.memtable.Set(r.Key, r.Value)
		case data.Tombstoned:
			s.memtable.Del(r.Key)
		default:
			return fmt.Errorf("unknown record kind %s", r.Kind)
		}

		return s.maybeFlush()
	})
	if err != nil {
		return fmt.Errorf("failed to replay log: %w", err)
	}

	log.Infof("recovered %d log records", n)

	return nil
}

// Close persists the memtable. Once every table is on disk
// the log is no longer needed and gets truncated.
func (s *StoreImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.memtable.Size() > 0 {
		if err := s.flushMemtable(); err != nil {
			return fmt.Errorf("failed to flush memtable: %w", err)
		}
	}

	if err := s.manager.Close(); err != nil {
		return fmt.Errorf("failed to close the manager: %w", err)
	}

	if pending, _ := s.manager.Stats(); pending == 0 {
		if err := s.log.Truncate(); err != nil {
			return fmt.Errorf("failed to truncate the log: %w", err)
		}
	}

	if err := s.log.Close(); err != nil {
		return fmt.Errorf("failed to close the log: %w", err)
	}

	return nil
}

// Flatten merges every level into a plain map, newest value winning
// and tombstoned keys left out.
func (s *StoreImpl) Flatten() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.manager.Flatten()
	if err != nil {
		return nil, fmt.Errorf("manager failed to flatten the database: %w", err)
	}

	t := s.memtable.Iterator()

	for t.Next() {
		v := t.Value()

		switch v.Kind {
		case data.Found:
			db[string(v.Key)] = string(v.Value)
		case data.Tombstoned:
			delete(db, string(v.Key))
		}
	}

	return db, nil
}

func (s *StoreImpl) maybeFlush() error {
	if s.memtable.Size() < s.maxEntries && s.memtable.Bytes() < s.maxBytes {
		return nil
	}

	if err := s.flushMemtable(); err != nil {
		return fmt.Errorf("failed to flush memtable: %w", err)
	}

	return nil
}

// flushMemtable freezes the active memtable and hands it to the
// manager. From here on it is only read, never written.
func (s *StoreImpl) flushMemtable() error {
	log.Debugf("flushing memtable with %d entries (%d bytes)", s.memtable.Size(), s.memtable.Bytes())

	if err := s.manager.Add(s.memtable); err != nil {
		return fmt.Errorf("failed to add new sstable: %w", err)
	}

	s.memtable = s.memtableFunc()

	return nil
}
