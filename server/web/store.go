package web

import (
	"fmt"
	"path/filepath"

	dbLog "github.com/nStangl/splaykv/server/log"
	"github.com/nStangl/splaykv/server/memtable"
	"github.com/nStangl/splaykv/server/sstable"
	"github.com/nStangl/splaykv/server/store"
	log "github.com/sirupsen/logrus"
)

const managerBacklog = 4

// MemtableFunc picks the memtable implementation by name. Splay trees
// reserve room for capacity keys up front.
func MemtableFunc(name string, capacity int) (store.MemtableFunc, error) {
	switch name {
	case "splay", "":
		return func() memtable.Table { return memtable.NewSplayTreeWithCapacity(capacity) }, nil
	case "redblack":
		return func() memtable.Table { return memtable.NewRedBlackTree() }, nil
	default:
		return nil, fmt.Errorf("unknown memtable %q", name)
	}
}

// NewStore wires log, sstable manager and memtables together
// and replays the log left behind by a previous run.
func NewStore(cfg *Config) (*store.StoreImpl, error) {
	capacity := memtable.MaxSize
	if cfg.MaxEntries > 0 {
		capacity = cfg.MaxEntries
	}

	memtableFunc, err := MemtableFunc(cfg.Memtable, capacity)
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(cfg.Directory, cfg.Logfile)

	ssTableManager, err := sstable.NewManager(cfg.Directory, managerBacklog)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate sstable manager: %w", err)
	}

	if err := ssTableManager.Startup(); err != nil {
		return nil, fmt.Errorf("failed to start sstable manager up: %w", err)
	}

	ers := ssTableManager.Process()

	go func() {
		for err := range ers {
			log.Errorf("error from manager: %v", err)
		}
	}()

	var options []store.Option

	if cfg.MaxEntries > 0 {
		options = append(options, store.WithMaxEntries(cfg.MaxEntries))
	}

	if cfg.MaxBytes > 0 {
		options = append(options, store.WithMaxBytes(cfg.MaxBytes))
	}

	lg, err := dbLog.New(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate db commit log: %w", err)
	}

	s := store.New(lg, ssTableManager, memtableFunc, options...)

	// nothing has been appended yet, so the log only
	// holds what a previous run left behind
	if err := s.Recover(logPath); err != nil {
		return nil, fmt.Errorf("failed to recover from log: %w", err)
	}

	return s, nil
}
