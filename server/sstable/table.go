package sstable

import (
	"fmt"
	"io"

	"github.com/nStangl/splaykv/server/codec"
	"github.com/nStangl/splaykv/server/data"
	"golang.org/x/exp/mmap"
)

type Table struct {
	// nanoseconds at creation, orders tables from oldest to newest
	stamp int64
	// mmap'ed table file
	file *mmap.ReaderAt
	// in-memory index
	index IndexFunc
}

func tableName(stamp int64) string { return fmt.Sprintf("sstable-%d.db", stamp) }
func indexName(stamp int64) string { return fmt.Sprintf("sstable-%d.index", stamp) }

// Lookup answers tombstones and misses from the index alone.
func (t *Table) Lookup(key []byte) (data.Result, error) {
	offset, kind, ok := t.index(key)

	switch {
	case !ok:
		return data.Result{Kind: data.Absent}, nil
	case kind == data.Tombstoned:
		return data.Result{Kind: data.Tombstoned}, nil
	}

	h := make([]byte, codec.HeaderSize)
	if _, err := t.file.ReadAt(h, int64(offset)); err != nil {
		return data.Result{}, fmt.Errorf("failed to read mmap'ed frame header: %w", err)
	}

	kind, keyLen, valLen, err := codec.ParseHeader(h)
	if err != nil {
		return data.Result{}, fmt.Errorf("failed to parse frame header at %d: %w", offset, err)
	}

	payload := make([]byte, keyLen+valLen)
	if len(payload) > 0 {
		if _, err := t.file.ReadAt(payload, int64(offset)+codec.HeaderSize); err != nil {
			return data.Result{}, fmt.Errorf("failed to read mmap'ed frame: %w", err)
		}
	}

	f := codec.FromPayload(kind, payload, keyLen)

	if kind != data.Found || string(f.Key) != string(key) {
		return data.Result{}, fmt.Errorf("%w: index points at %s for %q", codec.ErrCorrupt, f, key)
	}

	return data.Result{Kind: data.Found, Value: f.Value}, nil
}

// scan walks every frame of the table in key order
func (t *Table) scan(fn func(codec.Frame)) error {
	scanner := codec.NewScanner(io.NewSectionReader(t.file, 0, int64(t.file.Len())))

	for scanner.Scan() {
		fn(scanner.Frame())
	}

	return scanner.Err()
}

func (t *Table) Close() error {
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("failed to close mmap'ed file: %w", err)
	}

	return nil
}
