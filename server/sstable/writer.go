package sstable

import (
	"fmt"
	"io"

	"github.com/nStangl/splaykv/server/codec"
	"github.com/nStangl/splaykv/server/memtable"
)

// writeTable relies on the iterator yielding keys in ascending order,
// the index is binary searched later on. Tombstones are written too,
// so they keep shadowing older tables.
func writeTable(it memtable.Iterator, table, index io.Writer) error {
	var offset uint32

	for it.Next() {
		f := codec.Frame(it.Value())

		if _, err := f.WriteTo(table); err != nil {
			return fmt.Errorf("failed to write frame to table: %w", err)
		}

		if _, err := indexFrame(f, offset).WriteTo(index); err != nil {
			return fmt.Errorf("failed to write frame to table index: %w", err)
		}

		offset += uint32(f.Size())
	}

	return nil
}
