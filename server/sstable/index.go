package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/nStangl/splaykv/server/codec"
	"github.com/nStangl/splaykv/server/data"
)

// IndexFunc maps a key to the offset of its frame in the table file
// and to the kind stored there
type IndexFunc func([]byte) (uint32, data.ResultKind, bool)

const offsetSize = 4

var byteOrder = binary.BigEndian

// indexFrame points at a table frame. The index keeps the frame's kind
// so tombstones never touch the table file.
func indexFrame(f codec.Frame, offset uint32) codec.Frame {
	return codec.Frame{
		Kind:  data.Found,
		Key:   f.Key,
		Value: byteOrder.AppendUint32(append(make([]byte, 0, offsetSize+1), byte(f.Kind)), offset),
	}
}

// NewIndex loads a whole index file. Frames are stored in ascending
// bytes.Compare order, so lookups binary search.
func NewIndex(r io.Reader) (IndexFunc, error) {
	var (
		keys    [][]byte
		offsets []uint32
		kinds   []data.ResultKind
		scanner = codec.NewScanner(r)
	)

	for scanner.Scan() {
		f := scanner.Frame()

		if len(f.Value) != offsetSize+1 {
			return nil, fmt.Errorf("%w: index value of %d bytes for %q", codec.ErrCorrupt, len(f.Value), f.Key)
		}

		kind := data.ResultKind(f.Value[0])
		if kind != data.Found && kind != data.Tombstoned {
			return nil, fmt.Errorf("%w: index kind %d for %q", codec.ErrCorrupt, f.Value[0], f.Key)
		}

		keys = append(keys, f.Key)
		kinds = append(kinds, kind)
		offsets = append(offsets, byteOrder.Uint32(f.Value[1:]))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}

	return func(key []byte) (uint32, data.ResultKind, bool) {
		i := sort.Search(len(keys), func(i int) bool {
			return bytes.Compare(keys[i], key) >= 0
		})

		if i < len(keys) && bytes.Equal(keys[i], key) {
			return offsets[i], kinds[i], true
		}

		return 0, 0, false
	}, nil
}
