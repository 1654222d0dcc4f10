package memtable

import "github.com/nStangl/splaykv/server/data"

// This package defines the memtable,
// the in-memory ordered structure holding
// the most recent writes before they are flushed

type (
	Table interface {
		Sizable
		Iterable

		// Get may reorganise the table, callers
		// must hold exclusive access
		Get([]byte) data.Result
		// Peek answers like Get but never mutates,
		// so it is safe on a frozen table shared by readers
		Peek([]byte) data.Result
		Set([]byte, []byte)
		Del([]byte)
	}

	Sizable interface {
		Size() int
		Bytes() int
	}

	Iterable interface {
		Iterator() Iterator
	}

	// Iterator walks a table in ascending key order,
	// tombstones included
	Iterator interface {
		Next() bool
		Value() Element
	}

	Element struct {
		Kind  data.ResultKind
		Key   []byte
		Value []byte
	}
)

const (
	MaxSize  = 2 << 15
	MaxBytes = 4 << 20
)

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	c := make([]byte, len(b))
	copy(c, b)

	return c
}
