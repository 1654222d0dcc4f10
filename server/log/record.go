package log

import (
	"github.com/nStangl/splaykv/server/codec"
	"github.com/nStangl/splaykv/server/data"
)

// Record is one logged mutation, either a value
// set for a key or a tombstone
type Record = codec.Frame

func NewSet(key, val []byte) Record {
	return Record{Kind: data.Found, Key: key, Value: val}
}

func NewTombstone(key []byte) Record {
	return Record{Kind: data.Tombstoned, Key: key}
}
