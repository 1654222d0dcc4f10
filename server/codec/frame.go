// Package codec encodes the key/value frames shared by the
// write-ahead log, the sstable files and their indexes.
//
// A frame is laid out as
//
//	kind (1) | key length (4) | value length (4) | key | value
//
// with lengths in big endian. The kind is a data.ResultKind and is
// either Found or Tombstoned.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nStangl/splaykv/server/data"
)

type Frame struct {
	Kind  data.ResultKind
	Key   []byte
	Value []byte
}

const (
	HeaderSize = 9

	// MaxFrameSize bounds a frame holding the largest key and value
	MaxFrameSize = HeaderSize + data.MaxKeySize + data.MaxValueSize
)

var (
	ErrShortFrame = errors.New("frame is truncated")
	ErrCorrupt    = errors.New("frame header is corrupt")

	byteOrder = binary.BigEndian
)

func (f Frame) String() string {
	return fmt.Sprintf("(%s, %q, %q)", f.Kind, f.Key, f.Value)
}

func (f Frame) Size() int {
	return HeaderSize + len(f.Key) + len(f.Value)
}

// Append encodes f at the end of dst
func (f Frame) Append(dst []byte) []byte {
	dst = append(dst, byte(f.Kind))
	dst = byteOrder.AppendUint32(dst, uint32(len(f.Key)))
	dst = byteOrder.AppendUint32(dst, uint32(len(f.Value)))
	dst = append(dst, f.Key...)

	return append(dst, f.Value...)
}

func (f Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Append(make([]byte, 0, f.Size())))
	return int64(n), err
}

// ParseHeader decodes the fixed size prefix of a frame.
func ParseHeader(p []byte) (kind data.ResultKind, keyLen, valLen int, err error) {
	if len(p) < HeaderSize {
		return 0, 0, 0, ErrShortFrame
	}

	kind = data.ResultKind(p[0])
	keyLen = int(byteOrder.Uint32(p[1:5]))
	valLen = int(byteOrder.Uint32(p[5:9]))

	switch {
	case kind != data.Found && kind != data.Tombstoned:
		err = fmt.Errorf("%w: unknown kind %d", ErrCorrupt, uint8(kind))
	case keyLen > data.MaxKeySize:
		err = fmt.Errorf("%w: key length %d", ErrCorrupt, keyLen)
	case valLen > data.MaxValueSize:
		err = fmt.Errorf("%w: value length %d", ErrCorrupt, valLen)
	}

	return kind, keyLen, valLen, err
}

// Decode copies the frame at the start of p.
func Decode(p []byte) (Frame, error) {
	kind, keyLen, valLen, err := ParseHeader(p)
	if err != nil {
		return Frame{}, err
	}

	end := HeaderSize + keyLen + valLen
	if len(p) < end {
		return Frame{}, ErrShortFrame
	}

	payload := make([]byte, keyLen+valLen)
	copy(payload, p[HeaderSize:end])

	return FromPayload(kind, payload, keyLen), nil
}

// FromPayload builds a frame around payload, the key immediately
// followed by the value. The frame takes ownership of payload.
// Tombstones carry a nil value, found entries a non-nil one.
func FromPayload(kind data.ResultKind, payload []byte, keyLen int) Frame {
	f := Frame{
		Kind: kind,
		Key:  payload[:keyLen:keyLen],
	}

	if kind == data.Found {
		f.Value = payload[keyLen:]
	}

	return f
}
