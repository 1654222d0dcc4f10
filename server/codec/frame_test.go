package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nStangl/splaykv/server/data"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		in   Frame
		want Frame
	}{
		{
			Frame{Kind: data.Found, Key: []byte("key"), Value: []byte("value")},
			Frame{Kind: data.Found, Key: []byte("key"), Value: []byte("value")},
		},
		{
			// found entries keep an empty, non-nil value
			Frame{Kind: data.Found, Key: []byte("k")},
			Frame{Kind: data.Found, Key: []byte("k"), Value: []byte{}},
		},
		{
			Frame{Kind: data.Found, Key: []byte{}, Value: []byte("empty key")},
			Frame{Kind: data.Found, Key: []byte{}, Value: []byte("empty key")},
		},
		{
			Frame{Kind: data.Tombstoned, Key: []byte("gone")},
			Frame{Kind: data.Tombstoned, Key: []byte("gone")},
		},
	}

	for _, tt := range tests {
		p := tt.in.Append(nil)
		require.Len(t, p, tt.in.Size())

		got, err := Decode(p)
		require.NoError(t, err, "%s", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDecodeRejects(t *testing.T) {
	full := Frame{Kind: data.Found, Key: []byte("key"), Value: []byte("value")}.Append(nil)

	oversized := make([]byte, HeaderSize)
	oversized[0] = byte(data.Found)
	byteOrder.PutUint32(oversized[1:5], data.MaxKeySize+1)

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"short header", full[:HeaderSize-1], ErrShortFrame},
		{"short payload", full[:len(full)-1], ErrShortFrame},
		{"absent kind", append([]byte{byte(data.Absent)}, full[1:]...), ErrCorrupt},
		{"zero kind", append([]byte{0}, full[1:]...), ErrCorrupt},
		{"oversized key", oversized, ErrCorrupt},
	}

	for _, tt := range tests {
		_, err := Decode(tt.in)
		assert.ErrorIs(t, err, tt.want, tt.name)
	}
}

func TestDecodeCopies(t *testing.T) {
	p := Frame{Kind: data.Found, Key: []byte("k"), Value: []byte("v")}.Append(nil)

	f, err := Decode(p)
	require.NoError(t, err)

	p[HeaderSize] = 'x'
	assert.Equal(t, []byte("k"), f.Key)
}

func TestScannerDropsTornTail(t *testing.T) {
	var buf bytes.Buffer

	frames := []Frame{
		{Kind: data.Found, Key: []byte("a"), Value: []byte("1")},
		{Kind: data.Tombstoned, Key: []byte("b")},
		{Kind: data.Found, Key: []byte("c"), Value: []byte("3")},
	}

	for _, f := range frames[:2] {
		_, err := f.WriteTo(&buf)
		require.NoError(t, err)
	}

	last := frames[2].Append(nil)
	buf.Write(last[:len(last)-1])

	var (
		s    = NewScanner(&buf)
		keys []string
	)

	for s.Scan() {
		keys = append(keys, string(s.Frame().Key))
	}

	require.NoError(t, s.Err())
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestScannerFailsOnCorruptHeader(t *testing.T) {
	p := Frame{Kind: data.Found, Key: []byte("a"), Value: []byte("1")}.Append(nil)
	p = append(p, 0xff, 0, 0, 0, 0, 0, 0, 0, 0)

	s := NewScanner(bytes.NewReader(p))

	require.True(t, s.Scan())
	assert.Equal(t, []byte("a"), s.Frame().Key)

	assert.False(t, s.Scan())
	assert.ErrorIs(t, s.Err(), ErrCorrupt)
}

func TestScannerLargeFrame(t *testing.T) {
	f := Frame{
		Kind:  data.Found,
		Key:   bytes.Repeat([]byte("k"), data.MaxKeySize),
		Value: bytes.Repeat([]byte("v"), data.MaxValueSize),
	}

	s := NewScanner(bytes.NewReader(f.Append(nil)))

	require.True(t, s.Scan())
	assert.Equal(t, f, s.Frame())
	assert.False(t, s.Scan())
	assert.NoError(t, s.Err())
}
