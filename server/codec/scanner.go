package codec

import (
	"bufio"
	"errors"
	"io"
)

// Scanner reads consecutive frames. A frame cut short by the end of
// the input, as left behind by a crash during an append, ends the scan
// without an error. A corrupt header is an error.
type Scanner struct {
	scanner *bufio.Scanner
}

func NewScanner(r io.Reader) *Scanner {
	const bufSz = 2 << 11

	s := bufio.NewScanner(r)

	s.Buffer(make([]byte, 0, bufSz), MaxFrameSize)
	s.Split(split)

	return &Scanner{scanner: s}
}

func split(p []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(p) == 0 {
		return 0, nil, nil
	}

	_, keyLen, valLen, err := ParseHeader(p)

	switch {
	case errors.Is(err, ErrShortFrame):
		return 0, nil, nil
	case err != nil:
		return 0, nil, err
	}

	n := HeaderSize + keyLen + valLen
	if len(p) < n {
		return 0, nil, nil
	}

	return n, p[:n], nil
}

func (s *Scanner) Scan() bool {
	return s.scanner.Scan()
}

// Frame returns a copy of the current frame
func (s *Scanner) Frame() Frame {
	f, _ := Decode(s.scanner.Bytes())
	return f
}

func (s *Scanner) Err() error {
	return s.scanner.Err()
}
