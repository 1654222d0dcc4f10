package protocol

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/nStangl/splaykv/server/data"
)

type (
	// Scanner splits a connection into CRLF (or LF) terminated lines.
	// Reads time out regularly so the caller gets a chance to
	// notice a shutdown; a partial line survives the timeout.
	Scanner struct {
		conn    *net.TCPConn
		reader  *bufio.Reader
		partial []byte
	}

	ScanResult struct {
		Case  ScanCase
		Token string
	}

	ScanCase uint8
)

const (
	DataAvailable ScanCase = iota + 1
	DataBuffered
	ClientDisconnected
)

const (
	timeout = 15 * time.Second
	bufSz   = 2 << 12
	// command, two separators, key and value
	maxLineSz = 32 + data.MaxKeySize + data.MaxValueSize
)

var ErrLineTooLong = errors.New("line_too_long")

func NewScanner(conn *net.TCPConn) *Scanner {
	return &Scanner{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, bufSz),
	}
}

func (s *Scanner) Scan() (ScanResult, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return ScanResult{Case: ClientDisconnected}, nil
	}

	line, err := s.reader.ReadSlice('\n')
	s.partial = append(s.partial, line...)

	if err != nil {
		var netErr net.Error

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if len(s.partial) > maxLineSz {
				s.partial = s.partial[:0]
				return ScanResult{}, ErrLineTooLong
			}

			return ScanResult{Case: DataBuffered}, nil
		case errors.As(err, &netErr) && netErr.Timeout():
			return ScanResult{Case: DataBuffered}, nil
		default:
			return ScanResult{Case: ClientDisconnected}, nil
		}
	}

	token := strings.TrimRight(string(s.partial), "\r\n")
	s.partial = s.partial[:0]

	return ScanResult{Case: DataAvailable, Token: token}, nil
}
