package protocol

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Message is anything that travels as one line
	Message interface {
		fmt.Stringer

		Bytes() []byte
	}

	// ParserFunc turns a line, without its terminator, into a message
	ParserFunc[M Message] func(string) (M, error)

	Protocol[M Message] interface {
		fmt.Stringer

		Conn() *net.TCPConn
		Close() error
		Closed() bool
		Send(M) error
		Receive() (*M, error)
	}

	// LineProtocol exchanges line terminated messages over TCP.
	// Sends and receives may run concurrently with each other.
	LineProtocol[M Message] struct {
		sendMu  sync.Mutex
		recvMu  sync.Mutex
		closed  atomic.Bool
		conn    *net.TCPConn
		parse   ParserFunc[M]
		scanner *Scanner
	}
)

var _ Protocol[ClientMessage] = (*LineProtocol[ClientMessage])(nil)

var (
	ErrConnClosed    = errors.New("conn_closed")
	ErrInvalidFormat = errors.New("message_format_invalid")
)

const dialTimeout = 5 * time.Second

func New[M Message](conn *net.TCPConn, parse ParserFunc[M]) *LineProtocol[M] {
	return &LineProtocol[M]{
		conn:    conn,
		parse:   parse,
		scanner: NewScanner(conn),
	}
}

// Dial opens a TCP connection to addr
func Dial(addr string) (*net.TCPConn, error) {
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return c.(*net.TCPConn), nil
}

func (p *LineProtocol[M]) String() string {
	return p.conn.RemoteAddr().String()
}

func (p *LineProtocol[M]) Conn() *net.TCPConn {
	return p.conn
}

func (p *LineProtocol[M]) Send(msg M) error {
	if p.closed.Load() {
		return ErrConnClosed
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if _, err := p.conn.Write(msg.Bytes()); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", msg, p, err)
	}

	return nil
}

// Receive returns nil and no error while a line is still incomplete.
func (p *LineProtocol[M]) Receive() (*M, error) {
	if p.closed.Load() {
		return nil, ErrConnClosed
	}

	p.recvMu.Lock()
	defer p.recvMu.Unlock()

	r, err := p.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to read from %s: %w", p, err)
	}

	switch r.Case {
	case DataBuffered:
		return nil, nil
	case ClientDisconnected:
		return nil, ErrConnClosed
	}

	m, err := p.parse(r.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", r.Token, err)
	}

	return &m, nil
}

// Close may be called more than once, only the first call closes the conn.
func (p *LineProtocol[M]) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("failed to close conn to %s: %w", p, err)
	}

	return nil
}

func (p *LineProtocol[M]) Closed() bool {
	return p.closed.Load()
}
