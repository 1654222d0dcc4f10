package tcp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nStangl/splaykv/protocol"
	log "github.com/sirupsen/logrus"
)

// Server accepts TCP connections and runs the handler in a loop,
// one goroutine per connection, until the handler gives up, the
// peer disconnects or the server closes.
type Server[M protocol.Message] struct {
	wg             sync.WaitGroup
	mu             sync.Mutex
	conns          map[*net.TCPConn]struct{}
	quit           chan struct{}
	close          atomic.Bool
	handler        HandleFunc[M]
	listener       *net.TCPListener
	closeFunc      CloseFunc
	gracefulFunc   CloseFunc
	connectFunc    ProtoFunc[M]
	disconnectFunc ProtoFunc[M]
	protocolFunc   ProtocolProducerFunc[M]
}

func NewServer[M protocol.Message](address string, port int, options ...Option[M]) (*Server[M], error) {
	s := Server[M]{
		quit:  make(chan struct{}),
		conns: make(map[*net.TCPConn]struct{}),
	}

	for _, o := range options {
		o(&s)
	}

	if s.protocolFunc == nil || s.handler == nil {
		return nil, fmt.Errorf("server needs both a protocol and a handler")
	}

	const typ = "tcp"

	addr, err := net.ResolveTCPAddr(typ, fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve address %s:%d: %w", address, port, err)
	}

	l, err := net.ListenTCP(typ, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on address %q: %w", addr, err)
	}

	s.listener = l

	return &s, nil
}

// Addr is the address the server listens on
func (s *Server[M]) Addr() *net.TCPAddr {
	return s.listener.Addr().(*net.TCPAddr)
}

// Serve accepts connections in the background. The first channel is
// closed once the server stopped and every connection is done.
func (s *Server[M]) Serve() (<-chan struct{}, <-chan error) {
	var (
		don = make(chan struct{})
		ers = make(chan error, 10)
	)

	go func() {
		defer close(don)
		defer close(ers)

		log.Info("server is listening for incoming connections on ", s.listener.Addr())

	outer:
		for {
			conn, err := s.listener.AcceptTCP()
			if err != nil {
				select {
				case <-s.quit:
					log.Info("server is shutting down")
					s.wg.Wait()
					break outer
				default:
					ers <- fmt.Errorf("failed to accept connection: %w", err)
					continue
				}
			}

			s.track(conn, true)
			s.wg.Add(1)

			go func(proto protocol.Protocol[M]) {
				defer s.wg.Done()
				defer s.track(proto.Conn(), false)

				if s.connectFunc != nil {
					s.connectFunc(proto)
				}

				s.handleConnection(proto)
			}(s.protocolFunc(conn))
		}

		if s.closeFunc != nil {
			if err := s.closeFunc(); err != nil {
				ers <- err
			}
		}
	}()

	return don, ers
}

func (s *Server[M]) Close() error {
	if s.gracefulFunc != nil {
		if err := s.gracefulFunc(); err != nil {
			log.Errorf("failed to perform graceful shutdown: %v", err)
		}
	}

	s.close.Store(true)
	close(s.quit)

	err := s.listener.Close()

	// unblock handlers waiting for input, replies can still go out
	s.mu.Lock()
	for c := range s.conns {
		_ = c.CloseRead()
	}
	s.mu.Unlock()

	return err
}

func (s *Server[M]) track(conn *net.TCPConn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server[M]) handleConnection(proto protocol.Protocol[M]) {
	logger := log.WithFields(log.Fields{
		"conn":   uuid.New(),
		"remote": proto.Conn().RemoteAddr(),
	})

	logger.Info("handling connection")

	defer func() {
		if s.disconnectFunc != nil {
			s.disconnectFunc(proto)
		}

		if proto.Closed() {
			return
		}

		_ = proto.Close()
	}()

	for {
		if s.close.Load() {
			logger.Info("disconnecting client due to server shutdown")
			return
		}

		if ok := s.handler(proto); !ok {
			logger.Info("client disconnected")
			return
		}
	}
}
