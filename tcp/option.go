package tcp

import (
	"net"

	"github.com/nStangl/splaykv/protocol"
)

type (
	Option[M protocol.Message] func(*Server[M])

	// CloseFunc runs during shutdown, its error is reported but
	// does not stop the shutdown
	CloseFunc func() error

	// ProtoFunc observes a connection as it opens or closes
	ProtoFunc[M protocol.Message] func(protocol.Protocol[M])

	// HandleFunc serves one message, returning false drops the connection
	HandleFunc[M protocol.Message] func(protocol.Protocol[M]) bool

	ProtocolProducerFunc[M protocol.Message] func(*net.TCPConn) protocol.Protocol[M]
)

// WithProtocol is required, it wraps every accepted connection
func WithProtocol[M protocol.Message](proto ProtocolProducerFunc[M]) Option[M] {
	return func(s *Server[M]) { s.protocolFunc = proto }
}

// OnHandle is required, it is called in a loop per connection
func OnHandle[M protocol.Message](handleFunc HandleFunc[M]) Option[M] {
	return func(s *Server[M]) { s.handler = handleFunc }
}

func OnConnect[M protocol.Message](protoFunc ProtoFunc[M]) Option[M] {
	return func(s *Server[M]) { s.connectFunc = protoFunc }
}

func OnDisconnect[M protocol.Message](protoFunc ProtoFunc[M]) Option[M] {
	return func(s *Server[M]) { s.disconnectFunc = protoFunc }
}

// OnShutdown runs after the listener closed and every handler returned
func OnShutdown[M protocol.Message](closeFunc CloseFunc) Option[M] {
	return func(s *Server[M]) { s.closeFunc = closeFunc }
}

// OnGracefulShutdown runs first thing in Close,
// while connections are still served
func OnGracefulShutdown[M protocol.Message](gracefulFunc CloseFunc) Option[M] {
	return func(s *Server[M]) { s.gracefulFunc = gracefulFunc }
}
