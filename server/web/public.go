package web

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nStangl/splaykv/protocol"
	"github.com/nStangl/splaykv/server/data"
	"github.com/nStangl/splaykv/server/store"
	"github.com/nStangl/splaykv/tcp"
	log "github.com/sirupsen/logrus"
)

// PublicServer answers client requests against a single store
type PublicServer struct {
	id        uuid.UUID
	addr      *net.TCPAddr
	store     store.Store
	writeLock atomic.Bool
	clients   atomic.Int64
}

func NewPublicServer(cfg *Config, s store.Store) (*PublicServer, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", cfg.Address, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve address %s:%d: %w", cfg.Address, cfg.Port, err)
	}

	return &PublicServer{id: uuid.New(), addr: addr, store: s}, nil
}

func (s *PublicServer) ID() uuid.UUID {
	return s.id
}

func (s *PublicServer) Server() (*tcp.Server[protocol.ClientMessage], error) {
	return tcp.NewServer(
		s.addr.IP.String(), s.addr.Port,
		tcp.WithProtocol(protocol.ForClient),
		tcp.OnHandle(s.OnHandle()),
		tcp.OnShutdown[protocol.ClientMessage](s.OnShutdown()),
		tcp.OnGracefulShutdown[protocol.ClientMessage](s.OnGracefulShutdown()),
		tcp.OnConnect(func(proto protocol.Protocol[protocol.ClientMessage]) {
			log.Debugf("client %s connected, %d active", proto, s.clients.Add(1))
		}),
		tcp.OnDisconnect(func(proto protocol.Protocol[protocol.ClientMessage]) {
			log.Debugf("client %s gone, %d active", proto, s.clients.Add(-1))
		}),
	)
}

// Clients is the number of open client connections
func (s *PublicServer) Clients() int64 {
	return s.clients.Load()
}

func (s *PublicServer) OnHandle() tcp.HandleFunc[protocol.ClientMessage] {
	return func(proto protocol.Protocol[protocol.ClientMessage]) bool {
		m, err := proto.Receive()
		if err != nil {
			if errors.Is(err, protocol.ErrConnClosed) {
				log.Infof("client is disconnected: %v", proto.Conn().RemoteAddr())
				return false
			}

			o := protocol.ClientMessage{Type: protocol.Error, Key: reason(err)}

			switch {
			case errors.Is(err, protocol.ErrGetError):
				o = protocol.ClientMessage{Type: protocol.GetError}
			case errors.Is(err, protocol.ErrPutError):
				o = protocol.ClientMessage{Type: protocol.PutError}
			case errors.Is(err, protocol.ErrDeleteError):
				o = protocol.ClientMessage{Type: protocol.DeleteError}
			}

			if err := proto.Send(o); err != nil {
				log.Errorf("error when sending error reply: %v", err)
			}

			return true
		}

		if m == nil {
			return true
		}

		switch m.Type {
		case protocol.Get:
			if err := s.handleGet(proto, m.Key); err != nil {
				log.Errorf("error when sending get reply: %v", err)
			}
		case protocol.Put:
			if s.writeLocked(proto) {
				return true
			}

			if err := s.handlePut(proto, m.Key, m.Value); err != nil {
				log.Errorf("error when sending put reply: %v", err)
			}
		case protocol.Delete:
			if s.writeLocked(proto) {
				return true
			}

			if err := s.handleDelete(proto, m.Key); err != nil {
				log.Errorf("error when sending delete reply: %v", err)
			}
		default:
			log.Warnf("received unexpected message %s from %v", m, proto.Conn().RemoteAddr())

			if err := proto.Send(protocol.ClientMessage{Type: protocol.Error, Key: "invalid_input"}); err != nil {
				log.Errorf("error when sending error reply: %v", err)
			}
		}

		return true
	}
}

// OnShutdown runs once every connection is done
func (s *PublicServer) OnShutdown() tcp.CloseFunc {
	return func() error {
		if err := s.store.Close(); err != nil {
			return fmt.Errorf("failed to close the store: %w", err)
		}

		return nil
	}
}

// OnGracefulShutdown runs first when the server is asked to close,
// writes arriving after it are refused
func (s *PublicServer) OnGracefulShutdown() tcp.CloseFunc {
	return func() error {
		s.writeLock.Store(true)

		log.Info("refusing writes, shutting down")

		return nil
	}
}

func (s *PublicServer) handlePut(proto protocol.Protocol[protocol.ClientMessage], key, value string) error {
	msg := protocol.ClientMessage{Type: protocol.PutError, Key: key}

	if prev, err := s.store.Put([]byte(key), []byte(value)); err == nil {
		if prev.Kind == data.Found {
			msg.Type = protocol.PutUpdate
		} else {
			msg.Type = protocol.PutSuccess
		}
	} else {
		log.Errorf("failed to put key: %v", err)
	}

	if err := proto.Send(msg); err != nil {
		return fmt.Errorf("error when sending put reply: %w", err)
	}

	return nil
}

func (s *PublicServer) handleGet(proto protocol.Protocol[protocol.ClientMessage], key string) error {
	msg := protocol.ClientMessage{Type: protocol.GetError, Key: key}

	if result, err := s.store.Get([]byte(key)); err == nil {
		if result.Kind == data.Found {
			msg = protocol.ClientMessage{Type: protocol.GetSuccess, Key: key, Value: string(result.Value)}
		}
	} else {
		log.Errorf("failed to get key: %v", err)
	}

	if err := proto.Send(msg); err != nil {
		return fmt.Errorf("error when sending get reply: %w", err)
	}

	return nil
}

// handleDelete only tombstones keys that currently hold a value
// and echoes that value back
func (s *PublicServer) handleDelete(proto protocol.Protocol[protocol.ClientMessage], key string) error {
	msg := protocol.ClientMessage{Type: protocol.DeleteError, Key: key}

	if prev, err := s.store.Remove([]byte(key)); err == nil {
		if prev.Kind == data.Found {
			msg = protocol.ClientMessage{Type: protocol.DeleteSuccess, Key: key, Value: string(prev.Value)}
		}
	} else {
		log.Errorf("failed to delete key: %v", err)
	}

	if err := proto.Send(msg); err != nil {
		return fmt.Errorf("error when sending delete reply: %w", err)
	}

	return nil
}

func (s *PublicServer) writeLocked(proto protocol.Protocol[protocol.ClientMessage]) bool {
	if !s.writeLock.Load() {
		return false
	}

	if err := proto.Send(protocol.ClientMessage{Type: protocol.Error, Key: "write_lock"}); err != nil {
		log.Errorf("error when sending write lock reply: %v", err)
	}

	return true
}

// reason picks the protocol level cause out of a wrapped error
func reason(err error) string {
	for _, e := range []error{protocol.ErrInvalidFormat, protocol.ErrLineTooLong} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}

	return "invalid_input"
}
