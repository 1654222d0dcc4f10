package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
)

type (
	// Message exchanged client <-> server
	ClientMessage struct {
		Type  ClientType
		Key   string
		Value string
	}

	ClientType uint8
)

const (
	Put ClientType = iota + 1
	PutSuccess
	PutUpdate
	PutError
	Get
	GetSuccess
	GetError
	Delete
	DeleteSuccess
	DeleteError
	Error
)

var (
	ErrGetError    = errors.New("get_error")
	ErrPutError    = errors.New("put_error")
	ErrDeleteError = errors.New("delete_error")

	clientTypeKeys = [...]string{
		"put",
		"put_success",
		"put_update",
		"put_error",
		"get",
		"get_success",
		"get_error",
		"delete",
		"delete_success",
		"delete_error",
		"error",
	}
)

func ForClient(conn *net.TCPConn) Protocol[ClientMessage] {
	return New(conn, ParseClientMessage)
}

func (t ClientType) String() string {
	if t < Put || t > Error {
		return fmt.Sprintf("type(%d)", uint8(t))
	}

	return clientTypeKeys[t-1]
}

func (m ClientMessage) String() string {
	return fmt.Sprintf("client(%s,%s,%s)", m.Type, m.Key, m.Value)
}

func (m ClientMessage) Bytes() []byte {
	b := bytes.NewBuffer(make([]byte, 0, len(m.Key)+len(m.Value)+16))

	b.WriteString(m.Type.String())

	if m.Key != "" {
		b.WriteRune(' ')
		b.WriteString(m.Key)
	}

	if m.Value != "" {
		b.WriteRune(' ')
		b.WriteString(m.Value)
	}

	b.WriteByte('\r')
	b.WriteByte('\n')

	return b.Bytes()
}

func parseClientType(s string) (ClientType, bool) {
	for i := range clientTypeKeys {
		if clientTypeKeys[i] == s {
			return ClientType(i + 1), true
		}
	}

	return ClientType(0), false
}

// ParseClientMessage parses one line without its terminator.
// The value is everything after the key, spaces included.
// A put without a value is a delete.
func ParseClientMessage(raw string) (ClientMessage, error) {
	p := strings.SplitN(raw, " ", 3)

	t, ok := parseClientType(p[0])
	if !ok {
		return ClientMessage{}, ErrInvalidFormat
	}

	msg := ClientMessage{Type: t}

	// how many of key and value each type carries
	var min, max int

	switch msg.Type {
	case Get:
		if len(p) != 2 {
			return msg, ErrGetError
		}
	case Put:
		switch len(p) {
		case 2:
			msg.Type = Delete
		case 3:
		default:
			return msg, ErrPutError
		}
	case Delete:
		if len(p) != 2 {
			return msg, ErrDeleteError
		}
	case GetSuccess, DeleteSuccess:
		min, max = 2, 2
	case PutSuccess, PutUpdate:
		min, max = 1, 1
	case PutError, GetError, DeleteError:
		min, max = 0, 1
	case Error:
		min, max = 0, 2
	}

	if n := len(p) - 1; max > 0 && (n < min || n > max) {
		return msg, ErrInvalidFormat
	}

	if len(p) > 1 {
		msg.Key = p[1]
	}

	if len(p) > 2 {
		msg.Value = p[2]
	}

	return msg, nil
}
