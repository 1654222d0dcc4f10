package protocol

import (
	"errors"
	"net"
	"testing"
)

func pair(t *testing.T) (client, server Protocol[ClientMessage]) {
	t.Helper()

	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}

	defer l.Close()

	accepted := make(chan *net.TCPConn, 1)

	go func() {
		c, err := l.AcceptTCP()
		if err != nil {
			t.Error(err)
		}

		accepted <- c
	}()

	c, err := Dial(l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	s := <-accepted
	if s == nil {
		t.FailNow()
	}

	return ForClient(c), ForClient(s)
}

func receive(t *testing.T, p Protocol[ClientMessage]) ClientMessage {
	t.Helper()

	for {
		m, err := p.Receive()
		if err != nil {
			t.Fatalf("Receive() failed: %v", err)
		}

		if m != nil {
			return *m
		}
	}
}

func TestLineProtocolRoundTrip(t *testing.T) {
	client, server := pair(t)
	defer client.Close()
	defer server.Close()

	sent := []ClientMessage{
		{Type: Put, Key: "k", Value: "hello there"},
		{Type: Get, Key: "k"},
		{Type: Delete, Key: "k"},
	}

	for _, m := range sent {
		if err := client.Send(m); err != nil {
			t.Fatalf("Send(%s) failed: %v", m, err)
		}
	}

	for _, want := range sent {
		if got := receive(t, server); got != want {
			t.Errorf("Receive() = %s, want %s", got, want)
		}
	}
}

func TestLineProtocolClose(t *testing.T) {
	client, server := pair(t)
	defer server.Close()

	if err := client.Close(); err != nil {
		t.Fatal(err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}

	if !client.Closed() {
		t.Error("Closed() = false after Close()")
	}

	if err := client.Send(ClientMessage{Type: Get, Key: "k"}); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Send() after Close() = %v, want %v", err, ErrConnClosed)
	}

	if _, err := server.Receive(); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Receive() from a closed peer = %v, want %v", err, ErrConnClosed)
	}
}
