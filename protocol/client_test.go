package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		raw  string
		want ClientMessage
	}{
		{"get k", ClientMessage{Type: Get, Key: "k"}},
		{"put k v", ClientMessage{Type: Put, Key: "k", Value: "v"}},
		{"put k hello there", ClientMessage{Type: Put, Key: "k", Value: "hello there"}},
		{"put k", ClientMessage{Type: Delete, Key: "k"}},
		{"delete k", ClientMessage{Type: Delete, Key: "k"}},
		{"put_success k", ClientMessage{Type: PutSuccess, Key: "k"}},
		{"get_success k v", ClientMessage{Type: GetSuccess, Key: "k", Value: "v"}},
		{"get_error", ClientMessage{Type: GetError}},
		{"error", ClientMessage{Type: Error}},
		{"error write_lock", ClientMessage{Type: Error, Key: "write_lock"}},
	}

	for _, tt := range tests {
		got, err := ParseClientMessage(tt.raw)
		if err != nil {
			t.Errorf("ParseClientMessage(%q) failed: %v", tt.raw, err)
			continue
		}

		if got != tt.want {
			t.Errorf("ParseClientMessage(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestParseClientMessageErrors(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{"", ErrInvalidFormat},
		{"hello", ErrInvalidFormat},
		{"get", ErrGetError},
		{"get a b", ErrGetError},
		{"put", ErrPutError},
		{"delete", ErrDeleteError},
		{"delete a b", ErrDeleteError},
		{"put_success", ErrInvalidFormat},
		{"get_success k", ErrInvalidFormat},
	}

	for _, tt := range tests {
		if _, err := ParseClientMessage(tt.raw); !errors.Is(err, tt.want) {
			t.Errorf("ParseClientMessage(%q) error = %v, want %v", tt.raw, err, tt.want)
		}
	}
}

func TestClientMessageBytes(t *testing.T) {
	tests := []struct {
		msg  ClientMessage
		want string
	}{
		{ClientMessage{Type: Put, Key: "k", Value: "v"}, "put k v\r\n"},
		{ClientMessage{Type: GetError, Key: "k"}, "get_error k\r\n"},
		{ClientMessage{Type: PutError}, "put_error\r\n"},
	}

	for _, tt := range tests {
		if got := string(tt.msg.Bytes()); got != tt.want {
			t.Errorf("%s.Bytes() = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestClientTypeString(t *testing.T) {
	if s := DeleteSuccess.String(); s != "delete_success" {
		t.Errorf("DeleteSuccess.String() = %q", s)
	}

	if s := ClientType(0).String(); s != "type(0)" {
		t.Errorf("ClientType(0).String() = %q", s)
	}
}
