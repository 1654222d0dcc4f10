package data

import "fmt"

// Result is the answer of a lookup at any level of the store.
// Tombstoned and Absent are different: a tombstone means the key was
// deleted at this level, Absent means this level knows nothing about it
// and a lower level has to be consulted.
type (
	Result struct {
		Kind  ResultKind
		Value []byte
	}

	ResultKind uint8
)

const (
	Found ResultKind = iota + 1
	Tombstoned
	Absent
)

var (
	resultKindStr = []string{"found", "tombstoned", "absent"}
)

func (k ResultKind) String() string {
	if k < Found || k > Absent {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}

	return resultKindStr[k-1]
}

func (r Result) String() string {
	switch r.Kind {
	case Absent, Tombstoned:
		return fmt.Sprintf("(%s)", r.Kind)
	case Found:
		return fmt.Sprintf("(%s, %q)", r.Kind, string(r.Value))
	default:
		return ""
	}
}
