package memtable

import (
	"errors"
	"math"

	"github.com/nStangl/splaykv/server/data"
)

type (
	// Index addresses a node slot inside an Arena
	Index uint32

	// Arena owns every node of a tree. Nodes refer to each other
	// only by Index, so a rotation is a short sequence of writes
	// to one slot at a time and never needs two live node references.
	Arena struct {
		nodes []node
		free  []Index
		bytes int
	}

	node struct {
		key    []byte
		value  []byte
		kind   data.ResultKind
		left   Index
		right  Index
		parent Index
	}
)

// None marks a missing child or parent
const None Index = math.MaxUint32

// Rough per-slot bookkeeping cost: two slice headers,
// the kind tag and three indices.
const nodeOverhead = 2*24 + 1 + 3*4

var (
	// ErrArenaExhausted is raised (as a panic) once every Index is taken.
	// Callers are expected to flush long before that.
	ErrArenaExhausted = errors.New("memtable arena exhausted")

	// maxSlots is the number of addressable slots, None excluded
	maxSlots = uint64(None)
)

func NewArena(capacity int) *Arena {
	return &Arena{nodes: make([]node, 0, capacity)}
}

// Allocate stores a detached node and returns its slot,
// reusing a freed slot when one is available.
func (a *Arena) Allocate(key, value []byte, kind data.ResultKind) Index {
	n := node{
		key:    key,
		value:  value,
		kind:   kind,
		left:   None,
		right:  None,
		parent: None,
	}

	a.bytes += nodeOverhead + len(key) + len(value)

	if l := len(a.free); l > 0 {
		var i Index
		i, a.free = a.free[l-1], a.free[:l-1]
		a.nodes[i] = n

		return i
	}

	if uint64(len(a.nodes)) >= maxSlots {
		panic(ErrArenaExhausted)
	}

	a.nodes = append(a.nodes, n)

	return Index(len(a.nodes) - 1)
}

// Free releases a slot for reuse. The caller must have
// unlinked it from every other node first.
func (a *Arena) Free(i Index) {
	n := &a.nodes[i]

	a.bytes -= nodeOverhead + len(n.key) + len(n.value)

	*n = node{left: None, right: None, parent: None}
	a.free = append(a.free, i)
}

// Len is the number of slots in use
func (a *Arena) Len() int { return len(a.nodes) - len(a.free) }

// Bytes approximates the memory held by live nodes
func (a *Arena) Bytes() int { return a.bytes }

func (a *Arena) Key(i Index) []byte           { return a.nodes[i].key }
func (a *Arena) Value(i Index) []byte         { return a.nodes[i].value }
func (a *Arena) Kind(i Index) data.ResultKind { return a.nodes[i].kind }
func (a *Arena) Left(i Index) Index           { return a.nodes[i].left }
func (a *Arena) Right(i Index) Index          { return a.nodes[i].right }
func (a *Arena) Parent(i Index) Index         { return a.nodes[i].parent }

func (a *Arena) SetLeft(i, to Index)   { a.nodes[i].left = to }
func (a *Arena) SetRight(i, to Index)  { a.nodes[i].right = to }
func (a *Arena) SetParent(i, to Index) { a.nodes[i].parent = to }

// SetValue replaces the value of a node in place
func (a *Arena) SetValue(i Index, value []byte, kind data.ResultKind) {
	n := &a.nodes[i]

	a.bytes += len(value) - len(n.value)

	n.value = value
	n.kind = kind
}
