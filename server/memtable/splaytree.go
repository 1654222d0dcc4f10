package memtable

import "github.com/nStangl/splaykv/server/data"

// SplayTree is a memtable backed by an arena-allocated splay tree.
// Every Set, Del and Get moves the touched key to the root, so
// recently used keys are cheap to reach again. It is not safe for
// concurrent use, and must not be mutated while being iterated.
type SplayTree struct {
	tree *tree
}

var _ Table = (*SplayTree)(nil)

func NewSplayTree() *SplayTree {
	return &SplayTree{tree: newTree(0)}
}

// NewSplayTreeWithCapacity preallocates room for n nodes.
func NewSplayTreeWithCapacity(n int) *SplayTree {
	return &SplayTree{tree: newTree(n)}
}

func (t *SplayTree) Get(key []byte) data.Result {
	i, ok := t.tree.find(key)
	if !ok {
		return data.Result{Kind: data.Absent}
	}

	return t.result(i)
}

func (t *SplayTree) Peek(key []byte) data.Result {
	i, ok := t.tree.peek(key)
	if !ok {
		return data.Result{Kind: data.Absent}
	}

	return t.result(i)
}

// Set stores a copy of key and value.
func (t *SplayTree) Set(key, value []byte) {
	t.tree.upsert(key, clone(value), data.Found)
}

// Del records a tombstone for key, whether or not it was ever set.
func (t *SplayTree) Del(key []byte) {
	t.tree.upsert(key, nil, data.Tombstoned)
}

func (t *SplayTree) Size() int { return t.tree.arena.Len() }

func (t *SplayTree) Bytes() int { return t.tree.arena.Bytes() }

// Depth is the height of the tree.
func (t *SplayTree) Depth() int { return t.tree.depth() }

func (t *SplayTree) Iterator() Iterator {
	return newSplayIterator(t.tree)
}

func (t *SplayTree) result(i Index) data.Result {
	a := t.tree.arena

	if a.Kind(i) == data.Tombstoned {
		return data.Result{Kind: data.Tombstoned}
	}

	return data.Result{Kind: data.Found, Value: a.Value(i)}
}
