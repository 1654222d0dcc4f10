package memtable

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/nStangl/splaykv/server/data"
)

// RedBlackTree is a memtable on top of the gods red-black tree.
// Keys are kept as strings, whose ordering in Go is the same
// unsigned byte-wise order as bytes.Compare.
type (
	RedBlackTree struct {
		tree  *redblacktree.Tree
		bytes int
	}

	RedBlackTreeIterator struct {
		iter redblacktree.Iterator
	}
)

var (
	_ Table    = (*RedBlackTree)(nil)
	_ Iterator = (*RedBlackTreeIterator)(nil)
)

func NewRedBlackTree() *RedBlackTree {
	return &RedBlackTree{tree: redblacktree.NewWithStringComparator()}
}

func (t *RedBlackTree) Get(key []byte) data.Result {
	v, ok := t.tree.Get(string(key))
	if !ok {
		return data.Result{Kind: data.Absent}
	}

	return v.(data.Result)
}

// Peek is Get, the red-black tree never changes shape on reads.
func (t *RedBlackTree) Peek(key []byte) data.Result { return t.Get(key) }

func (t *RedBlackTree) Set(key, value []byte) {
	t.put(string(key), data.Result{Kind: data.Found, Value: clone(value)})
}

func (t *RedBlackTree) Del(key []byte) {
	t.put(string(key), data.Result{Kind: data.Tombstoned})
}

func (t *RedBlackTree) Size() int { return t.tree.Size() }

func (t *RedBlackTree) Bytes() int { return t.bytes }

func (t *RedBlackTree) Iterator() Iterator {
	return &RedBlackTreeIterator{iter: t.tree.Iterator()}
}

func (t *RedBlackTree) put(key string, r data.Result) {
	if n := t.tree.GetNode(key); n != nil {
		t.bytes += len(r.Value) - len(n.Value.(data.Result).Value)
		n.Value = r

		return
	}

	t.bytes += nodeOverhead + len(key) + len(r.Value)
	t.tree.Put(key, r)
}

func (t *RedBlackTreeIterator) Next() bool { return t.iter.Next() }

func (t *RedBlackTreeIterator) Value() Element {
	var (
		n = t.iter.Node()
		k = n.Key.(string)
		v = n.Value.(data.Result)
	)

	return Element{
		Kind:  v.Kind,
		Key:   []byte(k),
		Value: v.Value,
	}
}
