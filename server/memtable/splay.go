package memtable

import (
	"bytes"

	"github.com/nStangl/splaykv/server/data"
)

// tree is a bottom-up splay tree over byte keys. Every node lives
// in the arena; the tree itself only remembers the root slot.
// Keys are ordered by bytes.Compare and are unique.
type tree struct {
	arena *Arena
	root  Index
}

func newTree(capacity int) *tree {
	return &tree{arena: NewArena(capacity), root: None}
}

// access descends from the root like a plain BST search and splays
// either the matching node or, on a miss, the last node visited.
// It returns the new root and the comparison of key against its key.
func (t *tree) access(key []byte) (Index, int) {
	if t.root == None {
		return None, 0
	}

	var (
		a   = t.arena
		cur = t.root
		cmp int
	)

	for {
		cmp = bytes.Compare(key, a.Key(cur))

		next := None
		switch {
		case cmp < 0:
			next = a.Left(cur)
		case cmp > 0:
			next = a.Right(cur)
		}

		if next == None {
			break
		}

		cur = next
	}

	t.splay(cur)

	return cur, cmp
}

// splay lifts x to the root.
func (t *tree) splay(x Index) {
	a := t.arena

	for {
		p := a.Parent(x)
		if p == None {
			break
		}

		g := a.Parent(p)

		switch {
		case g == None:
			// zig
			t.rotate(x)
		case (a.Left(g) == p) == (a.Left(p) == x):
			// zig-zig
			t.rotate(p)
			t.rotate(x)
		default:
			// zig-zag
			t.rotate(x)
			t.rotate(x)
		}
	}
}

// rotate moves x one level up, above its parent. All link values
// are read before any of them is written.
func (t *tree) rotate(x Index) {
	var (
		a      = t.arena
		p      = a.Parent(x)
		g      = a.Parent(p)
		xLeft  = a.Left(p) == x
		gLeft  = g != None && a.Left(g) == p
		middle Index
	)

	if xLeft {
		middle = a.Right(x)
		a.SetLeft(p, middle)
		a.SetRight(x, p)
	} else {
		middle = a.Left(x)
		a.SetRight(p, middle)
		a.SetLeft(x, p)
	}

	if middle != None {
		a.SetParent(middle, p)
	}

	a.SetParent(p, x)
	a.SetParent(x, g)

	switch {
	case g == None:
		t.root = x
	case gLeft:
		a.SetLeft(g, x)
	default:
		a.SetRight(g, x)
	}
}

// upsert overwrites the value of key or inserts a copy of key as the
// new root. It reports whether a node was allocated.
func (t *tree) upsert(key, value []byte, kind data.ResultKind) bool {
	a := t.arena

	root, cmp := t.access(key)
	if root == None {
		t.root = a.Allocate(clone(key), value, kind)
		return true
	}

	if cmp == 0 {
		a.SetValue(root, value, kind)
		return false
	}

	n := a.Allocate(clone(key), value, kind)

	if cmp < 0 {
		// everything left of the old root is smaller than key too
		left := a.Left(root)

		a.SetLeft(n, left)
		a.SetRight(n, root)
		a.SetLeft(root, None)

		if left != None {
			a.SetParent(left, n)
		}
	} else {
		right := a.Right(root)

		a.SetRight(n, right)
		a.SetLeft(n, root)
		a.SetRight(root, None)

		if right != None {
			a.SetParent(right, n)
		}
	}

	a.SetParent(root, n)
	t.root = n

	return true
}

// find splays key (or its insertion point) and reports whether it is present.
func (t *tree) find(key []byte) (Index, bool) {
	root, cmp := t.access(key)
	if root == None || cmp != 0 {
		return None, false
	}

	return root, true
}

// peek looks key up without touching the shape of the tree.
func (t *tree) peek(key []byte) (Index, bool) {
	var (
		a   = t.arena
		cur = t.root
	)

	for cur != None {
		switch cmp := bytes.Compare(key, a.Key(cur)); {
		case cmp < 0:
			cur = a.Left(cur)
		case cmp > 0:
			cur = a.Right(cur)
		default:
			return cur, true
		}
	}

	return None, false
}

// depth is the number of nodes on the longest root-to-leaf path.
func (t *tree) depth() int {
	if t.root == None {
		return 0
	}

	type frame struct {
		idx   Index
		depth int
	}

	var (
		a     = t.arena
		max   int
		stack = []frame{{idx: t.root, depth: 1}}
	)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > max {
			max = f.depth
		}

		if l := a.Left(f.idx); l != None {
			stack = append(stack, frame{idx: l, depth: f.depth + 1})
		}

		if r := a.Right(f.idx); r != None {
			stack = append(stack, frame{idx: r, depth: f.depth + 1})
		}
	}

	return max
}
