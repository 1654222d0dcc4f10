package memtable

// splayIterator is an in-order walk over the arena that never
// splays. It keeps the path of nodes whose key is still to be
// yielded, the smallest on top.
type splayIterator struct {
	tree  *tree
	path  []Index
	cur   Index
	begun bool
}

var _ Iterator = (*splayIterator)(nil)

func newSplayIterator(t *tree) *splayIterator {
	return &splayIterator{tree: t, cur: None}
}

func (i *splayIterator) Next() bool {
	if !i.begun {
		i.begun = true
		i.towardsMin(i.tree.root)
	} else if i.cur != None {
		i.towardsMin(i.tree.arena.Right(i.cur))
	}

	if len(i.path) == 0 {
		i.cur = None
		return false
	}

	i.cur, i.path = i.path[len(i.path)-1], i.path[:len(i.path)-1]

	return true
}

// Value returns the current element. Key and Value alias
// the table's storage and must not be modified.
func (i *splayIterator) Value() Element {
	a := i.tree.arena

	return Element{
		Kind:  a.Kind(i.cur),
		Key:   a.Key(i.cur),
		Value: a.Value(i.cur),
	}
}

func (i *splayIterator) towardsMin(idx Index) {
	for idx != None {
		i.path = append(i.path, idx)
		idx = i.tree.arena.Left(idx)
	}
}
