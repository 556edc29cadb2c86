package iteratortest

import (
	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// listImpl replays a fixed sequence in the given order. It lets tests
// build unsorted iterators, and sorted ones that break their promise.
type listImpl struct {
	ids    []graphd.ID
	pos    int
	sorted bool
}

// NewList returns an iterator producing ids in order. sorted only sets
// what the iterator claims.
func NewList(env *iterator.Env, sorted bool, ids ...graphd.ID) *iterator.Iterator {
	it := iterator.New(env, &listImpl{ids: ids, sorted: sorted}, 0, graphd.IDMax, true)
	it.SetSorted(sorted)
	return it
}

func (l *listImpl) Kind() string { return "testlist" }

func (l *listImpl) Next(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	if l.pos >= len(l.ids) {
		return graphd.IDNone, iterator.ErrNo
	}
	if err := it.Env().Charge(b, 1); err != nil {
		return graphd.IDNone, err
	}
	l.pos++
	return l.ids[l.pos-1], nil
}

func (l *listImpl) Find(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) (graphd.ID, error) {
	if err := it.Env().Charge(b, 1); err != nil {
		return graphd.IDNone, err
	}
	for l.pos = 0; l.pos < len(l.ids); l.pos++ {
		if l.ids[l.pos] >= id {
			l.pos++
			return l.ids[l.pos-1], nil
		}
	}
	return graphd.IDNone, iterator.ErrNo
}

func (l *listImpl) Check(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) error {
	if err := it.Env().Charge(b, 1); err != nil {
		return err
	}
	for _, x := range l.ids {
		if x == id {
			return nil
		}
	}
	return iterator.ErrNo
}

func (l *listImpl) Statistics(it *iterator.Iterator, b *iterator.Budget) error {
	it.SetStats(iterator.Stats{N: int64(len(l.ids)), NextCost: 1, FindCost: 1, CheckCost: 1})
	return nil
}

func (l *listImpl) Clone(it *iterator.Iterator) (*iterator.Iterator, error) {
	return it.NewClone(&listImpl{ids: l.ids, sorted: l.sorted}), nil
}

func (l *listImpl) Reset(it *iterator.Iterator) { l.pos = 0 }

// FreezeSet writes testlist:[s](id,...)
func (l *listImpl) FreezeSet(it *iterator.Iterator, w *iterator.Writer) {
	w.WriteString("testlist:")
	if l.sorted {
		w.WriteByte('s')
	}
	w.WriteByte('(')
	for i, id := range l.ids {
		if i > 0 {
			w.WriteByte(',')
		}
		w.ID(id)
	}
	w.WriteByte(')')
}

func (l *listImpl) FreezePosition(it *iterator.Iterator, w *iterator.Writer) { w.Position(it) }
func (l *listImpl) FreezeState(it *iterator.Iterator, w *iterator.Writer)    { w.WriteByte('-') }
func (l *listImpl) Finish(it *iterator.Iterator)                             {}

func init() {
	iterator.Register("testlist", func(c *iterator.Cursor) (*iterator.Iterator, error) {
		s := c.Set
		sorted := s.Accept("s")
		if err := s.Expect("("); err != nil {
			return nil, err
		}
		var ids []graphd.ID
		for !s.Accept(")") {
			if len(ids) > 0 {
				if err := s.Expect(","); err != nil {
					return nil, err
				}
			}
			id, err := s.ID()
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		it := NewList(s.Env(), sorted, ids...)
		if err := c.ApplyPosition(it); err != nil {
			return nil, err
		}
		return it, c.SkipState()
	})
}
