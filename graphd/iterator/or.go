package iterator

import (
	"fmt"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/emirpasic/gods/utils"

	"github.com/wbrown/janus-graphd/graphd"
)

// orHead is an arm's current result waiting in the merge heap
type orHead struct {
	id  graphd.ID
	arm int
}

// orImpl is the sorted union of sorted arms, without duplicates
type orImpl struct {
	arms []*Iterator
	heap *binaryheap.Heap

	primed  int       // arms whose first result has been pulled
	pending []int     // arms to advance before the next pop
	findID  graphd.ID // target of a find in progress, IDNone otherwise

	checkID  graphd.ID
	checkArm int
}

// NewOr returns the union of arms. Every arm must be sorted in the given
// direction; the union owns them. Zero arms give the null iterator and a
// single arm is returned as is.
func NewOr(env *Env, arms []*Iterator, low, high graphd.ID, forward bool) (*Iterator, error) {
	for _, arm := range arms {
		if !arm.Sorted() || arm.Forward() != forward {
			return nil, fmt.Errorf("or: arm %s is not sorted in the union's direction", arm.Kind())
		}
	}
	switch len(arms) {
	case 0:
		return NewNull(env), nil
	case 1:
		return arms[0], nil
	}
	o := newOrImpl(arms, forward)
	it := New(env, o, low, high, forward)
	it.SetSorted(true)
	return it, nil
}

func newOrImpl(arms []*Iterator, forward bool) *orImpl {
	cmp := func(a, b interface{}) int {
		x, y := a.(orHead).id, b.(orHead).id
		if !forward {
			x, y = y, x
		}
		return utils.UInt64Comparator(uint64(x), uint64(y))
	}
	return &orImpl{
		arms:    arms,
		heap:    binaryheap.NewWith(cmp),
		findID:  graphd.IDNone,
		checkID: graphd.IDNone,
	}
}

// Arms returns the union's arms
func (o *orImpl) Arms() []*Iterator { return o.arms }

func (o *orImpl) Kind() string { return "or" }

// fill pulls heads from unprimed and pending arms. It is resumable: an
// arm that returned ErrMore is asked again on the next call.
func (o *orImpl) fill(b *Budget) error {
	for o.primed < len(o.arms) {
		arm := o.arms[o.primed]
		var (
			id  graphd.ID
			err error
		)
		if o.findID != graphd.IDNone {
			id, err = arm.Find(o.findID, b)
		} else {
			id, err = arm.Next(b)
		}
		if err != nil && !IsNo(err) {
			return err
		}
		if err == nil {
			o.heap.Push(orHead{id: id, arm: o.primed})
		}
		o.primed++
	}
	o.findID = graphd.IDNone
	for len(o.pending) > 0 {
		i := o.pending[0]
		id, err := o.arms[i].Next(b)
		if err != nil && !IsNo(err) {
			return err
		}
		if err == nil {
			o.heap.Push(orHead{id: id, arm: i})
		}
		o.pending = o.pending[1:]
	}
	return nil
}

// pop takes the smallest head and every arm sharing it
func (o *orImpl) pop() (graphd.ID, error) {
	v, ok := o.heap.Pop()
	if !ok {
		return graphd.IDNone, ErrNo
	}
	top := v.(orHead)
	o.pending = append(o.pending, top.arm)
	for {
		v, ok := o.heap.Peek()
		if !ok || v.(orHead).id != top.id {
			break
		}
		o.heap.Pop()
		o.pending = append(o.pending, v.(orHead).arm)
	}
	return top.id, nil
}

func (o *orImpl) Next(it *Iterator, b *Budget) (graphd.ID, error) {
	if err := o.fill(b); err != nil {
		return graphd.IDNone, err
	}
	return o.pop()
}

func (o *orImpl) Find(it *Iterator, id graphd.ID, b *Budget) (graphd.ID, error) {
	// A find resumed after ErrMore continues with the same target
	if o.findID != id || o.primed == len(o.arms) {
		o.heap.Clear()
		o.pending = o.pending[:0]
		o.primed = 0
		o.findID = id
	}
	if err := o.fill(b); err != nil {
		return graphd.IDNone, err
	}
	return o.pop()
}

func (o *orImpl) Check(it *Iterator, id graphd.ID, b *Budget) error {
	if o.checkID != id {
		o.checkID = id
		o.checkArm = 0
	}
	for ; o.checkArm < len(o.arms); o.checkArm++ {
		err := o.arms[o.checkArm].Check(id, b)
		if err == nil {
			o.checkID = graphd.IDNone
			return nil
		}
		if !IsNo(err) {
			return err
		}
	}
	o.checkID = graphd.IDNone
	return ErrNo
}

func (o *orImpl) Statistics(it *Iterator, b *Budget) error {
	var s Stats
	for _, arm := range o.arms {
		if err := arm.Statistics(b); err != nil {
			return err
		}
		as := arm.Stats()
		s.N += as.N
		if as.NextCost > s.NextCost {
			s.NextCost = as.NextCost
		}
		s.FindCost += as.FindCost
		s.CheckCost += as.CheckCost
	}
	s.NextCost += Log2(int64(len(o.arms)))
	it.SetStats(s)
	return nil
}

func (o *orImpl) Clone(it *Iterator) (*Iterator, error) {
	arms := make([]*Iterator, 0, len(o.arms))
	for _, arm := range o.arms {
		c, err := arm.Clone()
		if err != nil {
			for _, done := range arms {
				done.Finish()
			}
			return nil, err
		}
		arms = append(arms, c)
	}
	return it.NewClone(newOrImpl(arms, it.Forward())), nil
}

func (o *orImpl) Reset(it *Iterator) {
	for _, arm := range o.arms {
		arm.Reset()
	}
	o.heap.Clear()
	o.pending = o.pending[:0]
	o.primed = 0
	o.findID = graphd.IDNone
	o.checkID = graphd.IDNone
}

func (o *orImpl) FreezeSet(it *Iterator, w *Writer) {
	w.WriteString("or:")
	w.Range(it.Low(), it.High(), it.Forward())
	w.WriteByte(':')
	for _, arm := range o.arms {
		w.Sub(arm, FlagSet)
	}
}

func (o *orImpl) FreezePosition(it *Iterator, w *Writer) { w.Position(it) }
func (o *orImpl) FreezeState(it *Iterator, w *Writer)    { w.WriteByte('-') }

func (o *orImpl) Finish(it *Iterator) {
	for _, arm := range o.arms {
		arm.Finish()
	}
	o.arms = nil
	o.heap.Clear()
}

func init() {
	Register("or", func(c *Cursor) (*Iterator, error) {
		s := c.Set
		low, high, forward, err := s.Range()
		if err != nil {
			return nil, err
		}
		if err := s.Expect(":"); err != nil {
			return nil, err
		}
		var arms []*Iterator
		fail := func(err error) (*Iterator, error) {
			for _, arm := range arms {
				arm.Finish()
			}
			return nil, err
		}
		for !s.Done() {
			arm, err := s.Sub()
			if err != nil {
				return fail(err)
			}
			arms = append(arms, arm)
		}
		it, err := NewOr(s.Env(), arms, low, high, forward)
		if err != nil {
			return fail(s.Semantic("%v", err))
		}
		if err := c.ApplyPosition(it); err != nil {
			it.Finish()
			return nil, err
		}
		if err := c.SkipState(); err != nil {
			it.Finish()
			return nil, err
		}
		return it, nil
	})
}
