package iterator

import (
	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/storage"
)

// allImpl produces every stored primitive id in [low, high). Its scan
// point is part of its cursor state, so a thawed scan over a sparse
// store does not rescan the holes already walked.
type allImpl struct {
	next    graphd.ID // next candidate
	finding graphd.ID // target of an interrupted Find, or IDNone
	started bool
}

// NewAll returns a sorted iterator over all primitives in [low, high)
func NewAll(env *Env, low, high graphd.ID, forward bool) *Iterator {
	it := New(env, &allImpl{finding: graphd.IDNone}, low, high, forward)
	it.SetSorted(true)
	return it
}

func (a *allImpl) Kind() string { return "all" }

// end is one past the last candidate, bounded by the store horizon
func (a *allImpl) end(it *Iterator) graphd.ID {
	end := it.Env().Store.Horizon()
	if it.High() < end {
		end = it.High()
	}
	return end
}

func (a *allImpl) Next(it *Iterator, b *Budget) (graphd.ID, error) {
	env := it.Env()
	end := a.end(it)
	if !a.started {
		a.started = true
		if it.Forward() {
			a.next = it.Low()
		} else {
			a.next = end - 1
		}
	}
	for {
		if it.Forward() && a.next >= end {
			return graphd.IDNone, ErrNo
		}
		if !it.Forward() && (end == 0 || a.next < it.Low() || a.next >= end) {
			return graphd.IDNone, ErrNo
		}
		if env.Suspend(b) {
			return graphd.IDNone, ErrMore
		}
		id := a.next
		_, err := env.Primitive(b, id)
		if IsMore(err) {
			return graphd.IDNone, err
		}
		if it.Forward() {
			a.next++
		} else {
			a.next--
		}
		if err == nil {
			a.finding = graphd.IDNone
			return id, nil
		}
		if !storage.IsNotFound(err) {
			return graphd.IDNone, err
		}
	}
}

// Find continues an interrupted search for the same id where it stopped
func (a *allImpl) Find(it *Iterator, id graphd.ID, b *Budget) (graphd.ID, error) {
	if !a.started || a.finding != id {
		a.next = id
		a.finding = id
		a.started = true
	}
	return a.Next(it, b)
}

func (a *allImpl) Check(it *Iterator, id graphd.ID, b *Budget) error {
	if id >= a.end(it) {
		return ErrNo
	}
	_, err := it.Env().Primitive(b, id)
	if err == nil {
		return nil
	}
	if storage.IsNotFound(err) {
		return ErrNo
	}
	return err
}

func (a *allImpl) Statistics(it *Iterator, b *Budget) error {
	var n int64
	if end := a.end(it); end > it.Low() {
		n = int64(end - it.Low())
	}
	cost := it.Env().Tuning.CostPrimitive
	it.SetStats(Stats{N: n, NextCost: cost, FindCost: cost, CheckCost: cost})
	return nil
}

func (a *allImpl) Clone(it *Iterator) (*Iterator, error) {
	return it.NewClone(&allImpl{finding: graphd.IDNone}), nil
}

func (a *allImpl) Reset(it *Iterator) {
	a.started = false
	a.finding = graphd.IDNone
}

func (a *allImpl) FreezeSet(it *Iterator, w *Writer) {
	w.WriteString("all:")
	w.Range(it.Low(), it.High(), it.Forward())
}

func (a *allImpl) FreezePosition(it *Iterator, w *Writer) { w.Position(it) }

// FreezeState writes NEXT,FINDING once the scan started, else "-"
func (a *allImpl) FreezeState(it *Iterator, w *Writer) {
	if !a.started {
		w.WriteByte('-')
		return
	}
	w.ID(a.next)
	w.WriteByte(',')
	w.ID(a.finding)
}

func (a *allImpl) Finish(it *Iterator) {}

func thawAll(c *Cursor) (*Iterator, error) {
	low, high, forward, err := c.Set.Range()
	if err != nil {
		return nil, err
	}
	if err := c.Set.End(); err != nil {
		return nil, err
	}
	it := NewAll(c.Set.Env(), low, high, forward)
	if c.State == nil || c.State.Rest() == "-" {
		if err := c.ApplyPosition(it); err != nil {
			return nil, err
		}
		return it, c.SkipState()
	}
	a := it.Impl().(*allImpl)
	if a.next, err = c.State.ID(); err != nil {
		return nil, err
	}
	if err := c.State.Expect(","); err != nil {
		return nil, err
	}
	if a.finding, err = c.State.ID(); err != nil {
		return nil, err
	}
	if err := c.State.End(); err != nil {
		return nil, err
	}
	a.started = true
	if c.Position == nil {
		return it, nil
	}
	last, ordinal, eof, err := c.Position.Position()
	if err != nil {
		return nil, err
	}
	if err := c.Position.End(); err != nil {
		return nil, err
	}
	if eof {
		it.Reposition(last, ordinal, eof)
		return it, nil
	}
	// the scan point already accounts for what was produced
	it.SetPosition(last, ordinal)
	return it, nil
}

// nullImpl is the empty iterator
type nullImpl struct{}

// NewNull returns an iterator without results
func NewNull(env *Env) *Iterator {
	it := New(env, nullImpl{}, 0, graphd.IDMax, true)
	it.SetSorted(true)
	it.SetStats(Stats{})
	return it
}

// IsNull reports whether it is known to be empty
func IsNull(it *Iterator) bool {
	_, ok := it.Impl().(nullImpl)
	return ok
}

func (nullImpl) Kind() string { return "null" }

func (nullImpl) Next(it *Iterator, b *Budget) (graphd.ID, error) {
	return graphd.IDNone, ErrNo
}

func (nullImpl) Find(it *Iterator, id graphd.ID, b *Budget) (graphd.ID, error) {
	return graphd.IDNone, ErrNo
}

func (nullImpl) Check(it *Iterator, id graphd.ID, b *Budget) error { return ErrNo }

func (nullImpl) Statistics(it *Iterator, b *Budget) error {
	it.SetStats(Stats{})
	return nil
}

func (nullImpl) Clone(it *Iterator) (*Iterator, error) { return it.NewClone(nullImpl{}), nil }
func (nullImpl) Reset(it *Iterator)                    {}
func (nullImpl) FreezeSet(it *Iterator, w *Writer)     { w.WriteString("null:") }
func (nullImpl) FreezePosition(it *Iterator, w *Writer) {
	w.Position(it)
}
func (nullImpl) FreezeState(it *Iterator, w *Writer) { w.WriteByte('-') }
func (nullImpl) Finish(it *Iterator)                 {}

func init() {
	Register("all", thawAll)
	Register("null", func(c *Cursor) (*Iterator, error) {
		if err := c.Set.End(); err != nil {
			return nil, err
		}
		it := NewNull(c.Set.Env())
		if err := c.ApplyPosition(it); err != nil {
			return nil, err
		}
		return it, c.SkipState()
	})
}
