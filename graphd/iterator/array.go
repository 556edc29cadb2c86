package iterator

import (
	"fmt"
	"sort"

	"github.com/wbrown/janus-graphd/graphd"
)

type arraySource uint8

const (
	sourceFixed arraySource = iota
	sourceFanIn
	sourceVIP
)

var arrayKinds = [...]string{"fixed", "fanin", "vip"}

// arrayImpl walks a sorted id list: a fixed array, or the fan-in or VIP
// list of the store, loaded on first use.
type arrayImpl struct {
	source  arraySource
	linkage graphd.Linkage
	target  graphd.ID // fan-in target, or VIP endpoint
	typ     graphd.ID // VIP type

	ids    []graphd.ID // ascending; shared by clones
	loaded bool
	lo, hi int // window of ids inside [low, high)
	cur    int // results consumed in iteration direction
}

// NewFixed returns a sorted iterator over ids restricted to [low, high).
// ids need not be sorted or distinct; the slice is copied.
func NewFixed(env *Env, ids []graphd.ID, low, high graphd.ID, forward bool) *Iterator {
	sorted := make([]graphd.ID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sorted = dedupSorted(sorted)

	a := &arrayImpl{source: sourceFixed, ids: sorted, loaded: true}
	it := New(env, a, low, high, forward)
	it.SetSorted(true)
	a.setWindow(it)
	it.SetStats(a.stats(it))
	return it
}

// NewFanIn returns the ids whose linkage l points at target, ascending
func NewFanIn(env *Env, l graphd.Linkage, target graphd.ID, low, high graphd.ID, forward bool) *Iterator {
	it := New(env, &arrayImpl{source: sourceFanIn, linkage: l, target: target}, low, high, forward)
	it.SetSorted(true)
	return it
}

// NewVIP returns the ids whose endpoint linkage l points at endpoint and
// whose type is typ, ascending.
func NewVIP(env *Env, l graphd.Linkage, endpoint, typ graphd.ID, low, high graphd.ID, forward bool) (*Iterator, error) {
	if !l.IsEndpoint() {
		return nil, fmt.Errorf("vip index needs an endpoint linkage, got %s", l)
	}
	it := New(env, &arrayImpl{source: sourceVIP, linkage: l, target: endpoint, typ: typ}, low, high, forward)
	it.SetSorted(true)
	return it, nil
}

func dedupSorted(ids []graphd.ID) []graphd.ID {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

func (a *arrayImpl) Kind() string { return arrayKinds[a.source] }

func (a *arrayImpl) load(it *Iterator, b *Budget) error {
	if a.loaded {
		return nil
	}
	env := it.Env()
	if err := env.Charge(b, env.Tuning.CostIndexOpen); err != nil {
		return err
	}
	var (
		ids []graphd.ID
		err error
	)
	switch a.source {
	case sourceFanIn:
		ids, err = env.Store.FanIn(a.linkage, a.target)
	case sourceVIP:
		ids, err = env.Store.VIP(a.linkage, a.target, a.typ)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", a.Kind(), err)
	}
	a.ids = ids
	a.loaded = true
	a.setWindow(it)
	return nil
}

func (a *arrayImpl) setWindow(it *Iterator) {
	low, high := it.Low(), it.High()
	a.lo = sort.Search(len(a.ids), func(i int) bool { return a.ids[i] >= low })
	a.hi = sort.Search(len(a.ids), func(i int) bool { return a.ids[i] >= high })
	if a.hi < a.lo {
		a.hi = a.lo
	}
}

// window returns the in-range ids, ascending
func (a *arrayImpl) window(it *Iterator) []graphd.ID {
	return a.ids[a.lo:a.hi]
}

func (a *arrayImpl) stats(it *Iterator) Stats {
	n := int64(a.hi - a.lo)
	step := it.Env().Tuning.CostArrayStep
	return Stats{N: n, NextCost: step, FindCost: step * Log2(n), CheckCost: step * Log2(n)}
}

func (a *arrayImpl) Next(it *Iterator, b *Budget) (graphd.ID, error) {
	if err := a.load(it, b); err != nil {
		return graphd.IDNone, err
	}
	if err := it.Env().Charge(b, it.Env().Tuning.CostArrayStep); err != nil {
		return graphd.IDNone, err
	}
	if a.cur >= a.hi-a.lo {
		return graphd.IDNone, ErrNo
	}
	var id graphd.ID
	if it.Forward() {
		id = a.ids[a.lo+a.cur]
	} else {
		id = a.ids[a.hi-1-a.cur]
	}
	a.cur++
	return id, nil
}

func (a *arrayImpl) Find(it *Iterator, id graphd.ID, b *Budget) (graphd.ID, error) {
	if err := a.load(it, b); err != nil {
		return graphd.IDNone, err
	}
	w := a.window(it)
	if err := it.Env().Charge(b, it.Env().Tuning.CostArrayStep*Log2(int64(len(w)))); err != nil {
		return graphd.IDNone, err
	}
	if it.Forward() {
		a.cur = sort.Search(len(w), func(i int) bool { return w[i] >= id })
	} else {
		above := sort.Search(len(w), func(i int) bool { return w[i] > id })
		a.cur = len(w) - above
	}
	return a.Next(it, b)
}

func (a *arrayImpl) Check(it *Iterator, id graphd.ID, b *Budget) error {
	if err := a.load(it, b); err != nil {
		return err
	}
	w := a.window(it)
	if err := it.Env().Charge(b, it.Env().Tuning.CostArrayStep*Log2(int64(len(w)))); err != nil {
		return err
	}
	i := sort.Search(len(w), func(i int) bool { return w[i] >= id })
	if i < len(w) && w[i] == id {
		return nil
	}
	return ErrNo
}

func (a *arrayImpl) Statistics(it *Iterator, b *Budget) error {
	if err := a.load(it, b); err != nil {
		return err
	}
	it.SetStats(a.stats(it))
	return nil
}

func (a *arrayImpl) Clone(it *Iterator) (*Iterator, error) {
	c := *a
	c.cur = 0
	return it.NewClone(&c), nil
}

func (a *arrayImpl) Reset(it *Iterator) {
	a.cur = 0
}

// Pinned reports the constant every result carries on l
func (a *arrayImpl) Pinned(l graphd.Linkage) (graphd.ID, bool) {
	switch {
	case a.source == sourceFixed:
		return graphd.IDNone, false
	case l == a.linkage:
		return a.target, true
	case a.source == sourceVIP && l == graphd.LinkType:
		return a.typ, true
	}
	return graphd.IDNone, false
}

func (a *arrayImpl) FreezeSet(it *Iterator, w *Writer) {
	w.WriteString(a.Kind())
	w.WriteByte(':')
	w.Range(it.Low(), it.High(), it.Forward())
	w.WriteByte(':')
	switch a.source {
	case sourceFixed:
		w.WriteByte('(')
		for i, id := range a.window(it) {
			if i > 0 {
				w.WriteByte(',')
			}
			w.ID(id)
		}
		w.WriteByte(')')
	case sourceFanIn:
		w.Linkage(a.linkage)
		w.WriteByte('=')
		w.GUID(a.target)
	case sourceVIP:
		w.Linkage(a.linkage)
		w.WriteByte('=')
		w.GUID(a.target)
		w.WriteByte('+')
		w.GUID(a.typ)
	}
}

func (a *arrayImpl) FreezePosition(it *Iterator, w *Writer) { w.Position(it) }
func (a *arrayImpl) FreezeState(it *Iterator, w *Writer)    { w.WriteByte('-') }

func (a *arrayImpl) Finish(it *Iterator) {
	a.ids = nil
}

func thawArray(source arraySource) ThawFunc {
	return func(c *Cursor) (*Iterator, error) {
		s := c.Set
		low, high, forward, err := s.Range()
		if err != nil {
			return nil, err
		}
		if err := s.Expect(":"); err != nil {
			return nil, err
		}
		var it *Iterator
		switch source {
		case sourceFixed:
			ids, err := scanIDList(s)
			if err != nil {
				return nil, err
			}
			it = NewFixed(s.Env(), ids, low, high, forward)
		case sourceFanIn, sourceVIP:
			l, err := s.Linkage()
			if err != nil {
				return nil, err
			}
			if err := s.Expect("="); err != nil {
				return nil, err
			}
			target, err := s.GUID()
			if err != nil {
				return nil, err
			}
			if source == sourceFanIn {
				it = NewFanIn(s.Env(), l, target, low, high, forward)
				break
			}
			if err := s.Expect("+"); err != nil {
				return nil, err
			}
			typ, err := s.GUID()
			if err != nil {
				return nil, err
			}
			if it, err = NewVIP(s.Env(), l, target, typ, low, high, forward); err != nil {
				return nil, s.Semantic("%v", err)
			}
		}
		if err := s.End(); err != nil {
			return nil, err
		}
		if err := c.ApplyPosition(it); err != nil {
			return nil, err
		}
		if err := c.SkipState(); err != nil {
			return nil, err
		}
		return it, nil
	}
}

// scanIDList reads "(id,id,...)"
func scanIDList(s *Scanner) ([]graphd.ID, error) {
	if err := s.Expect("("); err != nil {
		return nil, err
	}
	var ids []graphd.ID
	if s.Accept(")") {
		return ids, nil
	}
	for {
		id, err := s.ID()
		if err != nil {
			return nil, err
		}
		if id == graphd.IDNone {
			return nil, s.Semantic("fixed array holds no id")
		}
		ids = append(ids, id)
		if s.Accept(")") {
			return ids, nil
		}
		if err := s.Expect(","); err != nil {
			return nil, err
		}
	}
}

func init() {
	Register("fixed", thawArray(sourceFixed))
	Register("fanin", thawArray(sourceFanIn))
	Register("vip", thawArray(sourceVIP))
}
