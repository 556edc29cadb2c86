package linksto

import (
	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

func (l *linkstoImpl) Next(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	if l.sh.method == MethodUnspecified || !it.StatsDone() {
		if err := l.Statistics(it, b); err != nil {
			return graphd.IDNone, err
		}
		if it.Impl() != iterator.Impl(l) {
			return it.Impl().Next(it, b)
		}
	}
	switch l.sh.method {
	case MethodSubFanIn:
		return l.nextSubFanIn(it, b)
	case MethodTypeCheck:
		return l.nextTypeCheck(it, b)
	}
	it.Env().Invariant("linksto: no production method after statistics")
	return graphd.IDNone, nil
}

// nextSubFanIn walks the fan-in of each sub result in turn. Every id has
// one L value, so no id appears under two targets.
func (l *linkstoImpl) nextSubFanIn(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	env := it.Env()
	for {
		if env.Suspend(b) {
			return graphd.IDNone, iterator.ErrMore
		}
		if l.fan == nil {
			t, err := l.sub.Next(b)
			if err != nil {
				return graphd.IDNone, err
			}
			l.fan, l.want = l.lookup(it, t)
			continue
		}
		// a filtered id is checked right after it is taken
		var hold int64
		if l.want.Valid() {
			hold = env.FollowCost()
			if err := env.Hold(b, hold); err != nil {
				return graphd.IDNone, err
			}
		}
		x, err := l.fan.Next(b)
		b.Release(hold)
		if err != nil {
			if !iterator.IsNo(err) {
				return graphd.IDNone, err
			}
			l.fan.Finish()
			l.fan, l.want = nil, noHint
			continue
		}
		ok, err := l.wantOK(it, b, x, l.want)
		if err != nil {
			return graphd.IDNone, err
		}
		if ok {
			return x, nil
		}
	}
}

// nextTypeCheck walks the candidate index, returning candidates whose
// target the sub accepts. The candidate under test survives ErrMore.
func (l *linkstoImpl) nextTypeCheck(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	env := it.Env()
	if l.cand == nil {
		l.cand = l.candidates(it)
	}
	for {
		if env.Suspend(b) {
			return graphd.IDNone, iterator.ErrMore
		}
		if l.pending == graphd.IDNone {
			x, err := l.cand.Next(b)
			if err != nil {
				return graphd.IDNone, err
			}
			l.pending = x
			continue
		}
		ok, err := l.matches(it, b, l.pending, false)
		if err != nil {
			return graphd.IDNone, err
		}
		x := l.pending
		l.pending = graphd.IDNone
		if ok {
			return x, nil
		}
	}
}

// Find positions the candidate index at id and continues from there.
// Only typecheck is sorted; the handle rejects Find on subfanin.
func (l *linkstoImpl) Find(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) (graphd.ID, error) {
	if l.sh.method == MethodUnspecified {
		if err := l.Statistics(it, b); err != nil {
			return graphd.IDNone, err
		}
		if it.Impl() != iterator.Impl(l) {
			return it.Impl().Find(it, id, b)
		}
	}
	if l.sh.method != MethodTypeCheck {
		return graphd.IDNone, iterator.ErrNotSorted
	}
	if l.cand == nil {
		l.cand = l.candidates(it)
	}
	if l.findID != id {
		x, err := l.cand.Find(id, b)
		if err != nil {
			return graphd.IDNone, err
		}
		l.findID, l.pending = id, x
	}
	x, err := l.nextTypeCheck(it, b)
	if !iterator.IsMore(err) {
		l.findID = graphd.IDNone
	}
	return x, err
}

func (l *linkstoImpl) Check(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) error {
	ok, err := l.matches(it, b, id, true)
	if err != nil {
		return err
	}
	if !ok {
		return iterator.ErrNo
	}
	return nil
}
