package isa

import (
	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

func (i *isaImpl) Next(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	if !i.sh.stats.Valid || i.sh.method == MethodUnspecified {
		if err := i.Statistics(it, b); err != nil {
			return graphd.IDNone, err
		}
		if it.Impl() != iterator.Impl(i) {
			return it.Impl().Next(it, b)
		}
	}
	switch i.sh.method {
	case MethodStorable:
		return i.nextStorable(it, b)
	case MethodIntersect:
		return i.nextIntersect(it, b)
	}
	it.Env().Invariant("isa: no duplicate method after statistics")
	return graphd.IDNone, nil
}

// nextStorable returns the entry at this instance's cache position,
// feeding the shared cache from the sub as needed.
func (i *isaImpl) nextStorable(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	env := it.Env()
	c := i.useCache()
	for {
		if i.pos < c.Len() {
			if err := env.Charge(b, env.Tuning.CostCacheHit); err != nil {
				return graphd.IDNone, err
			}
			id := c.At(i.pos)
			i.source = c.Source(i.pos)
			i.pos++
			return id, nil
		}
		if c.Complete() {
			return graphd.IDNone, iterator.ErrNo
		}
		if env.Suspend(b) {
			return graphd.IDNone, iterator.ErrMore
		}
		if err := i.feed(it, b); err != nil {
			return graphd.IDNone, err
		}
	}
}

// feed pulls one sub result into the cache. The accept cost is held
// across the pull so a pulled source is never dropped for lack of budget.
func (i *isaImpl) feed(it *iterator.Iterator, b *iterator.Budget) error {
	c, env := i.cache, it.Env()
	hold := i.acceptCost(env)
	if err := env.Hold(b, hold); err != nil {
		return err
	}
	src, err := c.feeder.Next(b)
	b.Release(hold)
	if err != nil {
		if iterator.IsNo(err) {
			c.complete = true
			return nil
		}
		return err
	}
	d, ok, err := i.accept(it, b, src)
	if err != nil {
		return err
	}
	if ok && !c.Has(d) {
		c.append(it.Env(), d, src)
	}
	return nil
}

// nextIntersect walks the sub and returns each target whose fan-in
// contains no earlier sub result.
func (i *isaImpl) nextIntersect(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	env := it.Env()
	for {
		if i.state == stIdle {
			if env.Suspend(b) {
				return graphd.IDNone, iterator.ErrMore
			}
			hold := i.acceptCost(env) + env.Tuning.CostIndexOpen
			if err := env.Hold(b, hold); err != nil {
				return graphd.IDNone, err
			}
			s, err := i.sub.Next(b)
			b.Release(hold)
			if err != nil {
				return graphd.IDNone, err
			}
			d, ok, err := i.accept(it, b, s)
			if err != nil {
				return graphd.IDNone, err
			}
			if !ok {
				continue
			}
			if i.dupSub == nil {
				if i.dupSub, err = i.sub.Clone(); err != nil {
					return graphd.IDNone, err
				}
			}
			i.source, i.cand = s, d
			before := i.sub.Returned() - 1
			if err := i.dup.start(env, b, i.opts.Linkage, d, s, i.dupSub, before, i.opts.Join); err != nil {
				return graphd.IDNone, err
			}
			i.state = stDup
		}
		dup, err := i.dup.run(env, b)
		if err != nil {
			return graphd.IDNone, err
		}
		i.state = stIdle
		if !dup {
			return i.cand, nil
		}
	}
}

func (i *isaImpl) Check(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) error {
	env := it.Env()
	if member, ok := i.checks.get(id); ok {
		if err := env.Charge(b, env.Tuning.CostCacheHit); err != nil {
			return err
		}
		return answer(member)
	}
	if i.checkTest.active && i.checkTest.id != id {
		i.checkTest.stop()
	}
	if !i.checkTest.active {
		ok, err := i.typeOK(it, b, id)
		if err != nil {
			return err
		}
		if !ok {
			return i.record(id, false)
		}
		if c := i.sh.cache; c != nil {
			if c.Has(id) {
				return i.record(id, true)
			}
			if c.Complete() {
				return i.record(id, false)
			}
		}
		if err := i.sub.Statistics(b); err != nil {
			return err
		}
		sub := i.sub
		if sub.Sorted() {
			if i.checkSub == nil {
				c, err := i.sub.Clone()
				if err != nil {
					return err
				}
				i.checkSub = c
			}
			sub = i.checkSub
		}
		if err := i.checkTest.start(env, b, i.opts.Linkage, id, graphd.IDNone, sub, sub.N(), i.opts.Join); err != nil {
			return err
		}
	}
	found, err := i.checkTest.run(env, b)
	if err != nil {
		return err
	}
	return i.record(id, found)
}

func (i *isaImpl) record(id graphd.ID, member bool) error {
	i.checks.put(id, member)
	return answer(member)
}

func answer(member bool) error {
	if member {
		return nil
	}
	return iterator.ErrNo
}
