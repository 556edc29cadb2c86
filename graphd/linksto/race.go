package linksto

import (
	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// race samples both production methods side by side. It is resumable:
// every step is a suspension point and all progress lives here, so an
// ErrMore from Statistics loses nothing.
type race struct {
	sf, tc *iterator.Sampler

	sfSub  *iterator.Iterator // sub clone walked by subfanin
	tcCand *iterator.Iterator // candidate index walked by typecheck

	fanSum int64 // fan-in sizes of the sampled targets

	// tcPending is the candidate typecheck took but has not judged yet
	tcPending graphd.ID

	// racing is the method given the remaining budget after the other
	// one finished first with a worse rate.
	racing Method
}

func (r *race) finish() {
	r.sfSub.Finish()
	r.tcCand.Finish()
	r.sfSub, r.tcCand = nil, nil
}

// sfShare is the share of the race subfanin is entitled to
func (l *linkstoImpl) sfShare(env *iterator.Env) float64 {
	switch {
	case l.opts.Ordering != "" && l.sub.Sorted() && l.sub.Ordering() == l.opts.Ordering:
		return env.Tuning.RacePreferShare
	case l.opts.WantSorted:
		return 1 - env.Tuning.RacePreferShare
	}
	return 0.5
}

func (l *linkstoImpl) newRace(it *iterator.Iterator) (*race, error) {
	env := it.Env()
	sfTarget := env.Tuning.SampleTarget
	if l.sub.N() <= int64(env.Tuning.InlineMax) {
		// drain a small sub so the exact result can be materialized
		sfTarget = env.Tuning.InlineMax + 1
	}
	sub, err := l.sub.Clone()
	if err != nil {
		return nil, err
	}
	return &race{
		sf:        iterator.NewSampler(sfTarget),
		tc:        iterator.NewSampler(env.Tuning.SampleTarget),
		sfSub:     sub,
		tcCand:    l.candidates(it),
		tcPending: graphd.IDNone,
	}, nil
}

// stepSubFanIn samples one target. Opening its fan-in is paid for before
// the target is taken.
func (l *linkstoImpl) stepSubFanIn(it *iterator.Iterator, r *race, b *iterator.Budget) error {
	env := it.Env()
	start := *b
	defer r.sf.Charge(b, start)
	hold := env.Tuning.CostIndexOpen
	if err := env.Hold(b, hold); err != nil {
		return err
	}
	t, err := r.sfSub.Next(b)
	b.Release(hold)
	if err != nil {
		if iterator.IsNo(err) {
			r.sf.Exhausted = true
			return nil
		}
		return err
	}
	r.sf.Trial()
	fan, _ := l.lookup(it, t)
	defer fan.Finish()
	if err := fan.Statistics(b); err != nil {
		return err
	}
	r.fanSum += fan.N()
	r.sf.Accept(t)
	return nil
}

// stepTypeCheck samples one candidate. A candidate whose check ran out
// of budget is judged on the next step.
func (l *linkstoImpl) stepTypeCheck(it *iterator.Iterator, r *race, b *iterator.Budget) error {
	start := *b
	defer r.tc.Charge(b, start)
	if r.tcPending == graphd.IDNone {
		x, err := r.tcCand.Next(b)
		if err != nil {
			if iterator.IsNo(err) {
				r.tc.Exhausted = true
				return nil
			}
			return err
		}
		r.tc.Trial()
		r.tcPending = x
	}
	ok, err := l.matches(it, b, r.tcPending, false)
	if err != nil {
		return err
	}
	if ok {
		r.tc.Accept(r.tcPending)
	}
	r.tcPending = graphd.IDNone
	return nil
}

// rate is results found per unit of work
func rate(found, cost int64) float64 {
	if cost <= 0 {
		cost = 1
	}
	return float64(found) / float64(cost)
}

func (r *race) sfRate() float64 { return rate(r.fanSum, r.sf.Cost) }
func (r *race) tcRate() float64 { return rate(int64(len(r.tc.Samples)), r.tc.Cost) }

// run advances the race until a method is chosen
func (l *linkstoImpl) run(it *iterator.Iterator, r *race, b *iterator.Budget) (Method, error) {
	env := it.Env()
	share := l.sfShare(env)
	for {
		sfDone, tcDone := r.sf.Done(), r.tc.Done()
		switch {
		case sfDone && tcDone:
			return l.decide(it, r), nil
		case r.racing == MethodUnspecified && sfDone && r.tcRate() <= r.sfRate():
			return MethodSubFanIn, nil
		case r.racing == MethodUnspecified && tcDone && r.sfRate() <= r.tcRate():
			return MethodTypeCheck, nil
		case r.racing == MethodUnspecified && (sfDone || tcDone):
			r.racing = MethodSubFanIn
			if sfDone {
				r.racing = MethodTypeCheck
			}
		}

		if env.Suspend(b) {
			return MethodUnspecified, iterator.ErrMore
		}
		var err error
		if !sfDone && (tcDone || float64(r.sf.Cost)/share <= float64(r.tc.Cost)/(1-share)) {
			err = l.stepSubFanIn(it, r, b)
		} else {
			err = l.stepTypeCheck(it, r, b)
		}
		if err != nil {
			return MethodUnspecified, err
		}
	}
}

// sampleForced samples only the method the caller forced
func (l *linkstoImpl) sampleForced(it *iterator.Iterator, r *race, b *iterator.Budget, m Method) error {
	env := it.Env()
	s, step := r.sf, l.stepSubFanIn
	if m == MethodTypeCheck {
		s, step = r.tc, l.stepTypeCheck
	}
	for !s.Done() {
		if env.Suspend(b) {
			return iterator.ErrMore
		}
		if err := step(it, r, b); err != nil {
			return err
		}
	}
	return nil
}

// decide compares the projected total cost of both methods
func (l *linkstoImpl) decide(it *iterator.Iterator, r *race) Method {
	sf, tc := l.costSubFanIn(it, r), l.costTypeCheck(it, r)
	if sf.total <= tc.total {
		return MethodSubFanIn
	}
	return MethodTypeCheck
}

type projection struct {
	stats iterator.Stats
	total int64
}

// costSubFanIn projects subfanin over the whole sub
func (l *linkstoImpl) costSubFanIn(it *iterator.Iterator, r *race) projection {
	env := it.Env()
	sub := l.sub.Stats()
	var n int64
	if r.sf.Exhausted {
		n = r.fanSum
	} else {
		n = iterator.Scale(sub.N, r.fanSum, int64(len(r.sf.Samples)))
		n = iterator.Narrow(n, iterator.SubOverlap(l.sub, it), r.fanSum)
	}
	step := env.Tuning.CostArrayStep
	total := sub.N*(sub.NextCost+env.Tuning.CostIndexOpen) + n*step

	s := iterator.Stats{N: n, CheckCost: l.checkCost(env)}
	s.NextCost = step
	if n > 0 {
		s.NextCost = total / n
	}
	s.FindCost = total
	return projection{stats: s, total: total}
}

// costTypeCheck projects typecheck over the whole candidate index
func (l *linkstoImpl) costTypeCheck(it *iterator.Iterator, r *race) projection {
	env := it.Env()
	cand := r.tcCand.Stats()
	accepted := int64(len(r.tc.Samples))
	var n int64
	if r.tc.Exhausted {
		n = accepted
	} else {
		n = iterator.Scale(cand.N, accepted, r.tc.Trials)
	}
	per := env.Tuning.CostArrayStep + env.Tuning.CostPrimitive + env.Tuning.CostLinkage + l.sub.Stats().CheckCost
	total := cand.N * per

	s := iterator.Stats{N: n, CheckCost: l.checkCost(env)}
	s.NextCost = per
	if n > 0 {
		s.NextCost = total / n
	}
	s.FindCost = cand.FindCost + s.NextCost
	return projection{stats: s, total: total}
}

func (l *linkstoImpl) checkCost(env *iterator.Env) int64 {
	c := env.Tuning.CostPrimitive + env.Tuning.CostLinkage + l.sub.Stats().CheckCost
	if l.opts.Hint.Valid() {
		c += env.Tuning.CostLinkage
	}
	return c
}

// Statistics races the two methods unless one was forced, then fixes
// the method, sortedness and estimates. A race that drained the sub
// evolves the iterator into the materialized result.
func (l *linkstoImpl) Statistics(it *iterator.Iterator, b *iterator.Budget) error {
	env, sh := it.Env(), l.sh
	if sh.stats.Valid {
		l.apply(it)
		return nil
	}
	if err := l.sub.Statistics(b); err != nil {
		return err
	}
	if sh.race == nil {
		r, err := l.newRace(it)
		if err != nil {
			return err
		}
		sh.race = r
	}
	r := sh.race
	if err := r.tcCand.Statistics(b); err != nil {
		return err
	}

	method := l.opts.Method
	if method == MethodUnspecified {
		m, err := l.run(it, r, b)
		if err != nil {
			return err
		}
		method = m
	} else if err := l.sampleForced(it, r, b, method); err != nil {
		return err
	}
	r.sf.Emit(env, "linksto", MethodSubFanIn.String())
	r.tc.Emit(env, "linksto", MethodTypeCheck.String())

	sfp, tcp := l.costSubFanIn(it, r), l.costTypeCheck(it, r)
	l.emit(env, annotations.LinkstoRace, map[string]interface{}{
		"subfanin.samples": len(r.sf.Samples), "subfanin.cost": r.sf.Cost, "subfanin.total": sfp.total,
		"typecheck.samples": len(r.tc.Samples), "typecheck.cost": r.tc.Cost, "typecheck.total": tcp.total,
		"racing": r.racing.String(),
	})
	l.emit(env, annotations.LinkstoMethod, map[string]interface{}{
		"method": method.String(), "forced": l.opts.Method != MethodUnspecified,
	})

	sh.method = method
	if method == MethodSubFanIn {
		sh.stats = sfp.stats
	} else {
		sh.stats = tcp.stats
	}
	sh.stats.Valid = true
	if r.sf.Exhausted {
		sh.targets = append([]graphd.ID(nil), r.sf.Samples...)
		sh.complete = true
	}
	r.finish()
	sh.race = nil

	if sh.complete && l.opts.Method == MethodUnspecified && it.CanEvolve() {
		restore := env.Unyielding()
		pb := iterator.Budget(env.Tuning.PreEvalMaxCost)
		repl, ok := l.materialize(it, &pb, sh.targets)
		restore()
		if ok {
			it.Become(repl, "statistics")
			return nil
		}
	}
	l.apply(it)
	return nil
}

// apply installs the shared decision on this instance
func (l *linkstoImpl) apply(it *iterator.Iterator) {
	it.SetSorted(l.sh.method == MethodTypeCheck)
	if l.sh.method == MethodSubFanIn && l.opts.Ordering != "" && l.sub.Ordering() == l.opts.Ordering {
		it.SetOrdering(l.opts.Ordering)
	}
	if !it.StatsDone() {
		it.SetStats(l.sh.stats)
	}
}
