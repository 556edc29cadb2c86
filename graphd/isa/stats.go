package isa

import (
	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// Statistics samples the sub through a clone, estimates the result count
// from the measured loss and picks the duplicate method. When sampling
// drained a small sub, the iterator becomes the exact fixed array instead.
func (i *isaImpl) Statistics(it *iterator.Iterator, b *iterator.Budget) error {
	sh := i.sh
	if !sh.stats.Valid {
		if err := i.sample(it, b); err != nil {
			return err
		}
	}
	if sh.inlined && i.opts.Method == MethodUnspecified && it.CanEvolve() {
		i.evolve(it, sh.inline, "statistics")
		return nil
	}
	if sh.method == MethodUnspecified {
		if err := i.chooseMethod(it); err != nil {
			return err
		}
	}
	if !it.StatsDone() {
		it.SetStats(sh.stats)
	}
	return nil
}

func (i *isaImpl) sample(it *iterator.Iterator, b *iterator.Budget) error {
	env, sh := it.Env(), i.sh
	if err := i.sub.Statistics(b); err != nil {
		return err
	}
	if sh.sampler == nil {
		target := env.Tuning.SampleTarget
		if i.sub.N() <= int64(env.Tuning.InlineMax) {
			target = env.Tuning.InlineMax + 1
		}
		c, err := i.sub.Clone()
		if err != nil {
			return err
		}
		sh.sampler, sh.sampleSub = iterator.NewSampler(target), c
	}

	s := sh.sampler
	for !s.Done() {
		if env.Suspend(b) {
			return iterator.ErrMore
		}
		start := *b
		hold := i.acceptCost(env)
		if err := env.Hold(b, hold); err != nil {
			return err
		}
		src, err := sh.sampleSub.Next(b)
		b.Release(hold)
		if err != nil {
			s.Charge(b, start)
			if iterator.IsNo(err) {
				s.Exhausted = true
				break
			}
			return err
		}
		s.Trial()
		d, ok, err := i.accept(it, b, src)
		s.Charge(b, start)
		if err != nil {
			return err
		}
		if ok && !contains(s.Samples, d) {
			s.Accept(d)
		}
	}
	s.Emit(env, "isa", "sub")
	sh.sampleSub.Finish()
	sh.sampleSub = nil
	sh.sampler = nil
	sh.stats = estimate(env, i.sub.Stats(), s, iterator.SubOverlap(i.sub, it))
	if s.Exhausted && len(s.Samples) <= env.Tuning.InlineMax {
		sh.inline = append([]graphd.ID(nil), s.Samples...)
		sh.inlined = true
	}
	return nil
}

// estimate derives isa statistics from the sub's and the sampled loss:
// how many sub results it takes to find one new target. overlap narrows
// an extrapolated count to the part of the sub range this iterator covers.
func estimate(env *iterator.Env, sub iterator.Stats, s *iterator.Sampler, overlap float64) iterator.Stats {
	t := env.Tuning
	accepted := int64(len(s.Samples))
	n := accepted
	if !s.Exhausted {
		n = iterator.Narrow(iterator.Scale(sub.N, accepted, s.Trials), overlap, accepted)
	}
	fanout := s.Trials
	if accepted > 0 {
		fanout = (s.Trials + accepted - 1) / accepted
	}
	if fanout < 1 {
		fanout = 1
	}
	next := fanout*(sub.NextCost+t.CostPrimitive+t.CostLinkage) + t.CostCacheHit
	check := sub.CheckCost
	if check < 1 {
		check = 1
	}
	scan := n
	if scan < 1 {
		scan = 1
	}
	return iterator.Stats{
		Valid:     true,
		N:         n,
		NextCost:  next,
		FindCost:  next * scan,
		CheckCost: t.CostIndexOpen + fanout*check,
	}
}

func contains(ids []graphd.ID, id graphd.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
