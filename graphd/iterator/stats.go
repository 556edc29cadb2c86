package iterator

import (
	"math/bits"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
)

// Log2 is the per-step cost factor of a binary search over n entries
func Log2(n int64) int64 {
	if n <= 1 {
		return 1
	}
	return int64(bits.Len64(uint64(n)))
}

// RangeOverlap returns the fraction of [subLow, subHigh) that falls inside
// [low, high). Estimates taken over the sub range are scaled by it.
func RangeOverlap(subLow, subHigh, low, high graphd.ID) float64 {
	if subHigh <= subLow {
		return 0
	}
	lo, hi := subLow, subHigh
	if low > lo {
		lo = low
	}
	if high < hi {
		hi = high
	}
	if hi <= lo {
		return 0
	}
	return float64(hi-lo) / float64(subHigh-subLow)
}

// SubOverlap is the share of sub's range that lies inside it's range.
// A sub over the whole id space says nothing about where its results
// fall and scores 1.
func SubOverlap(sub, it *Iterator) float64 {
	if sub.Low() == 0 && sub.High() >= graphd.IDMax {
		return 1
	}
	return RangeOverlap(sub.Low(), sub.High(), it.Low(), it.High())
}

// Narrow scales an extrapolated count by a range overlap, keeping at least
// floor observed results.
func Narrow(n int64, overlap float64, floor int64) int64 {
	if overlap < 1 {
		n = int64(float64(n) * overlap)
	}
	if n < floor {
		n = floor
	}
	return n
}

// Scale multiplies n by a measured ratio, never estimating zero for a
// non-empty observation.
func Scale(n int64, num, den int64) int64 {
	if den <= 0 {
		return n
	}
	v := n * num / den
	if v == 0 && num > 0 && n > 0 {
		v = 1
	}
	return v
}

// Sampler collects up to Target accepted samples from a producer and
// counts what it cost. It survives suspension and freezing.
type Sampler struct {
	Target    int
	Samples   []graphd.ID // accepted results
	Trials    int64       // items pulled from the producer
	Cost      int64       // budget spent sampling
	Exhausted bool        // the producer ran out
}

// NewSampler returns an empty sampler
func NewSampler(target int) *Sampler {
	return &Sampler{Target: target}
}

// Full reports whether the target was reached
func (s *Sampler) Full() bool { return len(s.Samples) >= s.Target }

// Done reports whether sampling is over, either way
func (s *Sampler) Done() bool { return s.Full() || s.Exhausted }

// Trial counts one item pulled from the producer
func (s *Sampler) Trial() { s.Trials++ }

// Accept records an accepted sample
func (s *Sampler) Accept(id graphd.ID) { s.Samples = append(s.Samples, id) }

// Charge adds the budget used since start
func (s *Sampler) Charge(b *Budget, start Budget) { s.Cost += b.Used(start) }

// Emit reports progress
func (s *Sampler) Emit(env *Env, kind, method string) {
	if !env.Tracing() {
		return
	}
	env.Emit(annotations.StatsSampled, map[string]interface{}{
		"kind": kind, "method": method, "samples": len(s.Samples),
		"trials": s.Trials, "cost": s.Cost, "exhausted": s.Exhausted,
	})
}

// Freeze writes p{TARGET,TRIALS,COST,EXHAUSTED:ID,ID,...}
func (s *Sampler) Freeze(w *Writer) {
	w.WriteString("p{")
	w.Int(int64(s.Target))
	w.WriteByte(',')
	w.Int(s.Trials)
	w.WriteByte(',')
	w.Int(s.Cost)
	w.WriteByte(',')
	if s.Exhausted {
		w.WriteByte('1')
	} else {
		w.WriteByte('0')
	}
	w.WriteByte(':')
	for i, id := range s.Samples {
		if i > 0 {
			w.WriteByte(',')
		}
		w.ID(id)
	}
	w.WriteByte('}')
}

// ThawSampler reads what Sampler.Freeze wrote
func ThawSampler(sc *Scanner) (*Sampler, error) {
	if err := sc.Expect("p{"); err != nil {
		return nil, err
	}
	s := &Sampler{}
	target, err := sc.Int()
	if err != nil {
		return nil, err
	}
	s.Target = int(target)
	for _, dst := range []*int64{&s.Trials, &s.Cost} {
		if err := sc.Expect(","); err != nil {
			return nil, err
		}
		if *dst, err = sc.Int(); err != nil {
			return nil, err
		}
	}
	if err := sc.Expect(","); err != nil {
		return nil, err
	}
	switch {
	case sc.Accept("1"):
		s.Exhausted = true
	case sc.Accept("0"):
	default:
		return nil, sc.Lexical("expected 0 or 1")
	}
	if err := sc.Expect(":"); err != nil {
		return nil, err
	}
	for !sc.Accept("}") {
		if len(s.Samples) > 0 {
			if err := sc.Expect(","); err != nil {
				return nil, err
			}
		}
		id, err := sc.ID()
		if err != nil {
			return nil, err
		}
		s.Samples = append(s.Samples, id)
	}
	if s.Target < 1 || len(s.Samples) > s.Target || s.Trials < int64(len(s.Samples)) {
		return nil, sc.Semantic("inconsistent sampler")
	}
	return s, nil
}

// FreezeStats writes s{N,NEXT,FIND,CHECK}
func FreezeStats(w *Writer, s Stats) {
	w.WriteString("s{")
	w.Int(s.N)
	w.WriteByte(',')
	w.Int(s.NextCost)
	w.WriteByte(',')
	w.Int(s.FindCost)
	w.WriteByte(',')
	w.Int(s.CheckCost)
	w.WriteByte('}')
}

// ThawStats reads what FreezeStats wrote
func ThawStats(sc *Scanner) (Stats, error) {
	var s Stats
	if err := sc.Expect("s{"); err != nil {
		return s, err
	}
	for i, dst := range []*int64{&s.N, &s.NextCost, &s.FindCost, &s.CheckCost} {
		if i > 0 {
			if err := sc.Expect(","); err != nil {
				return s, err
			}
		}
		v, err := sc.Int()
		if err != nil {
			return s, err
		}
		if v < 0 {
			return s, sc.Semantic("negative estimate %d", v)
		}
		*dst = v
	}
	if err := sc.Expect("}"); err != nil {
		return s, err
	}
	s.Valid = true
	return s, nil
}

// Collect drains up to limit results from a fresh clone of it. complete
// reports that the clone ran out within the limit. The clone is finished
// before returning; on ErrMore the collection is lost and the caller
// decides whether to retry.
func Collect(it *Iterator, b *Budget, limit int) (ids []graphd.ID, complete bool, err error) {
	c, err := it.Clone()
	if err != nil {
		return nil, false, err
	}
	defer c.Finish()
	for len(ids) <= limit {
		id, err := c.Next(b)
		if err != nil {
			if IsNo(err) {
				return ids, true, nil
			}
			return nil, false, err
		}
		ids = append(ids, id)
	}
	return ids, false, nil
}
