package isa

import (
	"math"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// Join selects how a fan-in list is intersected with the sub
type Join uint8

const (
	// JoinAuto picks the cheapest algorithm before each test
	JoinAuto Join = iota
	// JoinFanIn steps the fan-in with next and checks each id in the sub
	JoinFanIn
	// JoinSub steps the sub with next and checks each id in the fan-in
	JoinSub
	// JoinZigZag alternates find on both sides until two agree
	JoinZigZag
)

var joinNames = [...]string{"auto", "A", "B", "AB"}

func (j Join) String() string { return joinNames[j] }

// dupTest decides whether candidate id, reached from source, is also
// reachable from a sub result that comes before source. With source
// IDNone it is a plain membership test of id's fan-in against the sub.
type dupTest struct {
	active bool
	fanin  *iterator.Iterator // owned while active
	sub    *iterator.Iterator // borrowed
	id     graphd.ID
	source graphd.ID
	join   Join
	step   int
	x      graphd.ID
	agree  int
}

// start sets up a test. before estimates how many sub results precede
// source.
func (d *dupTest) start(env *iterator.Env, b *iterator.Budget, l graphd.Linkage, id, source graphd.ID,
	sub *iterator.Iterator, before int64, forced Join) error {
	lo, hi := graphd.ID(0), graphd.IDMax
	if source != graphd.IDNone {
		if sub.Forward() {
			hi = source
		} else {
			lo = source + 1
		}
	}
	d.fanin = iterator.NewFanIn(env, l, id, lo, hi, sub.Forward())
	d.sub = sub
	d.id, d.source = id, source
	d.step, d.agree, d.x = 0, 0, graphd.IDNone
	d.active = true

	if err := d.fanin.Statistics(b); err != nil {
		d.stop()
		return err
	}
	d.join = d.choose(env, before, forced)
	return nil
}

// choose compares the projected cost of the three algorithms
func (d *dupTest) choose(env *iterator.Env, before int64, forced Join) Join {
	if !d.sub.Sorted() {
		return JoinFanIn
	}
	if forced != JoinAuto {
		return forced
	}
	fs, ss := d.fanin.Stats(), d.sub.Stats()
	costs := [...]int64{
		JoinFanIn:  fs.N * (fs.NextCost + ss.CheckCost),
		JoinSub:    before * (ss.NextCost + fs.CheckCost),
		JoinZigZag: 2 * min64(fs.N, before) * (fs.FindCost + ss.FindCost),
	}
	best, cost := JoinFanIn, int64(math.MaxInt64)
	for _, j := range []Join{JoinFanIn, JoinSub, JoinZigZag} {
		if costs[j] < cost {
			best, cost = j, costs[j]
		}
	}
	if env.Tracing() {
		env.Emit(annotations.IsaJoin, map[string]interface{}{
			"join": best.String(), "A": costs[JoinFanIn], "B": costs[JoinSub], "AB": costs[JoinZigZag],
		})
	}
	return best
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (d *dupTest) stop() {
	if d.fanin != nil {
		d.fanin.Finish()
		d.fanin = nil
	}
	d.active = false
}

// beyond reports whether sub result s is at or past the source
func (d *dupTest) beyond(s graphd.ID) bool {
	if d.source == graphd.IDNone {
		return false
	}
	if d.sub.Forward() {
		return s >= d.source
	}
	return s <= d.source
}

// observe feeds one find result into the agreement counter
func (d *dupTest) observe(v graphd.ID) bool {
	if v == d.x {
		d.agree++
	} else {
		d.x = v
		d.agree = 1
	}
	return d.agree >= 2
}

// run continues the test. It returns ErrMore with the state saved.
func (d *dupTest) run(env *iterator.Env, b *iterator.Budget) (found bool, err error) {
	done := func(v bool) (bool, error) {
		d.stop()
		return v, nil
	}

	switch d.join {
	case JoinFanIn:
		for {
			if d.step == 0 {
				if env.Suspend(b) {
					return false, iterator.ErrMore
				}
				f, err := d.fanin.Next(b)
				if err != nil {
					if iterator.IsNo(err) {
						return done(false)
					}
					return false, err
				}
				d.x, d.step = f, 1
			}
			err := d.sub.Check(d.x, b)
			if err == nil {
				return done(true)
			}
			if !iterator.IsNo(err) {
				return false, err
			}
			d.step = 0
		}

	case JoinSub:
		if d.step == 0 {
			d.sub.Reset()
			d.step = 1
		}
		for {
			if d.step == 1 {
				if env.Suspend(b) {
					return false, iterator.ErrMore
				}
				s, err := d.sub.Next(b)
				if err != nil {
					if iterator.IsNo(err) {
						return done(false)
					}
					return false, err
				}
				if d.beyond(s) {
					return done(false)
				}
				d.x, d.step = s, 2
			}
			err := d.fanin.Check(d.x, b)
			if err == nil {
				return done(true)
			}
			if !iterator.IsNo(err) {
				return false, err
			}
			d.step = 1
		}

	case JoinZigZag:
		for {
			if env.Suspend(b) {
				return false, iterator.ErrMore
			}
			var (
				v   graphd.ID
				err error
			)
			switch d.step {
			case 0:
				v, err = d.fanin.Next(b)
			case 1:
				v, err = d.fanin.Find(d.x, b)
			default:
				v, err = d.sub.Find(d.x, b)
			}
			if err != nil {
				if iterator.IsNo(err) {
					return done(false)
				}
				return false, err
			}
			if d.step != 2 && d.beyond(v) {
				return done(false)
			}
			if d.step == 0 {
				d.x, d.agree = v, 1
			} else if d.observe(v) {
				return done(true)
			}
			if d.step == 2 {
				d.step = 1
			} else {
				d.step = 2
			}
		}
	}
	env.Invariant("isa: join %v", d.join)
	return false, nil
}

// freeze writes i(FANIN)(SUB)ID,SOURCE,AGREE,X,JOIN,STEP
func (d *dupTest) freeze(w *iterator.Writer) {
	w.WriteString("i")
	w.Sub(d.fanin, iterator.FlagAll)
	w.Sub(d.sub, iterator.FlagAll)
	w.ID(d.id)
	w.WriteByte(',')
	w.ID(d.source)
	w.WriteByte(',')
	w.Int(int64(d.agree))
	w.WriteByte(',')
	w.ID(d.x)
	w.WriteByte(',')
	w.Int(int64(d.join))
	w.WriteByte(',')
	w.Int(int64(d.step))
}

// thawDup reads what freeze wrote after the leading "i". It returns the
// restored sub clone, which the caller owns.
func thawDup(s *iterator.Scanner) (*dupTest, *iterator.Iterator, error) {
	fanin, err := s.Sub()
	if err != nil {
		return nil, nil, err
	}
	sub, err := s.Sub()
	if err != nil {
		fanin.Finish()
		return nil, nil, err
	}
	fail := func(err error) (*dupTest, *iterator.Iterator, error) {
		fanin.Finish()
		sub.Finish()
		return nil, nil, err
	}
	d := &dupTest{active: true, fanin: fanin, sub: sub}
	if d.id, err = s.ID(); err != nil {
		return fail(err)
	}
	var n [4]int64
	if err := s.Expect(","); err != nil {
		return fail(err)
	}
	if d.source, err = s.ID(); err != nil {
		return fail(err)
	}
	if err := s.Expect(","); err != nil {
		return fail(err)
	}
	if n[0], err = s.Int(); err != nil {
		return fail(err)
	}
	if err := s.Expect(","); err != nil {
		return fail(err)
	}
	if d.x, err = s.ID(); err != nil {
		return fail(err)
	}
	for i := 1; i < 3; i++ {
		if err := s.Expect(","); err != nil {
			return fail(err)
		}
		if n[i], err = s.Int(); err != nil {
			return fail(err)
		}
	}
	d.agree = int(n[0])
	if n[1] < int64(JoinFanIn) || n[1] > int64(JoinZigZag) || n[2] < 0 || n[2] > 2 || d.id == graphd.IDNone {
		return fail(s.Semantic("bad duplicate test state"))
	}
	d.join, d.step = Join(n[1]), int(n[2])
	if d.join != JoinFanIn && !sub.Sorted() {
		return fail(s.Semantic("join %v over an unsorted sub", d.join))
	}
	return d, sub, nil
}
