package isa

import (
	"strconv"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// FreezeSet writes isa:RANGE:L[+TYPE]<-(SUB)[hint:N]
func (i *isaImpl) FreezeSet(it *iterator.Iterator, w *iterator.Writer) {
	w.WriteString("isa:")
	w.Range(it.Low(), it.High(), it.Forward())
	w.WriteByte(':')
	w.Linkage(i.opts.Linkage)
	if i.opts.Type != graphd.IDNone {
		w.WriteByte('+')
		w.GUID(i.opts.Type)
	}
	w.WriteString("<-")
	w.Sub(i.sub, iterator.FlagSet)
	if i.opts.Hints != 0 {
		w.WriteString("[hint:")
		w.Int(int64(i.opts.Hints))
		w.WriteByte(']')
	}
}

// FreezePosition writes $ or GENERIC,RESUME,SOURCE[,#CACHEPOS]
func (i *isaImpl) FreezePosition(it *iterator.Iterator, w *iterator.Writer) {
	w.Position(it)
	if it.EOF() {
		return
	}
	if it.Resuming() {
		w.WriteString(",-,-")
		return
	}
	resume := graphd.IDNone
	if i.state == stDup {
		resume = i.cand
	}
	w.WriteByte(',')
	w.ID(resume)
	w.WriteByte(',')
	w.ID(i.source)
	if i.sh.method == MethodStorable {
		w.WriteString(",#")
		w.Int(int64(i.pos))
	}
}

// FreezeState writes CALL:METHOD:(SUB)STATS:DUP, or "-" when the
// position alone is enough to recover.
func (i *isaImpl) FreezeState(it *iterator.Iterator, w *iterator.Writer) {
	if it.EOF() || it.Resuming() {
		w.WriteByte('-')
		return
	}
	sh := i.sh
	w.Int(int64(i.state))
	w.WriteByte(':')
	w.WriteByte(methodCodes[sh.method])
	w.WriteByte(':')
	w.Sub(i.sub, iterator.FlagAll)
	switch {
	case sh.stats.Valid:
		iterator.FreezeStats(w, sh.stats)
	case sh.sampler != nil:
		sh.sampler.Freeze(w)
		w.Sub(sh.sampleSub, iterator.FlagAll)
	default:
		w.WriteByte('-')
	}
	w.WriteByte(':')
	switch {
	case sh.method == MethodStorable:
		c := sh.cache
		w.WriteByte('c')
		w.Sub(c.feeder, iterator.FlagAll)
		if c.Len() > it.Env().Tuning.IsaCacheFreezeMax {
			w.WriteByte('-')
			break
		}
		data, err := c.MarshalBinary()
		if err != nil {
			w.Fail(err)
			return
		}
		w.Blob(data)
	case sh.method == MethodIntersect && i.state == stDup:
		i.dup.freeze(w)
	default:
		w.WriteByte('-')
	}
}

// frozenState is a parsed STATE section
type frozenState struct {
	call      callState
	method    Method
	sub       *iterator.Iterator
	stats     iterator.Stats
	sampler   *iterator.Sampler
	sampleSub *iterator.Iterator

	feeder  *iterator.Iterator
	blob    []byte
	hasBlob bool

	dup    *dupTest
	dupSub *iterator.Iterator
}

func (f *frozenState) finish() {
	f.sub.Finish()
	f.sampleSub.Finish()
	f.feeder.Finish()
	if f.dup != nil {
		f.dup.stop()
	}
	f.dupSub.Finish()
}

func thawIsa(c *iterator.Cursor) (*iterator.Iterator, error) {
	s := c.Set
	env := s.Env()
	o, sub, err := scanSet(s)
	if err != nil {
		return nil, err
	}
	if c.Position == nil {
		return create(s.Context(), env, sub, o, true)
	}

	p := c.Position
	last, ordinal, eof, err := p.Position()
	if err != nil {
		sub.Finish()
		return nil, err
	}
	resume, source, cachePos := graphd.IDNone, graphd.IDNone, -1
	if !eof {
		if resume, source, cachePos, err = scanPosition(p); err != nil {
			sub.Finish()
			return nil, err
		}
	}
	if err := p.End(); err != nil {
		sub.Finish()
		return nil, err
	}

	if eof || c.State == nil || c.State.Peek() == '-' {
		if c.State != nil {
			if err := c.SkipState(); err != nil {
				sub.Finish()
				return nil, err
			}
		}
		it := newLazy(env, sub, o)
		it.Reposition(last, ordinal, eof)
		return it, nil
	}

	f, err := scanState(c.State)
	if err != nil {
		sub.Finish()
		return nil, err
	}
	sub.Finish()
	it, err := restore(c, o, f, last, ordinal, resume, source, cachePos)
	if err != nil {
		f.finish()
		return nil, err
	}
	return it, nil
}

func scanSet(s *iterator.Scanner) (Options, *iterator.Iterator, error) {
	o := NewOptions(0)
	low, high, forward, err := s.Range()
	if err != nil {
		return o, nil, err
	}
	o.Low, o.High, o.Forward = low, high, forward
	if err := s.Expect(":"); err != nil {
		return o, nil, err
	}
	if o.Linkage, err = s.Linkage(); err != nil {
		return o, nil, err
	}
	if s.Accept("+") {
		if o.Type, err = s.GUID(); err != nil {
			return o, nil, err
		}
	}
	if err := s.Expect("<-"); err != nil {
		return o, nil, err
	}
	sub, err := s.Sub()
	if err != nil {
		return o, nil, err
	}
	hint, ok, err := s.Bracket("hint")
	if err == nil && ok {
		var n uint64
		n, err = strconv.ParseUint(hint, 10, 8)
		if err != nil || Hints(n)&^(HintOptimize|HintNoMasquerade) != 0 {
			err = s.Semantic("bad hint %q", hint)
		}
		o.Hints = Hints(n)
	}
	if err == nil {
		err = s.End()
	}
	if err != nil {
		sub.Finish()
		return o, nil, err
	}
	return o, sub, nil
}

// scanPosition reads ,RESUME,SOURCE[,#CACHEPOS] after the generic part
func scanPosition(p *iterator.Scanner) (resume, source graphd.ID, cachePos int, err error) {
	cachePos = -1
	if err = p.Expect(","); err != nil {
		return
	}
	if resume, err = p.ID(); err != nil {
		return
	}
	if err = p.Expect(","); err != nil {
		return
	}
	if source, err = p.ID(); err != nil {
		return
	}
	if p.Accept(",#") {
		var n int64
		if n, err = p.Int(); err != nil {
			return
		}
		if n < 0 {
			err = p.Semantic("negative cache position %d", n)
			return
		}
		cachePos = int(n)
	}
	return
}

func scanState(s *iterator.Scanner) (*frozenState, error) {
	f := &frozenState{}
	fail := func(err error) (*frozenState, error) {
		f.finish()
		return nil, err
	}
	call, err := s.Int()
	if err != nil {
		return fail(err)
	}
	if call != int64(stIdle) && call != int64(stDup) {
		return fail(s.Semantic("bad call state %d", call))
	}
	f.call = callState(call)
	if err := s.Expect(":"); err != nil {
		return fail(err)
	}
	m, ok := methodFromCode(s.Peek())
	if !ok {
		return fail(s.Lexical("expected duplicate method"))
	}
	s.Accept(string(methodCodes[m]))
	f.method = m
	if err := s.Expect(":"); err != nil {
		return fail(err)
	}
	if f.sub, err = s.Sub(); err != nil {
		return fail(err)
	}

	switch s.Peek() {
	case 's':
		if f.stats, err = iterator.ThawStats(s); err != nil {
			return fail(err)
		}
	case 'p':
		if f.sampler, err = iterator.ThawSampler(s); err != nil {
			return fail(err)
		}
		if f.sampleSub, err = s.Sub(); err != nil {
			return fail(err)
		}
	default:
		if err := s.Expect("-"); err != nil {
			return fail(err)
		}
	}
	if err := s.Expect(":"); err != nil {
		return fail(err)
	}

	switch {
	case s.Accept("c"):
		if f.feeder, err = s.Sub(); err != nil {
			return fail(err)
		}
		if !s.Accept("-") {
			if f.blob, err = s.Blob(); err != nil {
				return fail(err)
			}
			f.hasBlob = true
		}
	case s.Accept("i"):
		if f.dup, f.dupSub, err = thawDup(s); err != nil {
			return fail(err)
		}
	default:
		if err := s.Expect("-"); err != nil {
			return fail(err)
		}
	}
	if err := s.End(); err != nil {
		return fail(err)
	}

	switch {
	case f.method == MethodUnspecified && (f.call != stIdle || f.feeder != nil || f.dup != nil):
		return fail(s.Semantic("duplicate state without a method"))
	case f.method != MethodUnspecified && !f.stats.Valid:
		return fail(s.Semantic("duplicate method %v without statistics", f.method))
	case f.method == MethodStorable && (f.feeder == nil || f.call != stIdle):
		return fail(s.Semantic("storable state without a cache"))
	case f.method == MethodIntersect && (f.call == stDup) != (f.dup != nil):
		return fail(s.Semantic("intersect call state %d does not match its test", f.call))
	case f.method == MethodIntersect && !f.sub.Sorted():
		return fail(s.Semantic("intersect over an unsorted sub"))
	}
	return f, nil
}

// restore builds the lazy iterator from a parsed cursor. On error the
// caller finishes what f still holds.
func restore(c *iterator.Cursor, o Options, f *frozenState, last graphd.ID, ordinal int64,
	resume, source graphd.ID, cachePos int) (*iterator.Iterator, error) {
	env := c.Set.Env()
	i := &isaImpl{
		opts:   o,
		sub:    f.sub,
		thawed: true,
		source: source,
		cand:   graphd.IDNone,
		checks: newCheckCache(env.Tuning.CheckCacheSize),
	}
	f.sub = nil

	if orig := originalOf(c, f.method); orig != nil {
		i.sh = orig.sh.acquire()
	} else {
		i.sh = &shared{
			refs:      1,
			stats:     f.stats,
			method:    f.method,
			sampler:   f.sampler,
			sampleSub: f.sampleSub,
		}
		f.sampleSub = nil
	}
	it := iterator.New(env, i, o.Low, o.High, o.Forward)
	it.SetSorted(false)
	if i.sh.stats.Valid {
		it.SetStats(i.sh.stats)
	}

	switch f.method {
	case MethodUnspecified:
		if ordinal != 0 {
			it.Finish()
			return nil, c.State.Semantic("results before statistics completed")
		}

	case MethodStorable:
		if i.sh.cache == nil && f.hasBlob {
			cache, err := unmarshalCache(f.blob, f.feeder)
			if err != nil {
				it.Finish()
				return nil, c.State.Semantic("%v", err)
			}
			f.feeder = nil
			i.sh.cache = cache
		}
		if i.sh.cache != nil {
			cache := i.useCache()
			if cachePos >= 0 && cachePos <= cache.Len() && int64(cachePos) == ordinal {
				i.pos = cachePos
				it.SetPosition(last, ordinal)
				break
			}
			env.Emit(annotations.CursorRecovered, map[string]interface{}{"kind": "isa", "reason": "cache position"})
			it.Reposition(last, ordinal, false)
			break
		}
		if i.sub.Sorted() {
			// Without its cache the iterator continues by intersection
			// right after the source of its last result.
			i.sh.method = MethodIntersect
			if ordinal > 0 && source != graphd.IDNone {
				i.sub.Reposition(source, 1, false)
			}
			it.SetPosition(last, ordinal)
			env.Emit(annotations.IsaDupSwitch, map[string]interface{}{"from": "storable", "to": "intersect", "ordinal": ordinal})
			break
		}
		i.sh.cache = newStorableCache(f.feeder)
		f.feeder.Reset()
		f.feeder = nil
		env.Emit(annotations.CursorRecovered, map[string]interface{}{"kind": "isa", "reason": "cache dropped"})
		it.Reposition(last, ordinal, false)

	case MethodIntersect:
		if f.dup != nil {
			i.dup, i.dupSub = *f.dup, f.dupSub
			f.dup, f.dupSub = nil, nil
			i.state, i.cand = stDup, resume
			if resume != i.dup.id {
				it.Finish()
				return nil, c.State.Semantic("resume id %v does not match test of %v", resume, i.dup.id)
			}
		}
		it.SetPosition(last, ordinal)
	}
	f.finish()
	return it, nil
}

// originalOf returns the cached original's implementation when its shared
// state can serve a thawed clone of method m.
func originalOf(c *iterator.Cursor, m Method) *isaImpl {
	if c.Original == nil {
		return nil
	}
	orig, ok := c.Original.Impl().(*isaImpl)
	if !ok || !orig.sh.stats.Valid || orig.sh.method != m || m == MethodUnspecified {
		return nil
	}
	return orig
}

func init() {
	iterator.Register("isa", thawIsa)
}
