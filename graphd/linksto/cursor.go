package linksto

import (
	"strings"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// labelOK reports whether s can be written inside a [tag:...] bracket
func labelOK(s string) bool {
	return !strings.ContainsAny(s, "[]()/ \t\n")
}

// FreezeSet writes
// linksto:RANGE:L[+TYPE]->(SUB)[md:METHOD][o:ORDERING][a:ACCOUNT][h:L=GUID]
// A type hint is written as +TYPE, any other hint in [h:].
func (l *linkstoImpl) FreezeSet(it *iterator.Iterator, w *iterator.Writer) {
	o := l.opts
	w.WriteString("linksto:")
	w.Range(it.Low(), it.High(), it.Forward())
	w.WriteByte(':')
	w.Linkage(o.Linkage)
	if o.Hint.Valid() && o.Hint.Linkage == graphd.LinkType {
		w.WriteByte('+')
		w.GUID(o.Hint.Value)
	}
	w.WriteString("->")
	w.Sub(l.sub, iterator.FlagSet)
	if o.Method != MethodUnspecified {
		w.WriteString("[md:" + o.Method.String() + "]")
	}
	if o.Ordering != "" {
		w.WriteString("[o:" + o.Ordering + "]")
	}
	if o.Account != "" {
		w.WriteString("[a:" + o.Account + "]")
	}
	if o.Hint.Valid() && o.Hint.Linkage != graphd.LinkType {
		w.WriteString("[h:")
		w.Linkage(o.Hint.Linkage)
		w.WriteByte('=')
		w.GUID(o.Hint.Value)
		w.WriteByte(']')
	}
}

// FreezePosition writes $ or GENERIC,PENDING,FIND
func (l *linkstoImpl) FreezePosition(it *iterator.Iterator, w *iterator.Writer) {
	w.Position(it)
	if it.EOF() {
		return
	}
	if it.Resuming() {
		w.WriteString(",-,-")
		return
	}
	w.WriteByte(',')
	w.ID(l.pending)
	w.WriteByte(',')
	w.ID(l.findID)
}

// FreezeState writes METHOD:(SUB)STATS:WORK, or "-" when the position
// alone is enough to recover. STATS is the shared estimate, a race in
// progress as r{RACING,FANSUM,PENDING}SAMPLER(SUB)SAMPLER(CAND), or "-". WORK is
// the current fan-in for subfanin, followed by ?L=ID when its ids still
// need linkage L checked against ID, and the candidate index for typecheck.
func (l *linkstoImpl) FreezeState(it *iterator.Iterator, w *iterator.Writer) {
	if it.EOF() || it.Resuming() {
		w.WriteByte('-')
		return
	}
	sh := l.sh
	w.WriteByte(methodCodes[sh.method])
	w.WriteByte(':')
	w.Sub(l.sub, iterator.FlagAll)
	switch {
	case sh.stats.Valid:
		iterator.FreezeStats(w, sh.stats)
	case sh.race != nil:
		r := sh.race
		w.WriteString("r{")
		w.WriteByte(methodCodes[r.racing])
		w.WriteByte(',')
		w.Int(r.fanSum)
		w.WriteByte(',')
		w.ID(r.tcPending)
		w.WriteByte('}')
		r.sf.Freeze(w)
		w.Sub(r.sfSub, iterator.FlagAll)
		r.tc.Freeze(w)
		w.Sub(r.tcCand, iterator.FlagAll)
	default:
		w.WriteByte('-')
	}
	w.WriteByte(':')
	switch {
	case sh.method == MethodSubFanIn && l.fan != nil:
		w.Sub(l.fan, iterator.FlagAll)
		if l.want.Valid() {
			w.WriteByte('?')
			w.Linkage(l.want.Linkage)
			w.WriteByte('=')
			w.ID(l.want.Value)
		}
	case sh.method == MethodTypeCheck && l.cand != nil:
		w.Sub(l.cand, iterator.FlagAll)
	default:
		w.WriteByte('-')
	}
}

// frozenState is a parsed STATE section
type frozenState struct {
	method Method
	sub    *iterator.Iterator
	stats  iterator.Stats
	race   *race
	work   *iterator.Iterator
	want   Hint
}

func (f *frozenState) finish() {
	f.sub.Finish()
	if f.race != nil {
		f.race.finish()
	}
	f.work.Finish()
}

func thawLinksto(c *iterator.Cursor) (*iterator.Iterator, error) {
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
	pending, findID := graphd.IDNone, graphd.IDNone
	if !eof {
		err = p.Expect(",")
		if err == nil {
			pending, err = p.ID()
		}
		if err == nil {
			err = p.Expect(",")
		}
		if err == nil {
			findID, err = p.ID()
		}
	}
	if err == nil {
		err = p.End()
	}
	if err != nil {
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
		// Replaying the lazy form gives the same sequence as long as
		// statistics pick the same method again; otherwise catch-up
		// reports the state lost.
		it := newLazy(env, sub, o)
		it.Reposition(last, ordinal, eof)
		return it, nil
	}

	f, err := scanState(c.State, o)
	if err != nil {
		sub.Finish()
		return nil, err
	}
	sub.Finish()
	it, err := restore(c, o, f, last, ordinal, pending, findID)
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
		if o.Hint.Value, err = s.GUID(); err != nil {
			return o, nil, err
		}
		o.Hint.Linkage = graphd.LinkType
	}
	if err := s.Expect("->"); err != nil {
		return o, nil, err
	}
	sub, err := s.Sub()
	if err != nil {
		return o, nil, err
	}
	if err := scanBrackets(s, &o); err != nil {
		sub.Finish()
		return o, nil, err
	}
	return o, sub, nil
}

// scanBrackets reads the optional [md:][o:][a:][h:] suffixes in order
func scanBrackets(s *iterator.Scanner, o *Options) error {
	v, ok, err := s.Bracket("md")
	if err != nil {
		return err
	}
	if ok {
		m, known := methodFromName(v)
		if !known {
			return s.Semantic("unknown linksto method %q", v)
		}
		o.Method = m
	}
	if v, ok, err = s.Bracket("o"); err != nil {
		return err
	} else if ok {
		o.Ordering = v
	}
	if v, ok, err = s.Bracket("a"); err != nil {
		return err
	} else if ok {
		o.Account = v
	}
	start := s.Offset()
	if v, ok, err = s.Bracket("h"); err != nil {
		return err
	} else if ok {
		if o.Hint.Valid() {
			return s.Semantic("two hints")
		}
		h := s.Section(v, start+len("[h:"))
		if o.Hint.Linkage, err = h.Linkage(); err != nil {
			return err
		}
		if err := h.Expect("="); err != nil {
			return err
		}
		if o.Hint.Value, err = h.GUID(); err != nil {
			return err
		}
		if err := h.End(); err != nil {
			return err
		}
		if o.Hint.Linkage == graphd.LinkType {
			return h.Semantic("type hint belongs in +GUID")
		}
	}
	return s.End()
}

func scanState(s *iterator.Scanner, o Options) (*frozenState, error) {
	f := &frozenState{want: noHint}
	fail := func(err error) (*frozenState, error) {
		f.finish()
		return nil, err
	}
	m, ok := methodFromCode(s.Peek())
	if !ok {
		return fail(s.Lexical("expected production method"))
	}
	s.Accept(string(methodCodes[m]))
	f.method = m
	if err := s.Expect(":"); err != nil {
		return fail(err)
	}
	var err error
	if f.sub, err = s.Sub(); err != nil {
		return fail(err)
	}

	switch s.Peek() {
	case 's':
		if f.stats, err = iterator.ThawStats(s); err != nil {
			return fail(err)
		}
	case 'r':
		if f.race, err = scanRace(s); err != nil {
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
	if !s.Accept("-") {
		if f.work, err = s.Sub(); err != nil {
			return fail(err)
		}
		if s.Accept("?") {
			if f.want.Linkage, err = s.Linkage(); err != nil {
				return fail(err)
			}
			if err := s.Expect("="); err != nil {
				return fail(err)
			}
			if f.want.Value, err = s.ID(); err != nil {
				return fail(err)
			}
			if !f.want.Valid() {
				return fail(s.Semantic("filter without a value"))
			}
		}
	}
	if err := s.End(); err != nil {
		return fail(err)
	}

	switch {
	case f.method == MethodUnspecified && (f.stats.Valid || f.work != nil):
		return fail(s.Semantic("production state without a method"))
	case f.method != MethodUnspecified && !f.stats.Valid:
		return fail(s.Semantic("method %v without statistics", f.method))
	case o.Method != MethodUnspecified && f.method != MethodUnspecified && o.Method != f.method:
		return fail(s.Semantic("state method %v contradicts forced %v", f.method, o.Method))
	case f.method == MethodSubFanIn && f.work != nil && f.work.Kind() != "fanin" && f.work.Kind() != "vip":
		return fail(s.Semantic("subfanin work is a %s", f.work.Kind()))
	case f.want.Valid() && (f.method != MethodSubFanIn || f.work.Kind() != "fanin"):
		return fail(s.Semantic("filter on a %s", f.work.Kind()))
	case f.method == MethodTypeCheck && f.work != nil && !f.work.Sorted():
		return fail(s.Semantic("typecheck candidates are unsorted"))
	}
	return f, nil
}

func methodFromCode(c byte) (Method, bool) {
	for i, code := range methodCodes {
		if code == c {
			return Method(i), true
		}
	}
	return 0, false
}

// scanRace reads r{RACING,FANSUM,PENDING}SAMPLER(SUB)SAMPLER(CAND)
func scanRace(s *iterator.Scanner) (*race, error) {
	if err := s.Expect("r{"); err != nil {
		return nil, err
	}
	racing, ok := methodFromCode(s.Peek())
	if !ok {
		return nil, s.Lexical("expected racing method")
	}
	s.Accept(string(methodCodes[racing]))
	if err := s.Expect(","); err != nil {
		return nil, err
	}
	fanSum, err := s.Int()
	if err != nil {
		return nil, err
	}
	if fanSum < 0 {
		return nil, s.Semantic("negative fan-in sum %d", fanSum)
	}
	if err := s.Expect(","); err != nil {
		return nil, err
	}
	pending, err := s.ID()
	if err != nil {
		return nil, err
	}
	if err := s.Expect("}"); err != nil {
		return nil, err
	}
	r := &race{racing: racing, fanSum: fanSum, tcPending: pending}
	if r.sf, err = iterator.ThawSampler(s); err == nil {
		r.sfSub, err = s.Sub()
	}
	if err == nil {
		r.tc, err = iterator.ThawSampler(s)
	}
	if err == nil {
		r.tcCand, err = s.Sub()
	}
	if err != nil {
		r.finish()
		return nil, err
	}
	return r, nil
}

// restore builds the lazy iterator from a parsed cursor. On error the
// caller finishes what f still holds.
func restore(c *iterator.Cursor, o Options, f *frozenState, last graphd.ID, ordinal int64,
	pending, findID graphd.ID) (*iterator.Iterator, error) {
	env := c.Set.Env()
	l := &linkstoImpl{
		opts:    o,
		sub:     f.sub,
		want:    noHint,
		pending: graphd.IDNone,
		findID:  graphd.IDNone,
	}
	f.sub = nil

	if orig := originalOf(c, f.method); orig != nil {
		l.sh = orig.sh.acquire()
	} else {
		l.sh = &shared{refs: 1, stats: f.stats, method: f.method, race: f.race}
		f.race = nil
	}
	it := iterator.New(env, l, o.Low, o.High, o.Forward)
	it.SetSorted(o.Method == MethodTypeCheck)
	if l.sh.stats.Valid {
		l.apply(it)
	}

	switch f.method {
	case MethodUnspecified:
		if ordinal != 0 {
			it.Finish()
			return nil, c.State.Semantic("results before statistics completed")
		}
	case MethodSubFanIn:
		if pending != graphd.IDNone || findID != graphd.IDNone {
			it.Finish()
			return nil, c.State.Semantic("subfanin has no pending candidate")
		}
		l.fan, f.work = f.work, nil
		l.want = f.want
	case MethodTypeCheck:
		if f.work == nil && (pending != graphd.IDNone || findID != graphd.IDNone) {
			it.Finish()
			return nil, c.State.Semantic("pending candidate without candidate index")
		}
		l.cand, f.work = f.work, nil
		l.pending, l.findID = pending, findID
	}
	it.SetPosition(last, ordinal)
	f.finish()
	return it, nil
}

// originalOf returns the cached original's implementation when its shared
// state can serve a thawed clone running method m.
func originalOf(c *iterator.Cursor, m Method) *linkstoImpl {
	if c.Original == nil {
		return nil
	}
	orig, ok := c.Original.Impl().(*linkstoImpl)
	if !ok || !orig.sh.stats.Valid || orig.sh.method != m || m == MethodUnspecified {
		return nil
	}
	return orig
}

func init() {
	iterator.Register("linksto", thawLinksto)
}
