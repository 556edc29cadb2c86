// Package linksto finds the ids whose linkage L points into the result
// set of a sub-iterator.
//
// Two production methods race during statistics: subfanin walks the sub
// and enumerates each target's fan-in; typecheck walks a candidate index
// (the hint's fan-in, or every id) and checks each candidate's target
// against the sub. Small sub results are expanded at creation into a
// fixed array or an OR of fan-ins.
package linksto

import (
	"context"
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
	"github.com/wbrown/janus-graphd/graphd/storage"
)

// Method is how results are produced
type Method uint8

const (
	MethodUnspecified Method = iota
	MethodSubFanIn
	MethodTypeCheck
)

var methodCodes = [...]byte{'u', 's', 't'}
var methodNames = [...]string{"unspecified", "subfanin", "typecheck"}

func (m Method) String() string { return methodNames[m] }

func methodFromName(s string) (Method, bool) {
	for i, name := range methodNames {
		if name == s && i != int(MethodUnspecified) {
			return Method(i), true
		}
	}
	return 0, false
}

// Hint is a second linkage known to carry a constant on every result
type Hint struct {
	Linkage graphd.Linkage
	Value   graphd.ID // IDNone for no hint
}

// Valid reports whether the hint narrows anything
func (h Hint) Valid() bool { return h.Value != graphd.IDNone }

var noHint = Hint{Value: graphd.IDNone}

// Hints are creation-time requests
type Hints uint8

const (
	// HintOptimize asks for eager evaluation even when the sub's
	// statistics are not known yet
	HintOptimize Hints = 1 << iota
	// HintNoMasquerade keeps an evolved form freezing as itself
	HintNoMasquerade
)

// Options describe a linksto iterator
type Options struct {
	Linkage graphd.Linkage
	Hint    Hint
	Low     graphd.ID
	High    graphd.ID
	Forward bool
	Hints   Hints

	// Ordering is the ordering the caller would like; subfanin is
	// preferred when the sub already produces it. WantSorted prefers
	// typecheck, which produces ids in index order.
	Ordering   string
	WantSorted bool

	// Account labels every annotation the iterator emits
	Account string

	// Method forces a production method instead of racing
	Method Method
}

// NewOptions returns options for linkage l over the whole id space
func NewOptions(l graphd.Linkage) Options {
	return Options{Linkage: l, Hint: noHint, High: graphd.IDMax, Forward: true}
}

// shared is what an original and its clones have in common
type shared struct {
	refs   int
	stats  iterator.Stats
	method Method
	race   *race

	// targets is the complete sub result when sampling drained it
	targets  []graphd.ID
	complete bool
}

func (sh *shared) acquire() *shared {
	sh.refs++
	return sh
}

func (sh *shared) release() {
	sh.refs--
	if sh.refs == 0 && sh.race != nil {
		sh.race.finish()
		sh.race = nil
	}
}

type linkstoImpl struct {
	opts Options
	sub  *iterator.Iterator
	sh   *shared

	// subfanin: fan-in of the current target, and the linkage value every
	// id taken from it must still carry
	fan  *iterator.Iterator
	want Hint

	// typecheck: candidate index and the candidate being checked
	cand    *iterator.Iterator
	pending graphd.ID
	findID  graphd.ID
}

// Info is what IsInstance reports about a linksto iterator
type Info struct {
	Linkage graphd.Linkage
	Hint    Hint
	Sub     *iterator.Iterator
	Method  Method
}

// IsInstance reports whether it is currently a lazy linksto iterator
func IsInstance(it *iterator.Iterator) (Info, bool) {
	l, ok := it.Impl().(*linkstoImpl)
	if !ok {
		return Info{}, false
	}
	return Info{Linkage: l.opts.Linkage, Hint: l.opts.Hint, Sub: l.sub, Method: l.sh.method}, true
}

// Create returns an iterator over the ids whose linkage o.Linkage points
// at a result of sub. It takes ownership of sub.
func Create(ctx context.Context, env *iterator.Env, sub *iterator.Iterator, o Options) (*iterator.Iterator, error) {
	return create(ctx, env, sub, o, false)
}

// create pre-evaluates when asked to, when the sub already knows its
// statistics, or when rebuilding from a SET, so that a thawed SET
// reaches the same evolved form as the instance it was frozen from.
func create(ctx context.Context, env *iterator.Env, sub *iterator.Iterator, o Options, thawed bool) (*iterator.Iterator, error) {
	if err := env.CheckDeadline(ctx); err != nil {
		sub.Finish()
		return nil, err
	}
	if o.Linkage >= graphd.NLinkages || (o.Hint.Valid() && o.Hint.Linkage >= graphd.NLinkages) {
		sub.Finish()
		return nil, fmt.Errorf("linksto: bad linkage %v", o.Linkage)
	}
	if !labelOK(o.Ordering) || !labelOK(o.Account) {
		sub.Finish()
		return nil, fmt.Errorf("linksto: ordering %q or account %q cannot be frozen", o.Ordering, o.Account)
	}
	if iterator.IsNull(sub) {
		sub.Finish()
		return iterator.NewNull(env), nil
	}
	it := newLazy(env, sub, o)
	l := it.Impl().(*linkstoImpl)
	if o.Method == MethodUnspecified && (thawed || o.Hints&HintOptimize != 0 || sub.StatsDone()) {
		l.preEvaluate(it)
	}
	return it, nil
}

func newLazy(env *iterator.Env, sub *iterator.Iterator, o Options) *iterator.Iterator {
	if o.High == 0 || o.High > graphd.IDMax {
		o.High = graphd.IDMax
	}
	l := &linkstoImpl{
		opts:    o,
		sub:     sub,
		sh:      &shared{refs: 1},
		want:    noHint,
		pending: graphd.IDNone,
		findID:  graphd.IDNone,
	}
	it := iterator.New(env, l, o.Low, o.High, o.Forward)
	it.SetSorted(o.Method == MethodTypeCheck)
	return it
}

// preEvaluate expands a small, cheap sub at creation
func (l *linkstoImpl) preEvaluate(it *iterator.Iterator) {
	env := it.Env()
	restore := env.Unyielding()
	defer restore()
	b := iterator.Budget(env.Tuning.PreEvalMaxCost)

	if err := l.sub.Statistics(&b); err != nil {
		return
	}
	sub := l.sub.Stats()
	if sub.N > int64(env.Tuning.OrMax) || sub.N*(sub.NextCost+env.Tuning.CostIndexOpen) > int64(b) {
		return
	}
	targets, complete, err := iterator.Collect(l.sub, &b, env.Tuning.OrMax)
	if err != nil || !complete {
		return
	}
	if repl, ok := l.materialize(it, &b, targets); ok {
		it.Become(repl, "pre-evaluated")
	}
}

// lookup returns the ids pointing at target t, read from the smallest
// index that holds them. Both VIP forms the hint allows are exact; a plain
// fan-in over the target or over the hint needs the other side checked per
// id, which want names (invalid when nothing is left to check). Counts
// come from index metadata and are paid for when the chosen index opens.
func (l *linkstoImpl) lookup(it *iterator.Iterator, t graphd.ID) (fan *iterator.Iterator, want Hint) {
	env, o, h := it.Env(), l.opts, l.opts.Hint
	low, high, fwd := it.Low(), it.High(), it.Forward()
	if !h.Valid() {
		return iterator.NewFanIn(env, o.Linkage, t, low, high, fwd), noHint
	}

	type form struct {
		n    int64
		open func() (*iterator.Iterator, error)
		want Hint
	}
	var forms []form
	add := func(n int64, err error, mk func() (*iterator.Iterator, error), want Hint) {
		if err == nil {
			forms = append(forms, form{n: n, open: mk, want: want})
		}
	}
	if storage.HasVIP(o.Linkage, h.Linkage) {
		n, err := env.Store.VIPCount(o.Linkage, t, h.Value)
		add(n, err, func() (*iterator.Iterator, error) {
			return iterator.NewVIP(env, o.Linkage, t, h.Value, low, high, fwd)
		}, noHint)
	}
	if storage.HasVIP(h.Linkage, o.Linkage) {
		n, err := env.Store.VIPCount(h.Linkage, h.Value, t)
		add(n, err, func() (*iterator.Iterator, error) {
			return iterator.NewVIP(env, h.Linkage, h.Value, t, low, high, fwd)
		}, noHint)
	}
	if h.Linkage != o.Linkage {
		n, err := env.Store.FanInCount(h.Linkage, h.Value)
		add(n, err, func() (*iterator.Iterator, error) {
			return iterator.NewFanIn(env, h.Linkage, h.Value, low, high, fwd), nil
		}, Hint{Linkage: o.Linkage, Value: t})
	}
	n, err := env.Store.FanInCount(o.Linkage, t)
	add(n, err, func() (*iterator.Iterator, error) {
		return iterator.NewFanIn(env, o.Linkage, t, low, high, fwd), nil
	}, h)

	best := -1
	for i, f := range forms {
		// ties keep the earlier, exact form
		if best < 0 || f.n < forms[best].n {
			best = i
		}
	}
	if best >= 0 {
		if fan, err := forms[best].open(); err == nil {
			return fan, forms[best].want
		}
	}
	return iterator.NewFanIn(env, o.Linkage, t, low, high, fwd), h
}

// candidates returns the sorted index typecheck walks
func (l *linkstoImpl) candidates(it *iterator.Iterator) *iterator.Iterator {
	env, h := it.Env(), l.opts.Hint
	if h.Valid() {
		return iterator.NewFanIn(env, h.Linkage, h.Value, it.Low(), it.High(), it.Forward())
	}
	return iterator.NewAll(env, it.Low(), it.High(), it.Forward())
}

// materialize builds the evolved form over a complete list of targets:
// a fixed array when the result is small, an OR of the per-target
// lookups when only the number of targets is.
func (l *linkstoImpl) materialize(it *iterator.Iterator, b *iterator.Budget, targets []graphd.ID) (*iterator.Iterator, bool) {
	env := it.Env()
	arms := make([]*iterator.Iterator, 0, len(targets))
	release := func() {
		for _, a := range arms {
			a.Finish()
		}
	}
	var total int64
	wants := make([]Hint, 0, len(targets))
	filter := false
	for _, t := range targets {
		fan, want := l.lookup(it, t)
		filter = filter || want.Valid()
		if err := fan.Statistics(b); err != nil {
			fan.Finish()
			release()
			return nil, false
		}
		total += fan.N()
		arms = append(arms, fan)
		wants = append(wants, want)
	}

	if total <= int64(env.Tuning.InlineMax) {
		ids := redblacktree.NewWith(utils.UInt64Comparator)
		for i, fan := range arms {
			values, _ := fan.Values()
			if values == nil {
				var err error
				if values, err = drainArm(fan, b); err != nil {
					release()
					return nil, false
				}
			}
			for _, x := range values {
				ok, err := l.wantOK(it, b, x, wants[i])
				if err != nil {
					release()
					return nil, false
				}
				if ok {
					ids.Put(uint64(x), struct{}{})
				}
			}
		}
		release()
		out := make([]graphd.ID, 0, ids.Size())
		for _, k := range ids.Keys() {
			out = append(out, graphd.ID(k.(uint64)))
		}
		if len(out) == 0 {
			return iterator.NewNull(env), true
		}
		fixed := iterator.NewFixed(env, out, it.Low(), it.High(), it.Forward())
		if len(out) > env.Tuning.MasqueradeMin {
			l.masquerade(it, fixed)
		}
		return fixed, true
	}

	if filter || len(arms) > env.Tuning.OrMax {
		release()
		return nil, false
	}
	or, err := iterator.NewOr(env, arms, it.Low(), it.High(), it.Forward())
	if err != nil {
		release()
		return nil, false
	}
	l.masquerade(it, or)
	return or, true
}

// drainArm reads a fan-in or VIP list completely
func drainArm(fan *iterator.Iterator, b *iterator.Budget) ([]graphd.ID, error) {
	var out []graphd.ID
	for {
		x, err := fan.Next(b)
		if err != nil {
			if iterator.IsNo(err) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, x)
	}
}

func (l *linkstoImpl) masquerade(it, repl *iterator.Iterator) {
	if l.opts.Hints&HintNoMasquerade != 0 {
		return
	}
	if text, err := it.SetText(); err == nil {
		repl.SetMasquerade(text)
	}
}

// wantOK reports whether x's linkage w.Linkage points at w.Value. An
// invalid w accepts everything; a missing x matches nothing.
func (l *linkstoImpl) wantOK(it *iterator.Iterator, b *iterator.Budget, x graphd.ID, w Hint) (bool, error) {
	if !w.Valid() {
		return true, nil
	}
	v, ok, err := it.Env().Follow(b, x, w.Linkage)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return ok && v == w.Value, nil
}

// matches reports whether x's linkage points at a sub result
func (l *linkstoImpl) matches(it *iterator.Iterator, b *iterator.Budget, x graphd.ID, checkHint bool) (bool, error) {
	t, ok, err := it.Env().Follow(b, x, l.opts.Linkage)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !ok {
		return false, nil
	}
	if checkHint {
		if ok, err := l.wantOK(it, b, x, l.opts.Hint); err != nil || !ok {
			return false, err
		}
	}
	if err := l.sub.Check(t, b); err != nil {
		if iterator.IsNo(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// emit records an event tagged with the iterator's account
func (l *linkstoImpl) emit(env *iterator.Env, name string, data map[string]interface{}) {
	if !env.Tracing() {
		return
	}
	if l.opts.Account != "" {
		data["account"] = l.opts.Account
	}
	env.Emit(name, data)
}

func (l *linkstoImpl) Kind() string { return "linksto" }

func (l *linkstoImpl) Clone(it *iterator.Iterator) (*iterator.Iterator, error) {
	sub, err := l.sub.Clone()
	if err != nil {
		return nil, err
	}
	c := &linkstoImpl{
		opts:    l.opts,
		sub:     sub,
		sh:      l.sh.acquire(),
		want:    noHint,
		pending: graphd.IDNone,
		findID:  graphd.IDNone,
	}
	return it.NewClone(c), nil
}

func (l *linkstoImpl) Reset(it *iterator.Iterator) {
	l.sub.Reset()
	l.fan.Finish()
	l.fan, l.want = nil, noHint
	if l.cand != nil {
		l.cand.Reset()
	}
	l.pending, l.findID = graphd.IDNone, graphd.IDNone
}

func (l *linkstoImpl) Finish(it *iterator.Iterator) {
	l.fan.Finish()
	l.cand.Finish()
	l.sub.Finish()
	l.sh.release()
}
