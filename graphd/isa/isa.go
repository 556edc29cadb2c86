// Package isa resolves a set of source ids to the distinct ids their
// linkage L points at.
//
// The lazy form pulls sub results, follows L and suppresses targets it
// already produced, either through a shared append-only cache (storable)
// or by intersecting the target's fan-in with earlier sub results
// (intersect). Small result sets are materialized into a fixed array at
// creation or statistics time.
package isa

import (
	"context"
	"fmt"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/iterator"
	"github.com/wbrown/janus-graphd/graphd/storage"
)

// Method is the duplicate elimination strategy
type Method uint8

const (
	MethodUnspecified Method = iota
	MethodStorable
	MethodIntersect
)

var methodCodes = [...]byte{'u', 's', 'i'}
var methodNames = [...]string{"unspecified", "storable", "intersect"}

func (m Method) String() string { return methodNames[m] }

func methodFromCode(c byte) (Method, bool) {
	for i, code := range methodCodes {
		if code == c {
			return Method(i), true
		}
	}
	return 0, false
}

// Hints are creation-time requests
type Hints uint8

const (
	// HintOptimize asks for eager evaluation at creation when it is cheap
	HintOptimize Hints = 1 << iota
	// HintNoMasquerade keeps an evolved fixed array freezing as itself
	HintNoMasquerade
)

// Options describe an isa iterator
type Options struct {
	Linkage graphd.Linkage
	Type    graphd.ID // only produce targets of this type; IDNone for any
	Low     graphd.ID
	High    graphd.ID
	Forward bool
	Hints   Hints

	// Method and Join force a strategy instead of choosing by cost
	Method Method
	Join   Join
}

// NewOptions returns options for following l over the whole id space
func NewOptions(l graphd.Linkage) Options {
	return Options{Linkage: l, Type: graphd.IDNone, High: graphd.IDMax, Forward: true}
}

type callState uint8

const (
	stIdle callState = iota
	stDup            // candidate in cand, duplicate test running
)

// shared is what an original and its clones have in common
type shared struct {
	refs      int
	stats     iterator.Stats
	method    Method
	sampler   *iterator.Sampler
	sampleSub *iterator.Iterator

	// inline is the complete result set when sampling exhausted a small sub
	inline  []graphd.ID
	inlined bool

	cache *StorableCache
}

func (sh *shared) acquire() *shared {
	sh.refs++
	return sh
}

func (sh *shared) release() {
	sh.refs--
	if sh.refs > 0 {
		return
	}
	sh.sampleSub.Finish()
	sh.sampleSub = nil
	if sh.cache != nil {
		sh.cache.release()
		sh.cache = nil
	}
}

type isaImpl struct {
	opts   Options
	sub    *iterator.Iterator
	sh     *shared
	thawed bool

	state  callState
	source graphd.ID // sub result behind the current or last candidate
	cand   graphd.ID
	dup    dupTest
	dupSub *iterator.Iterator // sorted clone of sub for duplicate tests

	cache *StorableCache // acquired from sh on first storable use
	pos   int

	checks    *checkCache
	checkTest dupTest
	checkSub  *iterator.Iterator
}

// Info is what IsInstance reports about an isa iterator
type Info struct {
	Linkage graphd.Linkage
	Type    graphd.ID
	Sub     *iterator.Iterator
	Method  Method
}

// IsInstance reports whether it is currently a lazy isa iterator, and
// how it is built.
func IsInstance(it *iterator.Iterator) (Info, bool) {
	i, ok := it.Impl().(*isaImpl)
	if !ok {
		return Info{}, false
	}
	return Info{Linkage: i.opts.Linkage, Type: i.opts.Type, Sub: i.sub, Method: i.sh.method}, true
}

// Create returns an iterator over the distinct targets of sub's results
// along o.Linkage. It takes ownership of sub. Cheap cases are resolved
// immediately: an empty sub gives null, a sub pinned to a constant on the
// same linkage gives that constant, and with HintOptimize a small sub is
// evaluated into a fixed array.
func Create(ctx context.Context, env *iterator.Env, sub *iterator.Iterator, o Options) (*iterator.Iterator, error) {
	return create(ctx, env, sub, o, false)
}

func create(ctx context.Context, env *iterator.Env, sub *iterator.Iterator, o Options, thawed bool) (*iterator.Iterator, error) {
	if err := env.CheckDeadline(ctx); err != nil {
		sub.Finish()
		return nil, err
	}
	if o.Linkage >= graphd.NLinkages {
		sub.Finish()
		return nil, fmt.Errorf("isa: bad linkage %v", o.Linkage)
	}
	if o.Method == MethodIntersect && !sub.Sorted() {
		sub.Finish()
		return nil, fmt.Errorf("isa: intersect needs a sorted sub, got %s", sub.Kind())
	}
	if iterator.IsNull(sub) {
		sub.Finish()
		return iterator.NewNull(env), nil
	}
	it := newLazy(env, sub, o)
	it.Impl().(*isaImpl).thawed = thawed
	if o.Method == MethodUnspecified {
		it.Impl().(*isaImpl).shortcut(it)
	}
	return it, nil
}

func newLazy(env *iterator.Env, sub *iterator.Iterator, o Options) *iterator.Iterator {
	if o.High == 0 || o.High > graphd.IDMax {
		o.High = graphd.IDMax
	}
	i := &isaImpl{
		opts:   o,
		sub:    sub,
		sh:     &shared{refs: 1},
		source: graphd.IDNone,
		cand:   graphd.IDNone,
		checks: newCheckCache(env.Tuning.CheckCacheSize),
	}
	it := iterator.New(env, i, o.Low, o.High, o.Forward)
	it.SetSorted(false)
	return it
}

// shortcut runs the creation-time evaluations. Failure of any of them
// only means the lazy form stays.
func (i *isaImpl) shortcut(it *iterator.Iterator) {
	env := it.Env()
	restore := env.Unyielding()
	defer restore()
	b := iterator.Budget(env.Tuning.PreEvalMaxCost)

	if c, ok := i.sub.Pinned(i.opts.Linkage); ok {
		if err := i.sub.Statistics(&b); err != nil {
			return
		}
		var ids []graphd.ID
		if i.sub.N() > 0 && it.InRange(c) {
			ok, err := i.typeOK(it, &b, c)
			if err != nil {
				return
			}
			if ok {
				ids = append(ids, c)
			}
		}
		i.evolve(it, ids, "pinned")
		return
	}

	if i.opts.Hints&HintOptimize == 0 {
		return
	}
	if err := i.sub.Statistics(&b); err != nil {
		return
	}
	per := i.sub.Stats().NextCost + env.Tuning.CostPrimitive + env.Tuning.CostLinkage
	if i.sub.N()*per > int64(b) {
		return
	}
	sources, complete, err := iterator.Collect(i.sub, &b, int(i.sub.N())+env.Tuning.InlineMax)
	if err != nil || !complete {
		return
	}
	seen := make(map[graphd.ID]struct{}, len(sources))
	var ids []graphd.ID
	for _, s := range sources {
		d, ok, err := i.accept(it, &b, s)
		if err != nil {
			return
		}
		if _, dup := seen[d]; ok && !dup {
			seen[d] = struct{}{}
			ids = append(ids, d)
		}
	}
	i.evolve(it, ids, "pre-evaluated")
}

// evolve replaces the iterator with the fixed array of ids, or null
func (i *isaImpl) evolve(it *iterator.Iterator, ids []graphd.ID, reason string) {
	env := it.Env()
	if len(ids) == 0 {
		it.Become(iterator.NewNull(env), reason)
		return
	}
	repl := iterator.NewFixed(env, ids, it.Low(), it.High(), it.Forward())
	if len(ids) > env.Tuning.MasqueradeMin && i.opts.Hints&HintNoMasquerade == 0 {
		if text, err := it.SetText(); err == nil {
			repl.SetMasquerade(text)
		}
	}
	it.Become(repl, reason)
}

// accept follows the linkage from sub result src. ok is false when src
// contributes nothing: no such linkage, target out of range or of the
// wrong type.
func (i *isaImpl) accept(it *iterator.Iterator, b *iterator.Budget, src graphd.ID) (graphd.ID, bool, error) {
	d, ok, err := it.Env().Follow(b, src, i.opts.Linkage)
	if err != nil {
		if storage.IsNotFound(err) {
			return graphd.IDNone, false, nil
		}
		return graphd.IDNone, false, err
	}
	if !ok || !it.InRange(d) {
		return graphd.IDNone, false, nil
	}
	if ok, err = i.typeOK(it, b, d); err != nil || !ok {
		return graphd.IDNone, false, err
	}
	return d, true, nil
}

// acceptCost is the most accept charges for one source
func (i *isaImpl) acceptCost(env *iterator.Env) int64 {
	if i.opts.Type == graphd.IDNone {
		return env.FollowCost()
	}
	return 2 * env.FollowCost()
}

// typeOK reports whether d has the required type. A missing target is
// not of any type; other store failures are returned.
func (i *isaImpl) typeOK(it *iterator.Iterator, b *iterator.Budget, d graphd.ID) (bool, error) {
	if i.opts.Type == graphd.IDNone {
		return true, nil
	}
	t, ok, err := it.Env().Follow(b, d, graphd.LinkType)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return ok && t == i.opts.Type, nil
}

func (i *isaImpl) Kind() string { return "isa" }

func (i *isaImpl) Find(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) (graphd.ID, error) {
	return graphd.IDNone, iterator.ErrNotSorted
}

func (i *isaImpl) Clone(it *iterator.Iterator) (*iterator.Iterator, error) {
	sub, err := i.sub.Clone()
	if err != nil {
		return nil, err
	}
	c := &isaImpl{
		opts:   i.opts,
		sub:    sub,
		sh:     i.sh.acquire(),
		thawed: i.thawed,
		source: graphd.IDNone,
		cand:   graphd.IDNone,
		checks: newCheckCache(it.Env().Tuning.CheckCacheSize),
	}
	return it.NewClone(c), nil
}

func (i *isaImpl) Reset(it *iterator.Iterator) {
	i.sub.Reset()
	i.dup.stop()
	i.state = stIdle
	i.source, i.cand = graphd.IDNone, graphd.IDNone
	i.pos = 0
}

func (i *isaImpl) Finish(it *iterator.Iterator) {
	i.dup.stop()
	i.checkTest.stop()
	i.dupSub.Finish()
	i.checkSub.Finish()
	i.sub.Finish()
	if i.cache != nil {
		i.cache.release()
		i.cache = nil
	}
	i.sh.release()
}

// useCache returns the shared storable cache, acquiring it on first use
func (i *isaImpl) useCache() *StorableCache {
	if i.cache == nil {
		i.cache = i.sh.cache.acquire()
	}
	return i.cache
}

// chooseMethod fixes the duplicate elimination method once statistics
// are known.
func (i *isaImpl) chooseMethod(it *iterator.Iterator) error {
	env, sh := it.Env(), i.sh
	m := i.opts.Method
	if m == MethodIntersect && !i.sub.Sorted() {
		m = MethodStorable
	}
	if m == MethodUnspecified {
		threshold := env.Tuning.IsaIntersectThreshold
		if i.thawed {
			threshold = env.Tuning.IsaIntersectThawThreshold
		}
		m = MethodStorable
		if i.sub.Sorted() && sh.stats.N > threshold {
			m = MethodIntersect
		}
	}
	if m == MethodStorable && sh.cache == nil {
		feeder, err := i.sub.Clone()
		if err != nil {
			return err
		}
		sh.cache = newStorableCache(feeder)
	}
	sh.method = m
	env.Emit(annotations.IsaDupMethod, map[string]interface{}{
		"method": m.String(), "n": sh.stats.N, "sorted": i.sub.Sorted(), "thawed": i.thawed,
	})
	return nil
}

// checkCache remembers the last few check answers of one instance
type checkCache struct {
	ids  []graphd.ID
	vals map[graphd.ID]bool
	next int
}

func newCheckCache(size int) *checkCache {
	if size < 1 {
		size = 1
	}
	return &checkCache{ids: make([]graphd.ID, 0, size), vals: make(map[graphd.ID]bool, size)}
}

func (c *checkCache) get(id graphd.ID) (member, ok bool) {
	member, ok = c.vals[id]
	return
}

func (c *checkCache) put(id graphd.ID, member bool) {
	if _, ok := c.vals[id]; ok {
		c.vals[id] = member
		return
	}
	if len(c.ids) < cap(c.ids) {
		c.ids = append(c.ids, id)
	} else {
		delete(c.vals, c.ids[c.next])
		c.ids[c.next] = id
		c.next = (c.next + 1) % len(c.ids)
	}
	c.vals[id] = member
}
