package isa_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/codec"
	"github.com/wbrown/janus-graphd/graphd/isa"
	"github.com/wbrown/janus-graphd/graphd/iterator"
	"github.com/wbrown/janus-graphd/graphd/iterator/iteratortest"
)

const (
	typeEven = graphd.ID(900)
	typeOdd  = graphd.ID(901)
)

// chainGraph writes targets 1000..1006 and sources 1..n. Source s points
// left at 1000+s%7, except every fifth source, which has no left linkage.
func chainGraph(t *testing.T, n int) *iteratortest.Graph {
	g := iteratortest.NewGraph(t)
	for tgt := graphd.ID(1000); tgt < 1007; tgt++ {
		typ := typeEven
		if tgt%2 == 1 {
			typ = typeOdd
		}
		g.Add(tgt, iteratortest.Links{graphd.LinkType: typ})
	}
	for s := graphd.ID(1); s <= graphd.ID(n); s++ {
		if s%5 == 0 {
			g.Node(s)
			continue
		}
		g.Add(s, iteratortest.Links{graphd.LinkLeft: 1000 + s%7})
	}
	g.Node(2000)
	return g
}

func sourceIDs(n int) []graphd.ID {
	ids := make([]graphd.ID, 0, n)
	for s := graphd.ID(1); s <= graphd.ID(n); s++ {
		ids = append(ids, s)
	}
	return ids
}

// expected returns the distinct targets of sources in order of first
// occurrence, filtered by keep.
func expected(sources []graphd.ID, keep func(graphd.ID) bool) []graphd.ID {
	seen := make(map[graphd.ID]bool)
	var out []graphd.ID
	for _, s := range sources {
		if s%5 == 0 {
			continue
		}
		d := 1000 + s%7
		if seen[d] || (keep != nil && !keep(d)) {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func createIsa(t *testing.T, env *iterator.Env, sub *iterator.Iterator, o isa.Options) *iterator.Iterator {
	t.Helper()
	it, err := isa.Create(context.Background(), env, sub, o)
	require.NoError(t, err)
	return it
}

func forced(m isa.Method, j isa.Join) isa.Options {
	o := isa.NewOptions(graphd.LinkLeft)
	o.Method, o.Join = m, j
	return o
}

var strategies = []struct {
	name   string
	method isa.Method
	join   isa.Join
}{
	{"storable", isa.MethodStorable, isa.JoinAuto},
	{"intersect", isa.MethodIntersect, isa.JoinAuto},
	{"intersect/A", isa.MethodIntersect, isa.JoinFanIn},
	{"intersect/B", isa.MethodIntersect, isa.JoinSub},
	{"intersect/AB", isa.MethodIntersect, isa.JoinZigZag},
}

func TestScenarioDedup(t *testing.T) {
	g := iteratortest.NewGraph(t).
		Add(10, iteratortest.Links{graphd.LinkLeft: 100}).
		Add(11, iteratortest.Links{graphd.LinkLeft: 100}).
		Add(12, iteratortest.Links{graphd.LinkLeft: 200})

	for _, tt := range append(strategies, struct {
		name   string
		method isa.Method
		join   isa.Join
	}{"adaptive", isa.MethodUnspecified, isa.JoinAuto}) {
		t.Run(tt.name, func(t *testing.T) {
			env := g.Env()
			sub := iterator.NewFixed(env, []graphd.ID{10, 11, 12}, 0, graphd.IDMax, true)
			it := createIsa(t, env, sub, forced(tt.method, tt.join))
			defer it.Finish()
			got := iteratortest.Drain(t, it, 1000)
			assert.Equal(t, []graphd.ID{100, 200}, iteratortest.Sorted(got))
			assert.Len(t, got, 2)
		})
	}
}

func TestStrategiesAgree(t *testing.T) {
	const n = 60
	g := chainGraph(t, n)
	want := expected(sourceIDs(n), nil)

	for _, tt := range strategies {
		t.Run(tt.name, func(t *testing.T) {
			env := g.Env()
			sub := iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true)
			it := createIsa(t, env, sub, forced(tt.method, tt.join))
			defer it.Finish()

			got := iteratortest.Drain(t, it, 1000)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("results (-want +got):\n%s", diff)
			}
			info, ok := isa.IsInstance(it)
			require.True(t, ok)
			assert.Equal(t, tt.method, info.Method)
			assert.Equal(t, graphd.LinkLeft, info.Linkage)
		})
	}
}

func TestAdaptiveStaysLazyForLargeSub(t *testing.T) {
	const n = 60
	g := chainGraph(t, n)
	env := g.Env()
	it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), isa.NewOptions(graphd.LinkLeft))
	defer it.Finish()

	iteratortest.Statistics(t, it, 1000)
	assert.Equal(t, "isa", it.Kind())
	assert.False(t, it.Sorted())
	assert.True(t, it.StatsDone())
	assert.Greater(t, it.N(), int64(0))

	methods := env.Events.Named(annotations.IsaDupMethod)
	require.Len(t, methods, 1)
	assert.Equal(t, "storable", methods[0].Data["method"])
	assert.NotEmpty(t, env.Events.Named(annotations.StatsSampled))

	got := iteratortest.Drain(t, it, 1000)
	assert.Equal(t, expected(sourceIDs(n), nil), got)
}

func TestUniquenessAndCompleteness(t *testing.T) {
	const n = 40
	g := chainGraph(t, n)
	unsortedSources := []graphd.ID{33, 7, 21, 2, 40, 18, 5, 11, 29, 1, 14, 38, 26, 9}

	subs := map[string]func(env *iterator.Env) *iterator.Iterator{
		"sorted": func(env *iterator.Env) *iterator.Iterator {
			return iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true)
		},
		"backward": func(env *iterator.Env) *iterator.Iterator {
			return iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, false)
		},
		"unsorted": func(env *iterator.Env) *iterator.Iterator {
			return iteratortest.NewList(env, false, unsortedSources...)
		},
	}
	for name, mk := range subs {
		for _, tt := range strategies {
			if name == "unsorted" && tt.method == isa.MethodIntersect {
				continue
			}
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				env := g.Env()
				o := forced(tt.method, tt.join)
				o.Low, o.High = 1001, 1006
				it := createIsa(t, env, mk(env), o)
				defer it.Finish()

				got := iteratortest.Drain(t, it, 1000)
				seen := make(map[graphd.ID]bool)
				for _, id := range got {
					assert.False(t, seen[id], "%v returned twice", id)
					seen[id] = true
				}

				it.Reset()
				checker, err := it.Clone()
				require.NoError(t, err)
				defer checker.Finish()
				for id := graphd.ID(995); id < 1010; id++ {
					assert.Equal(t, seen[id], iteratortest.Check(t, checker, id, 1000), "check %v", id)
				}
				assert.False(t, iteratortest.Check(t, checker, 2000, 1000))
				for id := range seen {
					assert.True(t, id >= 1001 && id < 1006)
				}
			})
		}
	}
}

func TestTypeConstraint(t *testing.T) {
	const n = 30
	g := chainGraph(t, n)
	even := func(d graphd.ID) bool { return d%2 == 0 }
	for _, tt := range strategies[:2] {
		t.Run(tt.name, func(t *testing.T) {
			env := g.Env()
			o := forced(tt.method, tt.join)
			o.Type = typeEven
			it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), o)
			defer it.Finish()
			assert.Equal(t, expected(sourceIDs(n), even), iteratortest.Drain(t, it, 1000))
			assert.False(t, iteratortest.Check(t, it, 1001, 1000))

			text, err := it.Freeze(iterator.FlagSet)
			require.NoError(t, err)
			guid, err := env.Store.GUID(typeEven)
			require.NoError(t, err)
			assert.Contains(t, text, ":L+"+guid.String()+"<-")
		})
	}
}

func TestEvolvesIntoFixedArray(t *testing.T) {
	const n = 15
	g := chainGraph(t, n)
	env := g.Env()

	lazy := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), forced(isa.MethodStorable, isa.JoinAuto))
	want := iteratortest.Sorted(iteratortest.Drain(t, lazy, 1000))
	lazy.Finish()

	it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), isa.NewOptions(graphd.LinkLeft))
	defer it.Finish()
	require.Equal(t, "isa", it.Kind())
	gen := it.Generation()

	iteratortest.Statistics(t, it, 1000)
	assert.Equal(t, "fixed", it.Kind())
	assert.NotEqual(t, gen, it.Generation())
	assert.True(t, it.Sorted())
	assert.Equal(t, want, iteratortest.Drain(t, it, 1000))

	evolved := env.Events.Named(annotations.IteratorEvolved)
	require.NotEmpty(t, evolved)
	assert.Equal(t, "statistics", evolved[len(evolved)-1].Data["reason"])

	// Seven targets exceed the masquerade minimum, so the array still
	// freezes as the isa expression and thaws back into it.
	it.Reset()
	_, ok := iteratortest.NextOne(t, it, 1000)
	require.True(t, ok)
	text, err := it.Freeze(iterator.FlagAll)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "isa:0:L<-(fixed:0:("), text)
	assert.True(t, strings.HasSuffix(text, "/=1000@1/-"), text)

	thawed := iteratortest.RoundTrip(t, env, it)
	defer thawed.Finish()
	assert.Equal(t, "fixed", thawed.Kind())
	assert.Equal(t, want[1:], iteratortest.Drain(t, thawed, 1000))
}

func TestCreateShortcuts(t *testing.T) {
	const n = 60
	g := chainGraph(t, n)

	t.Run("null sub", func(t *testing.T) {
		env := g.Env()
		it := createIsa(t, env, iterator.NewNull(env), isa.NewOptions(graphd.LinkLeft))
		assert.True(t, iterator.IsNull(it))
	})

	t.Run("pinned sub", func(t *testing.T) {
		env := g.Env()
		sub := iterator.NewFanIn(env, graphd.LinkLeft, 1003, 0, graphd.IDMax, true)
		it := createIsa(t, env, sub, isa.NewOptions(graphd.LinkLeft))
		defer it.Finish()
		values, ok := it.Values()
		require.True(t, ok)
		assert.Equal(t, []graphd.ID{1003}, values)
	})

	t.Run("pinned out of range", func(t *testing.T) {
		env := g.Env()
		sub := iterator.NewFanIn(env, graphd.LinkLeft, 1003, 0, graphd.IDMax, true)
		o := isa.NewOptions(graphd.LinkLeft)
		o.Low = 1004
		it := createIsa(t, env, sub, o)
		defer it.Finish()
		assert.Equal(t, "null", it.Kind())
	})

	t.Run("optimize hint", func(t *testing.T) {
		env := g.Env()
		o := isa.NewOptions(graphd.LinkLeft)
		o.Hints = isa.HintOptimize
		it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), o)
		defer it.Finish()
		values, ok := it.Values()
		require.True(t, ok)
		assert.Equal(t, iteratortest.Sorted(expected(sourceIDs(n), nil)), values)
		assert.Contains(t, it.Masquerade(), "[hint:1]")
	})

	t.Run("no masquerade hint", func(t *testing.T) {
		env := g.Env()
		o := isa.NewOptions(graphd.LinkLeft)
		o.Hints = isa.HintOptimize | isa.HintNoMasquerade
		it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), o)
		defer it.Finish()
		assert.Equal(t, "fixed", it.Kind())
		assert.Empty(t, it.Masquerade())
	})

	t.Run("intersect needs sorted sub", func(t *testing.T) {
		env := g.Env()
		_, err := isa.Create(context.Background(), env, iteratortest.NewList(env, false, 3, 1), forced(isa.MethodIntersect, isa.JoinAuto))
		assert.Error(t, err)
	})

	t.Run("deadline", func(t *testing.T) {
		env := g.Env()
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()
		_, err := isa.Create(ctx, env, iterator.NewFixed(env, []graphd.ID{1}, 0, graphd.IDMax, true), isa.NewOptions(graphd.LinkLeft))
		assert.True(t, errors.Is(err, iterator.ErrTooHard))
	})
}

func TestCursorGrammar(t *testing.T) {
	g := chainGraph(t, 10)
	env := g.Env()
	o := isa.NewOptions(graphd.LinkLeft)
	o.Low, o.High = 100, 200
	it := createIsa(t, env, iterator.NewFixed(env, []graphd.ID{1, 2, 3}, 0, graphd.IDMax, true), o)
	defer it.Finish()

	text, err := it.Freeze(iterator.FlagSet)
	require.NoError(t, err)
	assert.Equal(t, "isa:100-200:L<-(fixed:0:(1,2,3))", text)

	thawed, err := iterator.Thaw(context.Background(), env, text)
	require.NoError(t, err)
	defer thawed.Finish()
	assert.Equal(t, graphd.ID(100), thawed.Low())
	assert.Equal(t, graphd.ID(200), thawed.High())
	info, ok := isa.IsInstance(thawed)
	require.True(t, ok)
	assert.Equal(t, graphd.LinkLeft, info.Linkage)
	assert.Equal(t, "fixed", info.Sub.Kind())
}

func TestFreezeThawEveryInterruption(t *testing.T) {
	const n = 45
	g := chainGraph(t, n)
	want := expected(sourceIDs(n), nil)

	for _, tt := range append(strategies, struct {
		name   string
		method isa.Method
		join   isa.Join
	}{"adaptive", isa.MethodUnspecified, isa.JoinAuto}) {
		for _, every := range []int{1, 3} {
			t.Run(fmt.Sprintf("%s/every-%d", tt.name, every), func(t *testing.T) {
				env := g.Env()
				env.Yield = iterator.EveryNth(every)
				it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), forced(tt.method, tt.join))
				got, last := iteratortest.DrainWithFreezes(t, env, it, 40)
				defer last.Finish()
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("results (-want +got):\n%s", diff)
				}
				assert.Greater(t, env.ForcedYields(), int64(0))
			})
		}
	}
}

func TestFreezeThawUnsortedSub(t *testing.T) {
	const n = 30
	g := chainGraph(t, n)
	order := []graphd.ID{17, 3, 29, 8, 22, 1, 14, 26, 9, 4, 30, 12}
	want := expected(order, nil)

	env := g.Env()
	env.Yield = iterator.EveryNth(2)
	it := createIsa(t, env, iteratortest.NewList(env, false, order...), isa.NewOptions(graphd.LinkLeft))
	got, last := iteratortest.DrainWithFreezes(t, env, it, 30)
	defer last.Finish()
	assert.Equal(t, want, got)
}

func TestThawWithoutCacheSwitchesToIntersect(t *testing.T) {
	const n = 60
	g := chainGraph(t, n)
	want := expected(sourceIDs(n), nil)
	env := g.Env()
	env.Tuning.IsaCacheFreezeMax = 0

	it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), forced(isa.MethodStorable, isa.JoinAuto))
	var got []graphd.ID
	for len(got) < 3 {
		id, ok := iteratortest.NextOne(t, it, 1000)
		require.True(t, ok)
		got = append(got, id)
	}
	text, err := it.Freeze(iterator.FlagAll)
	require.NoError(t, err)
	assert.Contains(t, text, ",#3/")
	it.Finish()

	thawed, err := iterator.Thaw(context.Background(), env, text)
	require.NoError(t, err)
	defer thawed.Finish()
	info, ok := isa.IsInstance(thawed)
	require.True(t, ok)
	assert.Equal(t, isa.MethodIntersect, info.Method)
	assert.NotEmpty(t, env.Events.Named(annotations.IsaDupSwitch))

	got = append(got, iteratortest.Drain(t, thawed, 1000)...)
	assert.Equal(t, want, got)
}

func TestThawWithoutCacheRecoversUnsorted(t *testing.T) {
	const n = 30
	g := chainGraph(t, n)
	order := []graphd.ID{12, 3, 29, 8, 22, 1, 14, 26, 9, 4}
	want := expected(order, nil)
	env := g.Env()
	env.Tuning.IsaCacheFreezeMax = 0

	it := createIsa(t, env, iteratortest.NewList(env, false, order...), isa.NewOptions(graphd.LinkLeft))
	var got []graphd.ID
	for len(got) < 2 {
		id, ok := iteratortest.NextOne(t, it, 1000)
		require.True(t, ok)
		got = append(got, id)
	}
	thawed := iteratortest.RoundTrip(t, env, it)
	defer thawed.Finish()
	assert.True(t, thawed.Resuming())
	assert.NotEmpty(t, env.Events.Named(annotations.CursorRecovered))

	got = append(got, iteratortest.Drain(t, thawed, 1000)...)
	assert.Equal(t, want, got)
}

func TestThawSharesOriginalCache(t *testing.T) {
	const n = 60
	g := chainGraph(t, n)
	want := expected(sourceIDs(n), nil)
	env := g.Env()
	env.Originals = iterator.NewOriginalCache(16, time.Minute)

	orig := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), forced(isa.MethodStorable, isa.JoinAuto))
	defer orig.Finish()
	for i := 0; i < 2; i++ {
		_, ok := iteratortest.NextOne(t, orig, 1000)
		require.True(t, ok)
	}
	text, err := orig.Freeze(iterator.FlagAll)
	require.NoError(t, err)

	thawed, err := iterator.Thaw(context.Background(), env, text)
	require.NoError(t, err)
	defer thawed.Finish()
	assert.NotEmpty(t, env.Events.Named(annotations.CursorOriginalHit))
	assert.False(t, thawed.Resuming())
	assert.Equal(t, want[2:], iteratortest.Drain(t, thawed, 1000))

	// The original keeps its own position in the shared cache.
	assert.Equal(t, want[2:], iteratortest.Drain(t, orig, 1000))
}

func TestBudgetMonotonicity(t *testing.T) {
	const n = 45
	g := chainGraph(t, n)
	// covers the largest single step: a held record and type read plus an
	// index open
	const step = iterator.Budget(80)
	odd := func(d graphd.ID) bool { return d%2 == 1 }

	for _, typ := range []graphd.ID{graphd.IDNone, typeOdd} {
		for _, tt := range strategies {
			t.Run(fmt.Sprintf("%s/type-%v", tt.name, typ), func(t *testing.T) {
				env := g.Env()
				o := forced(tt.method, tt.join)
				o.Type = typ
				it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), o)
				defer it.Finish()

				var got []graphd.ID
				for calls := 0; ; calls++ {
					require.Less(t, calls, 10000)
					b := step
					work := env.Work()
					id, err := it.Next(&b)
					used := b.Used(step)
					assert.LessOrEqual(t, used, int64(step))
					assert.Equal(t, used, env.Work()-work)
					if iterator.IsMore(err) {
						assert.Greater(t, used, int64(0), "a suspended call must make progress")
						continue
					}
					if iterator.IsNo(err) {
						break
					}
					require.NoError(t, err)
					got = append(got, id)
				}
				want := expected(sourceIDs(n), nil)
				if typ != graphd.IDNone {
					want = expected(sourceIDs(n), odd)
				}
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestThawedIsaPrefersStorable(t *testing.T) {
	const n = 60
	g := chainGraph(t, n)
	env := g.Env()
	env.Tuning.IsaIntersectThreshold = 5
	env.Tuning.IsaIntersectThawThreshold = 100000

	fresh := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), isa.NewOptions(graphd.LinkLeft))
	defer fresh.Finish()
	iteratortest.Statistics(t, fresh, 1000)
	info, ok := isa.IsInstance(fresh)
	require.True(t, ok)
	assert.Equal(t, isa.MethodIntersect, info.Method)

	text, err := fresh.Freeze(iterator.FlagSet)
	require.NoError(t, err)
	thawed, err := iterator.Thaw(context.Background(), env, text)
	require.NoError(t, err)
	defer thawed.Finish()
	iteratortest.Statistics(t, thawed, 1000)
	info, ok = isa.IsInstance(thawed)
	require.True(t, ok)
	assert.Equal(t, isa.MethodStorable, info.Method)

	// both saw the same projection
	methods := env.Events.Named(annotations.IsaDupMethod)
	require.Len(t, methods, 2)
	assert.Equal(t, methods[0].Data["n"], methods[1].Data["n"])
	assert.Equal(t, false, methods[0].Data["thawed"])
	assert.Equal(t, true, methods[1].Data["thawed"])

	assert.Equal(t, expected(sourceIDs(n), nil), iteratortest.Drain(t, thawed, 1000))
}

func TestEstimateNarrowedToRange(t *testing.T) {
	const n = 200
	g := chainGraph(t, n)

	estimate := func(subLow, subHigh graphd.ID) int64 {
		env := g.Env()
		o := forced(isa.MethodStorable, isa.JoinAuto)
		o.Low, o.High = 1000, 1007
		sub := iterator.NewFixed(env, sourceIDs(n), subLow, subHigh, true)
		it := createIsa(t, env, sub, o)
		defer it.Finish()
		iteratortest.Statistics(t, it, 1000)
		return it.N()
	}

	// A sub bounded to [0, 4000) covers the iterator's [1000, 1007) with
	// a small fraction of its range, so its extrapolated count shrinks
	// down to what the samples saw.
	samples := int64(g.Env().Tuning.SampleTarget)
	assert.Greater(t, estimate(0, graphd.IDMax), samples)
	assert.Equal(t, samples, estimate(0, 4000))
}

func TestThawErrors(t *testing.T) {
	g := chainGraph(t, 5)
	tests := []struct {
		name string
		text string
		kind error
	}{
		{"bad linkage", "isa:0:Q<-(null:)", iterator.ErrLexical},
		{"missing arrow", "isa:0:L(null:)", iterator.ErrLexical},
		{"bad hint", "isa:0:L<-(null:)[hint:9]", iterator.ErrSemantics},
		{"bad method", "isa:0:L<-(null:)/-,-,-/0:x:(null:)-:-", iterator.ErrLexical},
		{"results before statistics", "isa:0:L<-(null:)/5@1,-,-/0:u:(null:)-:-", iterator.ErrSemantics},
		{"method without statistics", "isa:0:L<-(null:)/-,-,-,#0/0:s:(null:)-:c(null:)-", iterator.ErrSemantics},
		{"bad call state", "isa:0:L<-(null:)/-,-,-/7:u:(null:)-:-", iterator.ErrSemantics},
		{"bad cache blob", "isa:0:L<-(null:)/-,-,-,#0/0:s:(null:)s{1,1,1,1}:c(null:)" + blob([]byte{0, 1, 2}), iterator.ErrSemantics},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iterator.Thaw(context.Background(), g.Env(), tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func blob(data []byte) string {
	enc := codec.Encode(data)
	return fmt.Sprintf("'%d'%s", len(enc), enc)
}

func TestCheckCacheAnswersRepeats(t *testing.T) {
	const n = 30
	g := chainGraph(t, n)
	env := g.Env()
	it := createIsa(t, env, iterator.NewFixed(env, sourceIDs(n), 0, graphd.IDMax, true), forced(isa.MethodIntersect, isa.JoinAuto))
	defer it.Finish()

	require.True(t, iteratortest.Check(t, it, 1004, 1000))
	b := iterator.Budget(1000)
	require.NoError(t, it.Check(1004, &b))
	assert.Equal(t, env.Tuning.CostCacheHit, b.Used(1000))
}
