package iterator_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/iterator"
	"github.com/wbrown/janus-graphd/graphd/iterator/iteratortest"
)

func unlimited() *iterator.Budget {
	b := iterator.Unlimited
	return &b
}

func TestFixedForwardAndBackward(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()

	fwd := iterator.NewFixed(env, []graphd.ID{5, 3, 9, 3, 12}, 4, 12, true)
	assert.Equal(t, []graphd.ID{5, 9}, iteratortest.Drain(t, fwd, 100))
	assert.Equal(t, int64(2), fwd.N())
	assert.True(t, fwd.Sorted())

	bwd := iterator.NewFixed(env, []graphd.ID{5, 3, 9, 3, 12}, 4, 12, false)
	assert.Equal(t, []graphd.ID{9, 5}, iteratortest.Drain(t, bwd, 100))

	assert.True(t, iteratortest.Check(t, fwd, 9, 100))
	assert.False(t, iteratortest.Check(t, fwd, 3, 100), "outside the range")
	assert.False(t, iteratortest.Check(t, fwd, 7, 100))
}

func TestFixedFind(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()

	fwd := iterator.NewFixed(env, []graphd.ID{2, 4, 6, 8}, 0, graphd.IDMax, true)
	id, err := fwd.Find(5, unlimited())
	require.NoError(t, err)
	assert.Equal(t, graphd.ID(6), id)
	id, err = fwd.Next(unlimited())
	require.NoError(t, err)
	assert.Equal(t, graphd.ID(8), id)
	_, err = fwd.Find(9, unlimited())
	assert.True(t, iterator.IsNo(err))

	bwd := iterator.NewFixed(env, []graphd.ID{2, 4, 6, 8}, 0, graphd.IDMax, false)
	id, err = bwd.Find(5, unlimited())
	require.NoError(t, err)
	assert.Equal(t, graphd.ID(4), id)
	id, err = bwd.Next(unlimited())
	require.NoError(t, err)
	assert.Equal(t, graphd.ID(2), id)
}

func TestFanInAndVIP(t *testing.T) {
	g := iteratortest.NewGraph(t).
		Add(10, iteratortest.Links{graphd.LinkLeft: 5, graphd.LinkType: 1}).
		Add(11, iteratortest.Links{graphd.LinkLeft: 5}).
		Add(12, iteratortest.Links{graphd.LinkLeft: 5, graphd.LinkType: 1})
	env := g.Env()

	fanin := iterator.NewFanIn(env, graphd.LinkLeft, 5, 0, graphd.IDMax, true)
	assert.Equal(t, []graphd.ID{10, 11, 12}, iteratortest.Drain(t, fanin, 100))
	pinned, ok := fanin.Pinned(graphd.LinkLeft)
	assert.True(t, ok)
	assert.Equal(t, graphd.ID(5), pinned)
	_, ok = fanin.Pinned(graphd.LinkType)
	assert.False(t, ok)

	vip, err := iterator.NewVIP(env, graphd.LinkLeft, 5, 1, 0, graphd.IDMax, true)
	require.NoError(t, err)
	iteratortest.Statistics(t, vip, 100)
	assert.Equal(t, int64(2), vip.N())
	assert.Equal(t, []graphd.ID{10, 12}, iteratortest.Drain(t, vip, 100))
	pinned, ok = vip.Pinned(graphd.LinkType)
	assert.True(t, ok)
	assert.Equal(t, graphd.ID(1), pinned)

	_, err = iterator.NewVIP(env, graphd.LinkScope, 5, 1, 0, graphd.IDMax, true)
	assert.Error(t, err)
}

func TestAllSkipsMissingIDs(t *testing.T) {
	g := iteratortest.NewGraph(t).Node(2).Node(4).Node(7)
	env := g.Env()

	assert.Equal(t, []graphd.ID{2, 4, 7}, iteratortest.Drain(t, iterator.NewAll(env, 0, graphd.IDMax, true), 100))
	assert.Equal(t, []graphd.ID{7, 4, 2}, iteratortest.Drain(t, iterator.NewAll(env, 0, graphd.IDMax, false), 100))
	assert.Equal(t, []graphd.ID{4}, iteratortest.Drain(t, iterator.NewAll(env, 3, 7, true), 100))

	all := iterator.NewAll(env, 0, graphd.IDMax, true)
	assert.True(t, iteratortest.Check(t, all, 4, 100))
	assert.False(t, iteratortest.Check(t, all, 3, 100))
	assert.False(t, iteratortest.Check(t, all, 99, 100))
}

func TestOrUnion(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	arms := func(forward bool) []*iterator.Iterator {
		return []*iterator.Iterator{
			iterator.NewFixed(env, []graphd.ID{1, 4, 7}, 0, graphd.IDMax, forward),
			iterator.NewFixed(env, []graphd.ID{2, 4, 8}, 0, graphd.IDMax, forward),
			iterator.NewFixed(env, []graphd.ID{7, 9}, 0, graphd.IDMax, forward),
		}
	}

	or, err := iterator.NewOr(env, arms(true), 0, graphd.IDMax, true)
	require.NoError(t, err)
	assert.Equal(t, []graphd.ID{1, 2, 4, 7, 8, 9}, iteratortest.Drain(t, or, 100))

	or, err = iterator.NewOr(env, arms(false), 0, graphd.IDMax, false)
	require.NoError(t, err)
	assert.Equal(t, []graphd.ID{9, 8, 7, 4, 2, 1}, iteratortest.Drain(t, or, 100))

	or, err = iterator.NewOr(env, arms(true), 0, graphd.IDMax, true)
	require.NoError(t, err)
	id, err := or.Find(5, unlimited())
	require.NoError(t, err)
	assert.Equal(t, graphd.ID(7), id)
	assert.Equal(t, []graphd.ID{8, 9}, iteratortest.Drain(t, or, 100))

	assert.True(t, iteratortest.Check(t, or, 8, 100))
	assert.False(t, iteratortest.Check(t, or, 5, 100))

	iteratortest.Statistics(t, or, 100)
	assert.Equal(t, int64(8), or.N())

	_, err = iterator.NewOr(env, []*iterator.Iterator{iteratortest.NewList(env, false, 3, 1)}, 0, graphd.IDMax, true)
	assert.Error(t, err)
}

func TestCursorText(t *testing.T) {
	g := iteratortest.NewGraph(t).Add(10, iteratortest.Links{graphd.LinkRight: 5})
	env := g.Env()

	fixed := iterator.NewFixed(env, []graphd.ID{9, 5}, 4, 12, true)
	text, err := fixed.Freeze(iterator.FlagSet)
	require.NoError(t, err)
	assert.Equal(t, "fixed:4-12:(5,9)", text)

	_, err = fixed.Next(unlimited())
	require.NoError(t, err)
	text, err = fixed.Freeze(iterator.FlagAll)
	require.NoError(t, err)
	assert.Equal(t, "fixed:4-12:(5,9)/5@1/-", text)

	bwd := iterator.NewFixed(env, nil, 0, graphd.IDMax, false)
	text, err = bwd.Freeze(iterator.FlagSet)
	require.NoError(t, err)
	assert.Equal(t, "fixed:~0:()", text)

	guid, err := g.Store.GUID(5)
	require.NoError(t, err)
	fanin := iterator.NewFanIn(env, graphd.LinkRight, 5, 0, 100, true)
	text, err = fanin.Freeze(iterator.FlagSet)
	require.NoError(t, err)
	assert.Equal(t, "fanin:0-100:R="+guid.String(), text)
}

func TestBaseFormsFreezeThaw(t *testing.T) {
	g := iteratortest.NewGraph(t).
		Add(10, iteratortest.Links{graphd.LinkLeft: 5, graphd.LinkType: 1}).
		Add(11, iteratortest.Links{graphd.LinkLeft: 5}).
		Add(12, iteratortest.Links{graphd.LinkLeft: 5, graphd.LinkType: 1}).
		Add(13, iteratortest.Links{graphd.LinkLeft: 5, graphd.LinkType: 1})
	env := g.Env()

	tests := []struct {
		name string
		make func() *iterator.Iterator
	}{
		{"fixed", func() *iterator.Iterator {
			return iterator.NewFixed(env, []graphd.ID{3, 1, 4, 15, 9}, 0, graphd.IDMax, true)
		}},
		{"fixed backward", func() *iterator.Iterator {
			return iterator.NewFixed(env, []graphd.ID{3, 1, 4, 15, 9}, 2, 10, false)
		}},
		{"fanin", func() *iterator.Iterator {
			return iterator.NewFanIn(env, graphd.LinkLeft, 5, 0, graphd.IDMax, true)
		}},
		{"vip", func() *iterator.Iterator {
			it, err := iterator.NewVIP(env, graphd.LinkLeft, 5, 1, 0, graphd.IDMax, false)
			require.NoError(t, err)
			return it
		}},
		{"all", func() *iterator.Iterator {
			return iterator.NewAll(env, 2, 13, true)
		}},
		{"or", func() *iterator.Iterator {
			it, err := iterator.NewOr(env, []*iterator.Iterator{
				iterator.NewFixed(env, []graphd.ID{1, 4}, 0, graphd.IDMax, true),
				iterator.NewFanIn(env, graphd.LinkLeft, 5, 0, graphd.IDMax, true),
			}, 0, graphd.IDMax, true)
			require.NoError(t, err)
			return it
		}},
		{"unsorted", func() *iterator.Iterator {
			return iteratortest.NewList(env, false, 30, 10, 20, 40)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := iteratortest.Drain(t, tt.make(), 100)
			require.NotEmpty(t, want)

			for cut := 0; cut <= len(want); cut++ {
				it := tt.make()
				var got []graphd.ID
				for i := 0; i < cut; i++ {
					id, ok := iteratortest.NextOne(t, it, 100)
					require.True(t, ok)
					got = append(got, id)
				}
				it = iteratortest.RoundTrip(t, env, it)
				got = append(got, iteratortest.Drain(t, it, 100)...)
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("cut at %d (-want +got):\n%s", cut, diff)
				}
			}

			it := tt.make()
			iteratortest.Drain(t, it, 100)
			it = iteratortest.RoundTrip(t, env, it)
			assert.True(t, it.EOF())
			assert.Empty(t, iteratortest.Drain(t, it, 100))
		})
	}
}

func TestSplitCursorSkipsBlobs(t *testing.T) {
	set, pos, state, err := iterator.SplitCursor("or:('3'/)()(null:)/12@1/-")
	require.NoError(t, err)
	assert.Equal(t, "or:('3'/)()(null:)", set)
	assert.Equal(t, "12@1", pos)
	assert.Equal(t, "-", state)

	set, pos, state, err = iterator.SplitCursor("null:")
	require.NoError(t, err)
	assert.Equal(t, "null:", set)
	assert.Empty(t, pos)
	assert.Empty(t, state)

	_, _, _, err = iterator.SplitCursor("or:((null:)")
	assert.True(t, errors.Is(err, iterator.ErrLexical))
	_, _, _, err = iterator.SplitCursor("a/b/c/d")
	assert.True(t, errors.Is(err, iterator.ErrLexical))
	_, _, _, err = iterator.SplitCursor("x:'9'ab")
	assert.True(t, errors.Is(err, iterator.ErrLexical))
}

func TestThawErrors(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()

	tests := []struct {
		text string
		kind error
	}{
		{"nosuch:", iterator.ErrSemantics},
		{"nocolon", iterator.ErrLexical},
		{"fixed:4-12:(5,9", iterator.ErrLexical},
		{"fixed:12-4:()", iterator.ErrSemantics},
		{"fixed:1:(1)/x", iterator.ErrLexical},
		{"fixed:1:(1)/1@0", iterator.ErrSemantics},
		{"fixed:1:(1)/-/junk", iterator.ErrLexical},
		{"fanin:0:Q=#5", iterator.ErrLexical},
		{"fanin:0:L=0123456789abcdef0123456789abcdef", iterator.ErrSemantics},
		{"vip:0:T=#5+#1", iterator.ErrSemantics},
		{"or:0:(fixed:0:(1))(nosuch:)", iterator.ErrSemantics},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := iterator.Thaw(context.Background(), env, tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			var ce *iterator.CursorError
			assert.True(t, errors.As(err, &ce))
		})
	}
	assert.NotEmpty(t, env.Events.Named(annotations.ErrorCursorText))
}

func TestThawDeadline(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := iterator.Thaw(ctx, env, "null:")
	assert.True(t, errors.Is(err, iterator.ErrTooHard))
}

func TestCatchUpUnsorted(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()

	it, err := iterator.Thaw(context.Background(), env, "testlist:(30,10,20,40)/10@2/-")
	require.NoError(t, err)
	assert.True(t, it.Resuming())
	assert.Equal(t, []graphd.ID{20, 40}, iteratortest.Drain(t, it, 100))

	it, err = iterator.Thaw(context.Background(), env, "testlist:(30,10,20,40)/11@2/-")
	require.NoError(t, err)
	_, err = it.Next(unlimited())
	assert.True(t, errors.Is(err, iterator.ErrStateLost))
	assert.NotEmpty(t, env.Events.Named(annotations.ErrorStateLost))

	it, err = iterator.Thaw(context.Background(), env, "testlist:(30,10)/10@5/-")
	require.NoError(t, err)
	_, err = it.Next(unlimited())
	assert.True(t, errors.Is(err, iterator.ErrStateLost))
}

func TestCatchUpSortedUsesFind(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	it, err := iterator.Thaw(context.Background(), env, "fixed:0:(1,5,9,13)/6@2/-")
	require.NoError(t, err)
	assert.Equal(t, []graphd.ID{9, 13}, iteratortest.Drain(t, it, 100))
	assert.Equal(t, int64(4), it.Returned())
}

func TestMasquerade(t *testing.T) {
	g := iteratortest.NewGraph(t).Node(2).Node(4).Node(7)
	env := g.Env()

	fixed := iterator.NewFixed(env, []graphd.ID{2, 4, 7}, 0, 100, true)
	fixed.SetMasquerade("all:0-100")
	id, ok := iteratortest.NextOne(t, fixed, 100)
	require.True(t, ok)
	assert.Equal(t, graphd.ID(2), id)

	text, err := fixed.Freeze(iterator.FlagAll)
	require.NoError(t, err)
	assert.Equal(t, "all:0-100/=2@1/-", text)

	thawed, err := iterator.Thaw(context.Background(), env, text)
	require.NoError(t, err)
	assert.Equal(t, "all", thawed.Kind())
	assert.Equal(t, []graphd.ID{4, 7}, iteratortest.Drain(t, thawed, 100))
}

func TestSortedInvariant(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	it := iteratortest.NewList(env, true, 5, 3)
	_, err := it.Next(unlimited())
	require.NoError(t, err)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*iterator.InvariantError)
		assert.True(t, ok, "panic value %v", r)
	}()
	_, _ = it.Next(unlimited())
	t.Fatal("out-of-order result did not panic")
}

func TestFindOnUnsorted(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	_, err := iteratortest.NewList(env, false, 5, 3).Find(4, unlimited())
	assert.True(t, errors.Is(err, iterator.ErrNotSorted))
}

func TestEvolutionAndCloneRedirect(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()

	orig := iteratortest.NewList(env, false, 8, 6)
	clone, err := orig.Clone()
	require.NoError(t, err)
	assert.Equal(t, "testlist", clone.Kind())
	assert.Same(t, orig, clone.Original())

	gen := orig.Generation()
	orig.Become(iterator.NewFixed(env, []graphd.ID{6, 8}, 0, graphd.IDMax, true), "test")
	assert.NotEqual(t, gen, orig.Generation())
	assert.Equal(t, "fixed", orig.Kind())
	assert.True(t, orig.Sorted())
	assert.Len(t, env.Events.Named(annotations.IteratorEvolved), 1)

	// the old clone keeps working, but cloning it follows the evolution
	assert.Equal(t, []graphd.ID{8, 6}, iteratortest.Drain(t, clone, 100))
	again, err := clone.Clone()
	require.NoError(t, err)
	assert.Equal(t, "fixed", again.Kind())
	assert.Equal(t, []graphd.ID{6, 8}, iteratortest.Drain(t, again, 100))

	_, err = orig.Next(unlimited())
	require.NoError(t, err)
	assert.False(t, orig.CanEvolve())
	assert.Panics(t, func() { orig.Become(iterator.NewNull(env), "late") })
}

func TestResetAndFinish(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	it := iterator.NewFixed(env, []graphd.ID{1, 2}, 0, graphd.IDMax, true)
	assert.Equal(t, []graphd.ID{1, 2}, iteratortest.Drain(t, it, 100))
	it.Reset()
	assert.Equal(t, []graphd.ID{1, 2}, iteratortest.Drain(t, it, 100))

	it.Finish()
	it.Finish()
	_, err := it.Next(unlimited())
	assert.True(t, errors.Is(err, iterator.ErrFinished))
	_, err = it.Freeze(iterator.FlagSet)
	assert.True(t, errors.Is(err, iterator.ErrFinished))
}

func TestOriginalCache(t *testing.T) {
	g := iteratortest.NewGraph(t).Add(10, iteratortest.Links{graphd.LinkRight: 5})
	env := g.Env()
	env.Originals = iterator.NewOriginalCache(2, time.Minute)

	it := iterator.NewFanIn(env, graphd.LinkRight, 5, 0, graphd.IDMax, true)
	set, err := it.Freeze(iterator.FlagSet)
	require.NoError(t, err)

	got, ok := env.Originals.Get(set)
	require.True(t, ok)
	assert.Same(t, it, got)

	thawed, err := iterator.Thaw(context.Background(), env, set+"/-/-")
	require.NoError(t, err)
	assert.Len(t, env.Events.Named(annotations.CursorOriginalHit), 1)
	assert.Equal(t, []graphd.ID{10}, iteratortest.Drain(t, thawed, 100))

	it.Finish()
	_, ok = env.Originals.Get(set)
	assert.False(t, ok)

	for _, ids := range [][]graphd.ID{{1}, {2}, {3}} {
		_, err := iterator.NewFixed(env, ids, 0, graphd.IDMax, true).Freeze(iterator.FlagSet)
		require.NoError(t, err)
	}
	hits, misses, size := env.Originals.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 2, size)

	env.Originals.Clear()
	_, _, size = env.Originals.Stats()
	assert.Zero(t, size)
}

func TestForcedYieldsKeepResults(t *testing.T) {
	g := iteratortest.NewGraph(t)
	for id := graphd.ID(1); id < 40; id += 3 {
		g.Node(id)
	}
	env := g.Env()
	want := iteratortest.Drain(t, iterator.NewAll(env, 0, graphd.IDMax, true), 1000)

	env.Yield = iterator.EveryNth(2)
	got := iteratortest.Drain(t, iterator.NewAll(env, 0, graphd.IDMax, true), 1000)
	assert.Equal(t, want, got)
	assert.Greater(t, env.ForcedYields(), int64(0))

	// a budget covering one record read still makes progress
	env.Yield = nil
	got = iteratortest.Drain(t, iterator.NewAll(env, 0, graphd.IDMax, true), iterator.Budget(env.Tuning.CostPrimitive))
	assert.Equal(t, want, got)
}

func TestBudgetAccounting(t *testing.T) {
	env := iteratortest.NewGraph(t).Node(1).Node(2).Env()
	b := iterator.Budget(100)
	start := b
	_, err := iterator.NewAll(env, 1, graphd.IDMax, true).Next(&b)
	require.NoError(t, err)
	assert.Equal(t, env.Tuning.CostPrimitive, b.Used(start))

	part := b.Split(0.5)
	assert.Equal(t, iterator.Budget(45), part)
	b.Refund(part)
	assert.Equal(t, iterator.Budget(90), b)

	zero := iterator.Budget(0)
	_, err = iterator.NewAll(env, 0, graphd.IDMax, true).Next(&zero)
	assert.True(t, iterator.IsMore(err))

	// a charge the budget cannot cover spends nothing
	short := iterator.Budget(env.Tuning.CostPrimitive - 1)
	work := env.Work()
	_, err = iterator.NewAll(env, 0, graphd.IDMax, true).Next(&short)
	assert.True(t, iterator.IsMore(err))
	assert.Equal(t, iterator.Budget(env.Tuning.CostPrimitive-1), short)
	assert.Equal(t, work, env.Work())
	assert.Empty(t, env.Events.Named(annotations.ErrorBackend))

	held := iterator.Budget(30)
	assert.True(t, held.Hold(20))
	assert.False(t, held.Hold(20))
	assert.Equal(t, iterator.Budget(10), held)
	held.Release(20)
	assert.Equal(t, iterator.Budget(30), held)
}

// sparseGraph writes a few primitives separated by wide holes
func sparseGraph(t *testing.T) *iteratortest.Graph {
	return iteratortest.NewGraph(t).Node(3).Node(400).Node(401).Node(1200)
}

func TestAllScanSurvivesFreezesOverHoles(t *testing.T) {
	g := sparseGraph(t)

	for _, forward := range []bool{true, false} {
		t.Run(fmt.Sprintf("forward-%v", forward), func(t *testing.T) {
			env := g.Env()
			want := iteratortest.Drain(t, iterator.NewAll(env, 0, graphd.IDMax, forward), 100000)
			require.Len(t, want, 4)

			// each call crosses a few ids of a hole hundreds wide
			step := iterator.Budget(4 * env.Tuning.CostPrimitive)
			got, last := iteratortest.DrainWithFreezes(t, env, iterator.NewAll(env, 0, graphd.IDMax, forward), step)
			defer last.Finish()
			assert.Equal(t, want, got)
		})
	}
}

func TestAllFindSurvivesFreezes(t *testing.T) {
	g := sparseGraph(t)
	env := g.Env()
	it := iterator.NewAll(env, 0, graphd.IDMax, true)
	step := iterator.Budget(4 * env.Tuning.CostPrimitive)

	var found graphd.ID
	for calls := 0; ; calls++ {
		require.Less(t, calls, 1000, "find made no progress")
		b := step
		id, err := it.Find(402, &b)
		if iterator.IsMore(err) {
			text, ferr := it.Freeze(iterator.FlagAll)
			require.NoError(t, ferr)
			_, _, state, ferr := iterator.SplitCursor(text)
			require.NoError(t, ferr)
			assert.NotEqual(t, "-", state, "an interrupted scan keeps its place")
			it = iteratortest.RoundTrip(t, env, it)
			continue
		}
		require.NoError(t, err)
		found = id
		break
	}
	defer it.Finish()
	assert.Equal(t, graphd.ID(1200), found)
	assert.Empty(t, iteratortest.Drain(t, it, 100000))
}

func TestAllStateText(t *testing.T) {
	env := sparseGraph(t).Env()
	it := iterator.NewAll(env, 0, 2000, false)
	text, err := it.Freeze(iterator.FlagAll)
	require.NoError(t, err)
	assert.Equal(t, "all:~0-2000/-/-", text)

	id, ok := iteratortest.NextOne(t, it, 100000)
	require.True(t, ok)
	assert.Equal(t, graphd.ID(1200), id)
	text, err = it.Freeze(iterator.FlagAll)
	require.NoError(t, err)
	assert.Equal(t, "all:~0-2000/1200@1/1199,-", text)

	for _, bad := range []string{"all:0/-/5", "all:0/-/5,", "all:0/-/x,-"} {
		_, err := iterator.Thaw(context.Background(), env, bad)
		assert.True(t, errors.Is(err, iterator.ErrLexical), "%s: %v", bad, err)
	}
}

var errStats = errors.New("statistics failed")

// failingStats is an unsorted iterator whose statistics always fail
type failingStats struct{}

func (failingStats) Kind() string { return "failstats" }
func (failingStats) Next(it *iterator.Iterator, b *iterator.Budget) (graphd.ID, error) {
	return graphd.IDNone, iterator.ErrNo
}
func (failingStats) Find(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) (graphd.ID, error) {
	return graphd.IDNone, iterator.ErrNo
}
func (failingStats) Check(it *iterator.Iterator, id graphd.ID, b *iterator.Budget) error {
	return iterator.ErrNo
}
func (failingStats) Statistics(it *iterator.Iterator, b *iterator.Budget) error { return errStats }
func (f failingStats) Clone(it *iterator.Iterator) (*iterator.Iterator, error) {
	return it.NewClone(f), nil
}
func (failingStats) Reset(it *iterator.Iterator)                              {}
func (failingStats) FreezeSet(it *iterator.Iterator, w *iterator.Writer)      { w.WriteString("failstats:") }
func (failingStats) FreezePosition(it *iterator.Iterator, w *iterator.Writer) { w.Position(it) }
func (failingStats) FreezeState(it *iterator.Iterator, w *iterator.Writer)    { w.WriteByte('-') }
func (failingStats) Finish(it *iterator.Iterator)                             {}

func init() {
	iterator.Register("failstats", func(c *iterator.Cursor) (*iterator.Iterator, error) {
		if err := c.Set.End(); err != nil {
			return nil, err
		}
		it := iterator.New(c.Set.Env(), failingStats{}, 0, graphd.IDMax, true)
		it.SetSorted(false)
		return it, nil
	})
}

func TestMasqueradeThawReportsStatisticsFailure(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	_, err := iterator.Thaw(context.Background(), env, "failstats:/=5@2/-")
	assert.True(t, errors.Is(err, errStats), "got %v", err)

	// a masquerade at the start needs no statistics
	it, err := iterator.Thaw(context.Background(), env, "failstats:/=-/-")
	require.NoError(t, err)
	it.Finish()
}

func TestSamplerAndStatsCursor(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()

	s := iterator.NewSampler(5)
	for _, id := range []graphd.ID{7, 3, 9} {
		s.Trial()
		s.Accept(id)
	}
	s.Trial()
	s.Cost = 42
	w := iterator.NewWriter(env)
	s.Freeze(w)
	iterator.FreezeStats(w, iterator.Stats{N: 100, NextCost: 3, FindCost: 4, CheckCost: 5})
	assert.Equal(t, "p{5,4,42,0:7,3,9}s{100,3,4,5}", w.String())

	sc := iterator.NewScanner(context.Background(), env, w.String())
	got, err := iterator.ThawSampler(sc)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	stats, err := iterator.ThawStats(sc)
	require.NoError(t, err)
	assert.Equal(t, iterator.Stats{Valid: true, N: 100, NextCost: 3, FindCost: 4, CheckCost: 5}, stats)
	require.NoError(t, sc.End())

	_, err = iterator.ThawSampler(iterator.NewScanner(context.Background(), env, "p{1,0,0,0:1,2}"))
	assert.True(t, errors.Is(err, iterator.ErrSemantics))
}

func TestEstimators(t *testing.T) {
	assert.Equal(t, int64(1), iterator.Log2(0))
	assert.Equal(t, int64(1), iterator.Log2(1))
	assert.Equal(t, int64(4), iterator.Log2(8))

	assert.InDelta(t, 1.0, iterator.RangeOverlap(10, 20, 0, 100), 1e-9)
	assert.InDelta(t, 0.5, iterator.RangeOverlap(10, 20, 15, 100), 1e-9)
	assert.InDelta(t, 0.0, iterator.RangeOverlap(10, 20, 30, 100), 1e-9)

	assert.Equal(t, int64(50), iterator.Scale(100, 1, 2))
	assert.Equal(t, int64(1), iterator.Scale(1, 1, 3))
}

func TestCollect(t *testing.T) {
	env := iteratortest.NewGraph(t).Env()
	it := iterator.NewFixed(env, []graphd.ID{1, 2, 3}, 0, graphd.IDMax, true)

	ids, complete, err := iterator.Collect(it, unlimited(), 5)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, []graphd.ID{1, 2, 3}, ids)

	_, complete, err = iterator.Collect(it, unlimited(), 2)
	require.NoError(t, err)
	assert.False(t, complete)

	// collecting does not move it
	assert.Equal(t, []graphd.ID{1, 2, 3}, iteratortest.Drain(t, it, 100))
}
