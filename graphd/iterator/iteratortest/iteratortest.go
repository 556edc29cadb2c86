// Package iteratortest builds small graphs and drives iterators to
// completion for tests of the iterator families.
package iteratortest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/iterator"
	"github.com/wbrown/janus-graphd/graphd/storage"
)

// Links describes a primitive's linkages for Graph.Add
type Links map[graphd.Linkage]graphd.ID

// Graph is an in-memory store with helpers for writing primitives
type Graph struct {
	t     *testing.T
	Store *storage.MemoryStore
}

// NewGraph returns an empty graph
func NewGraph(t *testing.T) *Graph {
	return &Graph{t: t, Store: storage.NewMemoryStore()}
}

// Add writes primitive id with the given linkages. Link targets that do
// not exist yet are created as bare primitives so cursors can name them.
func (g *Graph) Add(id graphd.ID, links Links) *Graph {
	g.t.Helper()
	p := graphd.NewPrimitive(id, graphd.NewGUID(id.String()))
	for l, target := range links {
		p.SetLink(l, target)
	}
	require.NoError(g.t, g.Store.Add(p))
	for _, target := range links {
		g.Node(target)
	}
	return g
}

// Node writes a bare primitive unless id already exists
func (g *Graph) Node(id graphd.ID) *Graph {
	g.t.Helper()
	if _, err := g.Store.Primitive(id); err == nil {
		return g
	}
	require.NoError(g.t, g.Store.Add(graphd.NewPrimitive(id, graphd.NewGUID(id.String()))))
	return g
}

// Env returns an environment over the graph that keeps its events
func (g *Graph) Env() *iterator.Env {
	env := iterator.NewEnv(g.Store)
	env.Events = annotations.NewCollector(nil, true)
	return env
}

// Drain calls Next until EOF, retrying on ErrMore with a fresh budget of
// step units each time. It fails the test after too many retries.
func Drain(t *testing.T, it *iterator.Iterator, step iterator.Budget) []graphd.ID {
	t.Helper()
	var out []graphd.ID
	for retries := 0; ; {
		b := step
		id, err := it.Next(&b)
		switch {
		case err == nil:
			out = append(out, id)
			retries = 0
		case iterator.IsNo(err):
			return out
		case iterator.IsMore(err):
			retries++
			require.Less(t, retries, 100000, "no progress draining %s", it.Kind())
		default:
			require.NoError(t, err)
		}
	}
}

// NextOne calls Next until it produces a result or EOF
func NextOne(t *testing.T, it *iterator.Iterator, step iterator.Budget) (graphd.ID, bool) {
	t.Helper()
	for retries := 0; retries < 100000; retries++ {
		b := step
		id, err := it.Next(&b)
		switch {
		case err == nil:
			return id, true
		case iterator.IsNo(err):
			return graphd.IDNone, false
		case !iterator.IsMore(err):
			require.NoError(t, err)
		}
	}
	t.Fatalf("no progress in %s", it.Kind())
	return graphd.IDNone, false
}

// Check calls Check until it answers
func Check(t *testing.T, it *iterator.Iterator, id graphd.ID, step iterator.Budget) bool {
	t.Helper()
	for retries := 0; retries < 100000; retries++ {
		b := step
		err := it.Check(id, &b)
		switch {
		case err == nil:
			return true
		case iterator.IsNo(err):
			return false
		case !iterator.IsMore(err):
			require.NoError(t, err)
		}
	}
	t.Fatalf("no progress checking %v in %s", id, it.Kind())
	return false
}

// Statistics calls Statistics until it completes
func Statistics(t *testing.T, it *iterator.Iterator, step iterator.Budget) {
	t.Helper()
	for retries := 0; retries < 100000; retries++ {
		b := step
		err := it.Statistics(&b)
		if err == nil {
			return
		}
		if !iterator.IsMore(err) {
			require.NoError(t, err)
		}
	}
	t.Fatalf("no progress in statistics of %s", it.Kind())
}

// Sorted returns a sorted copy of ids
func Sorted(ids []graphd.ID) []graphd.ID {
	out := append([]graphd.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoundTrip freezes it with every section, thaws the text in env and
// returns the thawed iterator. it is finished.
func RoundTrip(t *testing.T, env *iterator.Env, it *iterator.Iterator) *iterator.Iterator {
	t.Helper()
	text, err := it.Freeze(iterator.FlagAll)
	require.NoError(t, err)
	it.Finish()
	thawed, err := iterator.Thaw(context.Background(), env, text)
	require.NoError(t, err, "thaw %s", text)
	return thawed
}

// DrainWithFreezes drains it, freezing and thawing after every result and
// whenever an operation suspends. It returns the results and the final
// iterator, which the caller finishes.
func DrainWithFreezes(t *testing.T, env *iterator.Env, it *iterator.Iterator, step iterator.Budget) ([]graphd.ID, *iterator.Iterator) {
	t.Helper()
	var out []graphd.ID
	for retries := 0; ; {
		b := step
		id, err := it.Next(&b)
		switch {
		case err == nil:
			out = append(out, id)
			retries = 0
		case iterator.IsNo(err):
			return out, it
		case iterator.IsMore(err):
			retries++
			require.Less(t, retries, 100000, "no progress draining %s", it.Kind())
		default:
			require.NoError(t, err)
		}
		it = RoundTrip(t, env, it)
	}
}
