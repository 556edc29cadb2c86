package isa

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/sets/hashset"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/iterator"
)

// ErrBadCache marks a cache snapshot that does not decode
var ErrBadCache = errors.New("isa: bad cache snapshot")

// StorableCache is the append-only list of distinct results found so
// far. An original isa iterator and all its clones share one cache; each
// keeps its own position in it. Entries never move once appended.
type StorableCache struct {
	ids      []byte // graphd.PackedSize bytes per entry
	sources  []byte // the sub result that produced each entry
	members  *hashset.Set
	complete bool

	refs   int
	feeder *iterator.Iterator // clone of the sub, owned by the cache
}

func newStorableCache(feeder *iterator.Iterator) *StorableCache {
	return &StorableCache{
		members: hashset.New(),
		refs:    1,
		feeder:  feeder,
	}
}

// Len returns the number of entries
func (c *StorableCache) Len() int { return len(c.ids) / graphd.PackedSize }

// At returns entry i
func (c *StorableCache) At(i int) graphd.ID {
	return graphd.ID5(c.ids[i*graphd.PackedSize:])
}

// Source returns the sub result that produced entry i
func (c *StorableCache) Source(i int) graphd.ID {
	return graphd.ID5(c.sources[i*graphd.PackedSize:])
}

// Has reports whether id was appended
func (c *StorableCache) Has(id graphd.ID) bool { return c.members.Contains(id) }

// Complete reports whether the feeder ran out: the cache then holds every
// result.
func (c *StorableCache) Complete() bool { return c.complete }

func (c *StorableCache) append(env *iterator.Env, id, source graphd.ID) {
	if c.members.Contains(id) {
		env.Invariant("isa cache: %v appended twice", id)
	}
	c.ids = graphd.AppendID5(c.ids, id)
	c.sources = graphd.AppendID5(c.sources, source)
	c.members.Add(id)
}

func (c *StorableCache) acquire() *StorableCache {
	c.refs++
	return c
}

func (c *StorableCache) release() {
	c.refs--
	if c.refs > 0 {
		return
	}
	c.feeder.Finish()
	c.ids, c.sources = nil, nil
	c.members.Clear()
}

// MarshalBinary returns the snapshot stored in cursors: a completion
// byte, then the packed entries, then their packed sources.
func (c *StorableCache) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 1+len(c.ids)+len(c.sources))
	if c.complete {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, c.ids...)
	return append(out, c.sources...), nil
}

// unmarshalCache rebuilds a cache from a snapshot around feeder
func unmarshalCache(data []byte, feeder *iterator.Iterator) (*StorableCache, error) {
	if len(data) < 1 || data[0] > 1 || (len(data)-1)%(2*graphd.PackedSize) != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadCache, len(data))
	}
	n := (len(data) - 1) / 2
	c := newStorableCache(feeder)
	c.complete = data[0] == 1
	c.ids = append([]byte(nil), data[1:1+n]...)
	c.sources = append([]byte(nil), data[1+n:]...)
	for i := 0; i < c.Len(); i++ {
		id := c.At(i)
		if c.members.Contains(id) {
			return nil, fmt.Errorf("%w: duplicate entry %v", ErrBadCache, id)
		}
		c.members.Add(id)
	}
	return c, nil
}
