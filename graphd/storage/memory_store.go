package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wbrown/janus-graphd/graphd"
)

type faninKey struct {
	l      graphd.Linkage
	target graphd.ID
}

type vipKey struct {
	l        graphd.Linkage
	endpoint graphd.ID
	typ      graphd.ID
}

// MemoryStore implements Store in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	prims   map[graphd.ID]*graphd.Primitive
	guids   map[graphd.GUID]graphd.ID
	fanin   map[faninKey][]graphd.ID
	vip     map[vipKey][]graphd.ID
	horizon graphd.ID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prims: make(map[graphd.ID]*graphd.Primitive),
		guids: make(map[graphd.GUID]graphd.ID),
		fanin: make(map[faninKey][]graphd.ID),
		vip:   make(map[vipKey][]graphd.ID),
	}
}

// Add stores primitives and indexes their linkages.
// Re-adding an id replaces the earlier primitive.
func (s *MemoryStore) Add(prims ...*graphd.Primitive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range prims {
		if err := graphd.CheckPackable(p.ID); err != nil {
			return err
		}
		if old, ok := s.prims[p.ID]; ok {
			s.unindex(old)
		}

		cp := *p
		s.prims[p.ID] = &cp
		s.guids[p.GUID] = p.ID
		s.index(&cp)

		if p.ID+1 > s.horizon {
			s.horizon = p.ID + 1
		}
	}
	return nil
}

func (s *MemoryStore) index(p *graphd.Primitive) {
	typ, hasType := p.Link(graphd.LinkType)
	for l := graphd.Linkage(0); l < graphd.NLinkages; l++ {
		target, ok := p.Link(l)
		if !ok {
			continue
		}
		k := faninKey{l, target}
		s.fanin[k] = insertSorted(s.fanin[k], p.ID)

		if l.IsEndpoint() && hasType {
			vk := vipKey{l, target, typ}
			s.vip[vk] = insertSorted(s.vip[vk], p.ID)
		}
	}
}

func (s *MemoryStore) unindex(p *graphd.Primitive) {
	typ, hasType := p.Link(graphd.LinkType)
	for l := graphd.Linkage(0); l < graphd.NLinkages; l++ {
		target, ok := p.Link(l)
		if !ok {
			continue
		}
		k := faninKey{l, target}
		s.fanin[k] = removeSorted(s.fanin[k], p.ID)
		if l.IsEndpoint() && hasType {
			vk := vipKey{l, target, typ}
			s.vip[vk] = removeSorted(s.vip[vk], p.ID)
		}
	}
}

func insertSorted(ids []graphd.ID, id graphd.ID) []graphd.ID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeSorted(ids []graphd.ID, id graphd.ID) []graphd.ID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}

// Primitive returns a copy of the stored primitive
func (s *MemoryStore) Primitive(id graphd.ID) (*graphd.Primitive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPrimitiveNotFound, id)
	}
	cp := *p
	return &cp, nil
}

// GUID returns the GUID of id
func (s *MemoryStore) GUID(id graphd.ID) (graphd.GUID, error) {
	p, err := s.Primitive(id)
	if err != nil {
		return graphd.GUID{}, err
	}
	return p.GUID, nil
}

// Resolve returns the local id of guid
func (s *MemoryStore) Resolve(guid graphd.GUID) (graphd.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.guids[guid]
	if !ok {
		return graphd.IDNone, fmt.Errorf("%w: %s", ErrGUIDNotFound, guid)
	}
	return id, nil
}

// FanIn returns a copy of the fan-in list
func (s *MemoryStore) FanIn(l graphd.Linkage, target graphd.ID) ([]graphd.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]graphd.ID(nil), s.fanin[faninKey{l, target}]...), nil
}

// FanInCount returns the length of the fan-in list
func (s *MemoryStore) FanInCount(l graphd.Linkage, target graphd.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.fanin[faninKey{l, target}])), nil
}

// VIP returns a copy of the VIP list
func (s *MemoryStore) VIP(l graphd.Linkage, endpoint, typ graphd.ID) ([]graphd.ID, error) {
	if !l.IsEndpoint() {
		return nil, fmt.Errorf("vip index needs an endpoint linkage, got %s", l)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]graphd.ID(nil), s.vip[vipKey{l, endpoint, typ}]...), nil
}

// VIPCount returns the length of the VIP list
func (s *MemoryStore) VIPCount(l graphd.Linkage, endpoint, typ graphd.ID) (int64, error) {
	if !l.IsEndpoint() {
		return 0, fmt.Errorf("vip index needs an endpoint linkage, got %s", l)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.vip[vipKey{l, endpoint, typ}])), nil
}

// Horizon returns one past the largest id
func (s *MemoryStore) Horizon() graphd.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.horizon
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
