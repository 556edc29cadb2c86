package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-graphd/graphd"
)

// BadgerStore implements Store using BadgerDB
type BadgerStore struct {
	db      *badger.DB
	horizon atomic.Uint64
}

// BadgerOptions returns the tuned options used by NewBadgerStore.
// An empty path opens an in-memory database.
func BadgerOptions(path string) badger.Options {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB logs

	// Read-heavy workload; index entries have no values
	opts.MemTableSize = 64 << 20
	opts.BlockCacheSize = 128 << 20
	opts.IndexCacheSize = 64 << 20
	opts.DetectConflicts = false
	opts.NumCompactors = 2
	opts.ValueThreshold = 1 << 10
	return opts
}

// NewBadgerStore opens (or creates) a BadgerDB-backed store at path
func NewBadgerStore(path string) (*BadgerStore, error) {
	db, err := badger.Open(BadgerOptions(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	s := &BadgerStore{db: db}
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(HorizonKey())
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) < graphd.PackedSize {
				return fmt.Errorf("horizon record too short")
			}
			s.horizon.Store(uint64(graphd.ID5(val)))
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read horizon: %w", err)
	}
	return s, nil
}

// Add writes primitives and their index entries in one transaction
func (s *BadgerStore) Add(prims ...*graphd.Primitive) error {
	horizon := graphd.ID(s.horizon.Load())

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, p := range prims {
			if err := graphd.CheckPackable(p.ID); err != nil {
				return err
			}
			if err := s.removeIndexes(txn, p.ID); err != nil {
				return err
			}
			if err := s.addPrimitive(txn, p); err != nil {
				return err
			}
			if p.ID+1 > horizon {
				horizon = p.ID + 1
			}
		}
		return txn.Set(HorizonKey(), graphd.AppendID5(nil, horizon))
	})
	if err != nil {
		return err
	}
	s.horizon.Store(uint64(horizon))
	return nil
}

// addPrimitive writes the record, the GUID mapping and all index entries
func (s *BadgerStore) addPrimitive(txn *badger.Txn, p *graphd.Primitive) error {
	if err := txn.Set(PrimitiveKey(p.ID), EncodePrimitive(p)); err != nil {
		return fmt.Errorf("failed to write primitive %d: %w", p.ID, err)
	}
	if err := txn.Set(GUIDKey(p.GUID), graphd.AppendID5(nil, p.ID)); err != nil {
		return fmt.Errorf("failed to write guid of %d: %w", p.ID, err)
	}
	return forEachIndexKey(p, func(key []byte) error {
		if err := txn.Set(key, nil); err != nil {
			return fmt.Errorf("failed to index primitive %d: %w", p.ID, err)
		}
		return nil
	})
}

// removeIndexes deletes the index entries of an earlier version of id
func (s *BadgerStore) removeIndexes(txn *badger.Txn, id graphd.ID) error {
	item, err := txn.Get(PrimitiveKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var old *graphd.Primitive
	err = item.Value(func(val []byte) error {
		old, err = DecodePrimitive(id, val)
		return err
	})
	if err != nil {
		return err
	}
	return forEachIndexKey(old, func(key []byte) error {
		if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

func forEachIndexKey(p *graphd.Primitive, fn func(key []byte) error) error {
	typ, hasType := p.Link(graphd.LinkType)
	for l := graphd.Linkage(0); l < graphd.NLinkages; l++ {
		target, ok := p.Link(l)
		if !ok {
			continue
		}
		if err := fn(FanInKey(l, target, p.ID)); err != nil {
			return err
		}
		if l.IsEndpoint() && hasType {
			if err := fn(VIPKey(l, target, typ, p.ID)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Primitive reads one primitive record
func (s *BadgerStore) Primitive(id graphd.ID) (*graphd.Primitive, error) {
	var result *graphd.Primitive

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(PrimitiveKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = DecodePrimitive(id, val)
			return err
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrPrimitiveNotFound, id)
	}
	return result, err
}

// GUID returns the GUID of id
func (s *BadgerStore) GUID(id graphd.ID) (graphd.GUID, error) {
	p, err := s.Primitive(id)
	if err != nil {
		return graphd.GUID{}, err
	}
	return p.GUID, nil
}

// Resolve maps a GUID to its local id
func (s *BadgerStore) Resolve(guid graphd.GUID) (graphd.ID, error) {
	id := graphd.IDNone
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(GUIDKey(guid))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) < graphd.PackedSize {
				return fmt.Errorf("guid record too short")
			}
			id = graphd.ID5(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return graphd.IDNone, fmt.Errorf("%w: %s", ErrGUIDNotFound, guid)
	}
	return id, err
}

// scanPrefix collects the trailing source ids of all keys under prefix.
// Keys are big-endian, so the ids come out sorted.
func (s *BadgerStore) scanPrefix(prefix []byte) ([]graphd.ID, error) {
	var ids []graphd.ID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // KEY ONLY
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := SourceFromKey(it.Item().Key())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// countPrefix counts keys under prefix without fetching values
func (s *BadgerStore) countPrefix(prefix []byte) (int64, error) {
	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.Valid(); it.Next() {
			if !bytes.HasPrefix(it.Item().Key(), prefix) {
				break
			}
			count++
		}
		return nil
	})
	return count, err
}

// FanIn returns the ids whose l points at target
func (s *BadgerStore) FanIn(l graphd.Linkage, target graphd.ID) ([]graphd.ID, error) {
	return s.scanPrefix(FanInPrefix(l, target))
}

// FanInCount counts the fan-in of target
func (s *BadgerStore) FanInCount(l graphd.Linkage, target graphd.ID) (int64, error) {
	return s.countPrefix(FanInPrefix(l, target))
}

// VIP returns the ids with l = endpoint and type = typ
func (s *BadgerStore) VIP(l graphd.Linkage, endpoint, typ graphd.ID) ([]graphd.ID, error) {
	if !l.IsEndpoint() {
		return nil, fmt.Errorf("vip index needs an endpoint linkage, got %s", l)
	}
	return s.scanPrefix(VIPPrefix(l, endpoint, typ))
}

// VIPCount counts a VIP list
func (s *BadgerStore) VIPCount(l graphd.Linkage, endpoint, typ graphd.ID) (int64, error) {
	if !l.IsEndpoint() {
		return 0, fmt.Errorf("vip index needs an endpoint linkage, got %s", l)
	}
	return s.countPrefix(VIPPrefix(l, endpoint, typ))
}

// Horizon returns one past the largest id written
func (s *BadgerStore) Horizon() graphd.ID {
	return graphd.ID(s.horizon.Load())
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
