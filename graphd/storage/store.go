// Package storage is the primitive and index layer the iterator core reads
// from: primitives by id, fan-in lists per (linkage, target), and VIP lists
// per (endpoint linkage, endpoint, type).
package storage

import (
	"errors"

	"github.com/wbrown/janus-graphd/graphd"
)

var (
	// ErrPrimitiveNotFound is returned for ids that were never written
	ErrPrimitiveNotFound = errors.New("primitive not found")

	// ErrGUIDNotFound is returned when a GUID has no local id
	ErrGUIDNotFound = errors.New("guid not found")
)

// IsNotFound reports whether err means a missing primitive or GUID
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPrimitiveNotFound) || errors.Is(err, ErrGUIDNotFound)
}

// Store is the interface for primitive storage.
// All id lists are sorted ascending.
type Store interface {
	// Write operations
	Add(prims ...*graphd.Primitive) error

	// Primitive lookup
	Primitive(id graphd.ID) (*graphd.Primitive, error)
	GUID(id graphd.ID) (graphd.GUID, error)
	Resolve(guid graphd.GUID) (graphd.ID, error)

	// FanIn returns the ids whose linkage l points at target
	FanIn(l graphd.Linkage, target graphd.ID) ([]graphd.ID, error)
	FanInCount(l graphd.Linkage, target graphd.ID) (int64, error)

	// VIP returns the ids whose endpoint linkage l points at endpoint and
	// whose type is typ. l must be LinkLeft or LinkRight.
	VIP(l graphd.Linkage, endpoint, typ graphd.ID) ([]graphd.ID, error)
	VIPCount(l graphd.Linkage, endpoint, typ graphd.ID) (int64, error)

	// Horizon is one past the largest id ever written
	Horizon() graphd.ID

	// Lifecycle
	Close() error
}

// HasVIP reports whether (l, hint) forms an indexed VIP pair:
// an endpoint linkage combined with a type constant.
func HasVIP(l graphd.Linkage, hint graphd.Linkage) bool {
	return l.IsEndpoint() && hint == graphd.LinkType
}
