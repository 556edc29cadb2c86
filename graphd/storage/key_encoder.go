package storage

import (
	"fmt"

	"github.com/wbrown/janus-graphd/graphd"
)

// KeySpace is the 1-byte prefix separating key namespaces
type KeySpace byte

const (
	SpacePrimitive KeySpace = 'p' // p | id5                              -> record
	SpaceFanIn     KeySpace = 'f' // f | L | target5 | source5            -> empty
	SpaceVIP       KeySpace = 'v' // v | L | endpoint5 | type5 | source5  -> empty
	SpaceGUID      KeySpace = 'g' // g | guid16                           -> id5
	SpaceHorizon   KeySpace = 'h' // h                                    -> id5
)

// recordSize is GUID(16) + presence(1) + NLinkages*id5
const recordSize = 16 + 1 + int(graphd.NLinkages)*graphd.PackedSize

// PrimitiveKey returns the key of the primitive record for id
func PrimitiveKey(id graphd.ID) []byte {
	return graphd.AppendID5([]byte{byte(SpacePrimitive)}, id)
}

// FanInPrefix returns the prefix shared by all fan-in keys of (l, target)
func FanInPrefix(l graphd.Linkage, target graphd.ID) []byte {
	return graphd.AppendID5([]byte{byte(SpaceFanIn), byte(l)}, target)
}

// FanInKey returns the fan-in key recording that source's l points at target
func FanInKey(l graphd.Linkage, target, source graphd.ID) []byte {
	return graphd.AppendID5(FanInPrefix(l, target), source)
}

// VIPPrefix returns the prefix shared by all VIP keys of (l, endpoint, typ)
func VIPPrefix(l graphd.Linkage, endpoint, typ graphd.ID) []byte {
	key := graphd.AppendID5([]byte{byte(SpaceVIP), byte(l)}, endpoint)
	return graphd.AppendID5(key, typ)
}

// VIPKey returns the VIP key for source
func VIPKey(l graphd.Linkage, endpoint, typ, source graphd.ID) []byte {
	return graphd.AppendID5(VIPPrefix(l, endpoint, typ), source)
}

// GUIDKey returns the key mapping guid to its id
func GUIDKey(guid graphd.GUID) []byte {
	return append([]byte{byte(SpaceGUID)}, guid[:]...)
}

// HorizonKey is the key of the horizon counter
func HorizonKey() []byte {
	return []byte{byte(SpaceHorizon)}
}

// SourceFromKey extracts the trailing source id of a fan-in or VIP key
func SourceFromKey(key []byte) (graphd.ID, error) {
	if len(key) < 1+graphd.PackedSize {
		return graphd.IDNone, fmt.Errorf("index key too short: %d bytes", len(key))
	}
	return graphd.ID5(key[len(key)-graphd.PackedSize:]), nil
}

// EncodePrimitive serializes p.
// Format: GUID(16) + presence bitmap(1) + NLinkages * id5 (zero when absent)
func EncodePrimitive(p *graphd.Primitive) []byte {
	buf := make([]byte, recordSize)
	copy(buf[0:16], p.GUID[:])
	for l := graphd.Linkage(0); l < graphd.NLinkages; l++ {
		off := 17 + int(l)*graphd.PackedSize
		if target, ok := p.Link(l); ok {
			buf[16] |= 1 << l
			graphd.PutID5(buf[off:], target)
		}
	}
	return buf
}

// DecodePrimitive deserializes a record written by EncodePrimitive
func DecodePrimitive(id graphd.ID, data []byte) (*graphd.Primitive, error) {
	if len(data) < recordSize {
		return nil, fmt.Errorf("primitive %d: record too short: %d bytes", id, len(data))
	}
	var guid graphd.GUID
	copy(guid[:], data[0:16])

	p := graphd.NewPrimitive(id, guid)
	for l := graphd.Linkage(0); l < graphd.NLinkages; l++ {
		if data[16]&(1<<l) == 0 {
			continue
		}
		off := 17 + int(l)*graphd.PackedSize
		p.Links[l] = graphd.ID5(data[off:])
	}
	return p, nil
}
