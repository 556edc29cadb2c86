package graphd

import (
	"fmt"
	"strconv"
)

// ID is the local, dense identifier of a primitive.
// IDs fit in 40 bits so they can be packed into 5 bytes (see pack.go).
type ID uint64

const (
	// IDMax is one past the largest representable id
	IDMax ID = 1 << 40

	// IDNone marks an absent linkage or an unset id
	IDNone ID = ^ID(0)
)

// Valid reports whether id is a real primitive id
func (id ID) Valid() bool {
	return id < IDMax
}

// String returns the decimal form, or "-" for IDNone
func (id ID) String() string {
	if id == IDNone {
		return "-"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Linkage names one of the pointer fields a primitive may carry
type Linkage uint8

const (
	LinkType  Linkage = iota // Typeguid
	LinkRight                // Right endpoint
	LinkLeft                 // Left endpoint
	LinkScope                // Scope
	NLinkages
)

var linkageCodes = [NLinkages]byte{'T', 'R', 'L', 'S'}
var linkageNames = [NLinkages]string{"type", "right", "left", "scope"}

// Code returns the single-letter cursor code (T, R, L, S)
func (l Linkage) Code() byte {
	if l >= NLinkages {
		return '?'
	}
	return linkageCodes[l]
}

// String returns the long name of the linkage
func (l Linkage) String() string {
	if l >= NLinkages {
		return fmt.Sprintf("linkage(%d)", uint8(l))
	}
	return linkageNames[l]
}

// IsEndpoint reports whether l is left or right
func (l Linkage) IsEndpoint() bool {
	return l == LinkLeft || l == LinkRight
}

// LinkageFromCode parses a cursor code
func LinkageFromCode(c byte) (Linkage, bool) {
	for i, code := range linkageCodes {
		if code == c {
			return Linkage(i), true
		}
	}
	return 0, false
}

// LinkageFromName parses a long name ("left") or a single-letter code ("L")
func LinkageFromName(s string) (Linkage, bool) {
	if len(s) == 1 {
		return LinkageFromCode(s[0])
	}
	for i, name := range linkageNames {
		if name == s {
			return Linkage(i), true
		}
	}
	return 0, false
}

// Primitive is the smallest stored graph record
type Primitive struct {
	ID    ID
	GUID  GUID
	Links [NLinkages]ID // IDNone where the primitive carries no such linkage
}

// NewPrimitive creates a primitive with no linkages set
func NewPrimitive(id ID, guid GUID) *Primitive {
	p := &Primitive{ID: id, GUID: guid}
	for i := range p.Links {
		p.Links[i] = IDNone
	}
	return p
}

// Link returns the target of linkage l
func (p *Primitive) Link(l Linkage) (ID, bool) {
	if p == nil || l >= NLinkages {
		return IDNone, false
	}
	id := p.Links[l]
	return id, id != IDNone
}

// SetLink sets linkage l, returning p for chaining
func (p *Primitive) SetLink(l Linkage, target ID) *Primitive {
	p.Links[l] = target
	return p
}

// String returns a string representation of the primitive
func (p *Primitive) String() string {
	s := fmt.Sprintf("[%d %s", p.ID, p.GUID)
	for l := Linkage(0); l < NLinkages; l++ {
		if id, ok := p.Link(l); ok {
			s += fmt.Sprintf(" %c=%d", l.Code(), id)
		}
	}
	return s + "]"
}
