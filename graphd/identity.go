package graphd

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// GUID is the globally unique, externally visible name of a primitive.
// Cursors refer to constants by GUID so they stay meaningful across
// processes that number primitives differently.
type GUID [16]byte

// NewGUID derives a GUID from a string name (first 16 bytes of SHA1)
func NewGUID(name string) GUID {
	sum := sha1.Sum([]byte(name))
	var g GUID
	copy(g[:], sum[:16])
	return g
}

// IsZero reports whether g is the all-zero GUID
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// String returns the 32-character lowercase hex form
func (g GUID) String() string {
	return hex.EncodeToString(g[:])
}

// ParseGUID parses the 32-character hex form
func ParseGUID(s string) (GUID, error) {
	var g GUID
	if len(s) != 32 {
		return g, fmt.Errorf("guid %q: expected 32 hex characters, got %d", s, len(s))
	}
	if _, err := hex.Decode(g[:], []byte(s)); err != nil {
		return g, fmt.Errorf("guid %q: %w", s, err)
	}
	return g, nil
}
