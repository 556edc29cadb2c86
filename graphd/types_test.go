package graphd

import (
	"bytes"
	"testing"
)

func TestLinkageCodes(t *testing.T) {
	for l := Linkage(0); l < NLinkages; l++ {
		got, ok := LinkageFromCode(l.Code())
		if !ok || got != l {
			t.Errorf("code %c: got %v, %v", l.Code(), got, ok)
		}
		got, ok = LinkageFromName(l.String())
		if !ok || got != l {
			t.Errorf("name %s: got %v, %v", l, got, ok)
		}
	}

	if _, ok := LinkageFromCode('X'); ok {
		t.Error("X should not parse as a linkage")
	}
	if !LinkLeft.IsEndpoint() || LinkType.IsEndpoint() {
		t.Error("endpoint classification is wrong")
	}
}

func TestPrimitiveLinks(t *testing.T) {
	p := NewPrimitive(7, NewGUID("seven")).SetLink(LinkLeft, 100)

	if id, ok := p.Link(LinkLeft); !ok || id != 100 {
		t.Errorf("left: got %d, %v", id, ok)
	}
	if _, ok := p.Link(LinkRight); ok {
		t.Error("right should be unset")
	}
	if s := p.String(); !bytes.Contains([]byte(s), []byte("L=100")) {
		t.Errorf("string %q should mention L=100", s)
	}
}

func TestPackedIDsSortLikeIDs(t *testing.T) {
	ids := []ID{0, 1, 255, 256, 65535, 1 << 32, IDMax - 1}
	var prev []byte
	for _, id := range ids {
		buf := make([]byte, PackedSize)
		PutID5(buf, id)
		if got := ID5(buf); got != id {
			t.Errorf("round trip %d: got %d", id, got)
		}
		if prev != nil && bytes.Compare(prev, buf) >= 0 {
			t.Errorf("packed %d does not sort after its predecessor", id)
		}
		prev = buf
	}

	if err := CheckPackable(IDMax); err == nil {
		t.Error("IDMax should not be packable")
	}
}

func TestGUIDRoundTrip(t *testing.T) {
	g := NewGUID("node:alice")
	parsed, err := ParseGUID(g.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != g {
		t.Errorf("got %s, want %s", parsed, g)
	}
	if _, err := ParseGUID("zz"); err == nil {
		t.Error("short guid should fail")
	}
}
