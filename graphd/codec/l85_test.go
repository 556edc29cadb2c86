package codec

import (
	"bytes"
	"crypto/sha1"
	"sort"
	"strings"
	"testing"
)

func TestL85Alphabet(t *testing.T) {
	if len(Alphabet) != 85 {
		t.Errorf("Alphabet length is %d, expected 85", len(Alphabet))
	}

	sorted := []byte(Alphabet)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if string(sorted) != Alphabet {
		t.Error("Alphabet is not in sorted order")
	}

	if strings.IndexByte(Alphabet, BlobQuote) >= 0 {
		t.Error("BlobQuote must not be an alphabet character")
	}
}

func TestL85RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", []byte{}},
		{"one byte", []byte{0x7f}},
		{"two bytes", []byte{0xff, 0x01}},
		{"three bytes", []byte{0xab, 0xcd, 0xef}},
		{"all ones", bytes.Repeat([]byte{0xff}, 13)},
		{"packed ids", []byte{0, 0, 0, 0, 100, 0, 0, 0, 0, 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tt.input))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if !bytes.Equal(decoded, tt.input) {
				t.Errorf("Round trip failed: %x -> %x", tt.input, decoded)
			}
		})
	}
}

func TestL85SortOrder(t *testing.T) {
	var hashes [][]byte
	for _, s := range []string{"", "a", "b", "alice", "bob", "test1", "test10"} {
		h := sha1.Sum([]byte(s))
		hashes = append(hashes, h[:])
	}

	byBytes := append([][]byte(nil), hashes...)
	sort.Slice(byBytes, func(i, j int) bool { return bytes.Compare(byBytes[i], byBytes[j]) < 0 })

	byText := append([][]byte(nil), hashes...)
	sort.Slice(byText, func(i, j int) bool { return Encode(byText[i]) < Encode(byText[j]) })

	for i := range byBytes {
		if !bytes.Equal(byBytes[i], byText[i]) {
			t.Fatalf("sort order differs at %d", i)
		}
	}
}

func TestL85InvalidCharacter(t *testing.T) {
	if _, err := Decode("ab~de"); err == nil {
		t.Error("expected an error for '~'")
	}
}

func TestBlobFraming(t *testing.T) {
	data := []byte("cursor (with) parens / and : colons")

	var sb strings.Builder
	AppendBlob(&sb, data)
	sb.WriteString(")/rest")
	framed := sb.String()

	span, err := BlobSpan(framed)
	if err != nil {
		t.Fatal(err)
	}
	if framed[span:] != ")/rest" {
		t.Errorf("span stops at %q", framed[span:])
	}

	got, n, err := ReadBlob(framed)
	if err != nil {
		t.Fatal(err)
	}
	if n != span || !bytes.Equal(got, data) {
		t.Errorf("ReadBlob = %q, %d", got, n)
	}

	for _, bad := range []string{"", "x", "'12", "'x'abc", "'10'short"} {
		if _, err := BlobSpan(bad); err == nil {
			t.Errorf("BlobSpan(%q) should fail", bad)
		}
	}
}
