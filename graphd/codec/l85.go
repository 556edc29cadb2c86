// Package codec holds the text encodings used inside iterator cursors.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Alphabet is the lexicographically sorted base85 alphabet of L85.
// Encoded strings sort in the same order as their inputs.
const Alphabet = "!$%&()+,-./" +
	"0123456789:;<=>@" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ[]_`" +
	"abcdefghijklmnopqrstuvwxyz{}"

// BlobQuote delimits the length prefix of a framed blob.
// It is not part of Alphabet, so a cursor scanner can find blobs without
// decoding them.
const BlobQuote = '\''

var (
	// decodeTable maps a character to its digit value plus one; zero is invalid
	decodeTable [256]byte

	// ErrInvalidCharacter indicates a character outside Alphabet
	ErrInvalidCharacter = errors.New("invalid L85 character")

	// ErrBadBlob indicates a malformed blob frame
	ErrBadBlob = errors.New("malformed L85 blob")
)

func init() {
	for i := 0; i < len(Alphabet); i++ {
		decodeTable[Alphabet[i]] = byte(i + 1)
	}
}

// Encode encodes src as L85. Each 4-byte group becomes 5 characters; a
// trailing group of n bytes becomes n+1 characters.
func Encode(src []byte) string {
	if len(src) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(src)*5/4 + 5)

	for i := 0; i < len(src); i += 4 {
		var group [4]byte
		n := copy(group[:], src[i:])

		v := uint32(group[0])<<24 | uint32(group[1])<<16 | uint32(group[2])<<8 | uint32(group[3])
		var digits [5]byte
		for j := 4; j >= 0; j-- {
			digits[j] = Alphabet[v%85]
			v /= 85
		}

		if n == 4 {
			sb.Write(digits[:])
		} else {
			sb.Write(digits[:n+1])
		}
	}
	return sb.String()
}

// Decode reverses Encode
func Decode(src string) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	if len(src)%5 == 1 {
		return nil, fmt.Errorf("%w: dangling character", ErrBadBlob)
	}

	out := make([]byte, 0, len(src)*4/5+4)
	for i := 0; i < len(src); i += 5 {
		end := i + 5
		if end > len(src) {
			end = len(src)
		}
		chunk := src[i:end]

		var v uint32
		for j := 0; j < 5; j++ {
			d := byte(len(Alphabet)) // pad with the last digit so truncation rounds back down
			if j < len(chunk) {
				d = decodeTable[chunk[j]]
				if d == 0 {
					return nil, fmt.Errorf("%w at position %d: %q", ErrInvalidCharacter, i+j, chunk[j])
				}
			}
			v = v*85 + uint32(d-1)
		}

		group := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
		n := 4
		if len(chunk) < 5 {
			n = len(chunk) - 1
		}
		out = append(out, group[:n]...)
	}
	return out, nil
}

// AppendBlob appends data framed as 'LEN'ENCODED, where LEN is the decimal
// length of ENCODED.
func AppendBlob(sb *strings.Builder, data []byte) {
	enc := Encode(data)
	sb.WriteByte(BlobQuote)
	sb.WriteString(strconv.Itoa(len(enc)))
	sb.WriteByte(BlobQuote)
	sb.WriteString(enc)
}

// BlobSpan returns the length of the framed blob at the start of s,
// without decoding it.
func BlobSpan(s string) (int, error) {
	if len(s) == 0 || s[0] != BlobQuote {
		return 0, fmt.Errorf("%w: missing opening quote", ErrBadBlob)
	}
	close := strings.IndexByte(s[1:], BlobQuote)
	if close < 0 {
		return 0, fmt.Errorf("%w: missing closing quote", ErrBadBlob)
	}
	n, err := strconv.Atoi(s[1 : 1+close])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad length %q", ErrBadBlob, s[1:1+close])
	}
	total := close + 2 + n
	if total > len(s) {
		return 0, fmt.Errorf("%w: truncated, need %d characters, have %d", ErrBadBlob, total, len(s))
	}
	return total, nil
}

// ReadBlob decodes the framed blob at the start of s and returns the data
// and the number of characters consumed.
func ReadBlob(s string) ([]byte, int, error) {
	total, err := BlobSpan(s)
	if err != nil {
		return nil, 0, err
	}
	close := strings.IndexByte(s[1:], BlobQuote)
	data, err := Decode(s[close+2 : total])
	if err != nil {
		return nil, 0, err
	}
	return data, total, nil
}
