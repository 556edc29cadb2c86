package graphd

import "fmt"

// PackedSize is the width of a packed id
const PackedSize = 5

// PutID5 writes id big-endian into the first 5 bytes of buf.
// Big-endian keeps packed ids byte-sortable in index keys.
func PutID5(buf []byte, id ID) {
	_ = buf[4]
	buf[0] = byte(id >> 32)
	buf[1] = byte(id >> 24)
	buf[2] = byte(id >> 16)
	buf[3] = byte(id >> 8)
	buf[4] = byte(id)
}

// AppendID5 appends the packed form of id to buf
func AppendID5(buf []byte, id ID) []byte {
	return append(buf, byte(id>>32), byte(id>>24), byte(id>>16), byte(id>>8), byte(id))
}

// ID5 reads a packed id from the first 5 bytes of buf
func ID5(buf []byte) ID {
	_ = buf[4]
	return ID(buf[0])<<32 | ID(buf[1])<<24 | ID(buf[2])<<16 | ID(buf[3])<<8 | ID(buf[4])
}

// CheckPackable returns an error if id does not fit in 5 bytes
func CheckPackable(id ID) error {
	if !id.Valid() {
		return fmt.Errorf("id %d does not fit in %d bytes", uint64(id), PackedSize)
	}
	return nil
}
