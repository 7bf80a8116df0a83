package compact

import "encoding/binary"

// PutCompressed writes n with the prefix varint encoding and returns the
// number of bytes written. b must hold at least CompressedSize(n) bytes.
//
//	0nnnnnnn                                      7 bits
//	10nnnnnn nnnnnnnn                             14 bits
//	110nnnnn nnnnnnnn nnnnnnnn                    21 bits
//	1110nnnn nnnnnnnn nnnnnnnn nnnnnnnn           28 bits
//	11110000 nnnnnnnn nnnnnnnn nnnnnnnn nnnnnnnn  32 bits
func PutCompressed(b []byte, n uint32) int {
	switch {
	case n < 0x80:
		b[0] = byte(n)
		return 1
	case n < 0x4000:
		binary.BigEndian.PutUint16(b, uint16(n)|0x8000)
		return 2
	case n < 0x200000:
		v := n | 0xC00000
		b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
		return 3
	case n < 0x10000000:
		binary.BigEndian.PutUint32(b, n|0xE0000000)
		return 4
	default:
		b[0] = 0xF0
		binary.BigEndian.PutUint32(b[1:], n)
		return 5
	}
}

// Compressed decodes a prefix varint and returns its value and length.
func Compressed(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	b0 := b[0]
	size := compressedLen(b0)
	if len(b) < size {
		return 0, 0, ErrTruncated
	}
	switch size {
	case 1:
		return uint32(b0), 1, nil
	case 2:
		return uint32(binary.BigEndian.Uint16(b)) & 0x3FFF, 2, nil
	case 3:
		return (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])) & 0x1FFFFF, 3, nil
	case 4:
		return binary.BigEndian.Uint32(b) & 0xFFFFFFF, 4, nil
	default:
		return binary.BigEndian.Uint32(b[1:]), 5, nil
	}
}

// CompressedSize returns the encoded length of n.
func CompressedSize(n uint32) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	case n < 0x200000:
		return 3
	case n < 0x10000000:
		return 4
	default:
		return 5
	}
}

func compressedLen(b0 byte) int {
	switch {
	case b0 < 0x80:
		return 1
	case b0 < 0xC0:
		return 2
	case b0 < 0xE0:
		return 3
	case b0 < 0xF0:
		return 4
	default:
		return 5
	}
}
