package codec

import (
	"fmt"
	"unicode/utf16"
)

// decodeMUTF8 decodes Java modified UTF-8: bytes are grouped into UTF-16 code
// units by their continuation-byte count, then surrogate pairs are combined.
// This is not plain UTF-8: supplementary characters arrive as two 3-byte
// encoded surrogates and U+0000 as the two-byte sequence C0 80.
func decodeMUTF8(data []byte) (string, error) {
	units := make([]uint16, 0, len(data))
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b&0x80 == 0:
			units = append(units, uint16(b))
			i++
		case b&0xE0 == 0xC0:
			if i+1 >= len(data) {
				return "", fmt.Errorf("truncated 2-byte sequence at offset %d", i)
			}
			b2 := data[i+1]
			if b2&0xC0 != 0x80 {
				return "", fmt.Errorf("bad continuation byte 0x%02x at offset %d", b2, i+1)
			}
			units = append(units, uint16(b&0x1F)<<6|uint16(b2&0x3F))
			i += 2
		case b&0xF0 == 0xE0:
			if i+2 >= len(data) {
				return "", fmt.Errorf("truncated 3-byte sequence at offset %d", i)
			}
			b2, b3 := data[i+1], data[i+2]
			if b2&0xC0 != 0x80 || b3&0xC0 != 0x80 {
				return "", fmt.Errorf("bad continuation byte at offset %d", i+1)
			}
			units = append(units, uint16(b&0x0F)<<12|uint16(b2&0x3F)<<6|uint16(b3&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("invalid leading byte 0x%02x at offset %d", b, i)
		}
	}
	return string(utf16.Decode(units)), nil
}

// encodeMUTF8 encodes a string as Java modified UTF-8.
func encodeMUTF8(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units))
	for _, u := range units {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			// includes U+0000, encoded as C0 80
			out = append(out, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			out = append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
		}
	}
	return out
}
