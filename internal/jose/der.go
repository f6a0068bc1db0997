package jose

const (
	tagInteger  = 0x02
	tagSequence = 0x30
)

// EncodeInteger returns the DER INTEGER encoding of the big-endian unsigned
// value b. A 0x00 byte is prepended when the leading byte has its high bit
// set so the value is not read back as negative.
func EncodeInteger(b []byte) []byte {
	value := b
	if len(value) == 0 {
		value = []byte{0x00}
	} else if value[0]&0x80 != 0 {
		value = make([]byte, 0, len(b)+1)
		value = append(value, 0x00)
		value = append(value, b...)
	}

	return encodeTLV(tagInteger, value)
}

// EncodeSequence wraps the concatenated child TLVs in a DER SEQUENCE.
func EncodeSequence(children ...[]byte) []byte {
	size := 0
	for _, c := range children {
		size += len(c)
	}

	body := make([]byte, 0, size)
	for _, c := range children {
		body = append(body, c...)
	}

	return encodeTLV(tagSequence, body)
}

func encodeTLV(tag byte, value []byte) []byte {
	length := encodeLength(len(value))

	out := make([]byte, 0, 1+len(length)+len(value))
	out = append(out, tag)
	out = append(out, length...)

	return append(out, value...)
}

// encodeLength uses the short form below 128 and otherwise the long form:
// 0x80|n followed by n big-endian bytes with no leading zeros.
func encodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}

	var digits []byte
	for v := n; v > 0; v >>= 8 {
		digits = append([]byte{byte(v)}, digits...)
	}

	return append([]byte{0x80 | byte(len(digits))}, digits...)
}
