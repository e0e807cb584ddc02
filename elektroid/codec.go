package elektroid

import "math"

// EncodePayload 7-bit-packs an arbitrary byte slice so it can travel inside
// a SysEx body, which may only carry bytes in 0..127. Every group of up to
// 7 input bytes becomes 8 output bytes: the first carries the high bit of
// each of the 7 following bytes (input byte k's MSB at bit 6-k of the
// header byte), the rest carry the low 7 bits of each input byte in order.
// A short final group only emits the header and the bytes actually
// present; absent bytes leave their header bit zero.
//
// Grounded on elektroid's connector_encode_payload.
func EncodePayload(src []byte) []byte {
	dstLen := len(src) + int(math.Ceil(float64(len(src))/7.0))
	dst := make([]byte, dstLen)

	for i, j := 0, 0; j < len(src); i, j = i+8, j+7 {
		var accum byte
		for k := 0; k < 7; k++ {
			accum <<= 1
			if j+k < len(src) {
				if src[j+k]&0x80 != 0 {
					accum |= 1
				}
				dst[i+k+1] = src[j+k] & 0x7f
			}
		}
		dst[i] = accum
	}

	return dst
}

// DecodePayload reverses EncodePayload. It is the exact inverse for any
// buffer EncodePayload produced; decoding arbitrary untrusted input is safe
// as long as it has the expected 8-bytes-per-group-of-7 shape (§8).
//
// Grounded on elektroid's connector_decode_payload.
func DecodePayload(src []byte) []byte {
	dstLen := len(src) - int(math.Ceil(float64(len(src))/8.0))
	dst := make([]byte, dstLen)

	for i, j := 0, 0; i < len(src); i, j = i+8, j+7 {
		shift := byte(0x40)
		for k := 0; k < 7 && i+k+1 < len(src); k++ {
			hi := byte(0)
			if src[i]&shift != 0 {
				hi = 0x80
			}
			dst[j+k] = src[i+k+1] | hi
			shift >>= 1
		}
	}

	return dst
}
