package dispatch

import (
	"encoding/binary"
	"math/bits"
)

const (
	c1_32 uint32 = 0xcc9e2d51
	c2_32 uint32 = 0x1b873593
)

// MurmurHash3 is the 32-bit x86 variant.
func MurmurHash3(data []byte, seed uint32) (h1 uint32) {
	h1 = seed
	clen := uint32(len(data))
	for len(data) >= 4 {
		k1 := binary.LittleEndian.Uint32(data)
		data = data[4:]

		k1 *= c1_32
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2_32

		h1 ^= k1
		h1 = bits.RotateLeft32(h1, 13)
		h1 = h1*5 + 0xe6546b64
	}
	var k1 uint32
	switch len(data) {
	case 3:
		k1 ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(data[0])
		k1 *= c1_32
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2_32
		h1 ^= k1
	}

	h1 ^= clen

	h1 ^= h1 >> 16
	h1 *= 0x85ebca6b
	h1 ^= h1 >> 13
	h1 *= 0xc2b2ae35
	h1 ^= h1 >> 16

	return h1
}

// steeringKey picks the bytes a frame is steered on: the IP address pair of
// untagged Ethernet IPv4/IPv6 frames, otherwise the link header.
func steeringKey(frame []byte) []byte {
	if len(frame) >= 14 {
		switch binary.BigEndian.Uint16(frame[12:14]) {
		case 0x0800:
			if len(frame) >= 34 {
				return frame[26:34]
			}
		case 0x86dd:
			if len(frame) >= 54 {
				return frame[22:54]
			}
		}
		return frame[:14]
	}
	return frame
}

// Steer maps a frame to one of n lanes. Frames of the same address pair
// always land on the same lane.
func Steer(frame []byte, n int, seed uint32) int {
	if n <= 1 {
		return 0
	}
	return int(MurmurHash3(steeringKey(frame), seed) % uint32(n))
}
