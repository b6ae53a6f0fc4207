// Package network provides packet integrity checks and Ethernet frame
// helpers. Everything here is a pure function usable without a channel.
package network

import "hash/crc32"

// CRC32 returns the standard reflected CRC-32 of data: polynomial
// 0xEDB88320, initial value 0xFFFFFFFF, result inverted at the end.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyPacket reports whether data hashes to the expected CRC-32. Any
// byte sequence is valid input.
func VerifyPacket(data []byte, expected uint32) bool {
	return CRC32(data) == expected
}

// Checksum computes the classic IP-style 16-bit one's-complement
// checksum over big-endian words. An odd trailing byte is treated as
// the high byte of a final zero-padded word. Carries are folded back
// until none remain and the result is inverted.
func Checksum(data []byte) uint16 {
	var sum uint32
	for i := 0; i < len(data); i += 2 {
		word := uint32(data[i]) << 8
		if i+1 < len(data) {
			word |= uint32(data[i+1])
		}
		sum += word
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
