package flashlog

import "hash/crc32"

// Checksum computes the CRC-32/ISO-HDLC digest (polynomial 0xEDB88320
// reflected, seed 0xFFFFFFFF, final complement) used by both record
// and header validation. The stored format depends on this exact
// algorithm; images written by any firmware version validate with it.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
