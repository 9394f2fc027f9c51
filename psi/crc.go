/*
NAME
  crc.go

DESCRIPTION
  crc.go computes the MPEG-2 variant of CRC32 (poly 0x04C11DB7, init
  0xFFFFFFFF, no input/output reflection) used to validate PSI/SI sections.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import "encoding/binary"

const crcPoly = 0x04C11DB7

var crcTable = makeCRCTable(crcPoly)

func makeCRCTable(poly uint32) *[256]uint32 {
	var t [256]uint32
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

// CRC32 computes the MPEG-2 CRC32 over b.
func CRC32(b []byte) uint32 {
	crc := uint32(0xffffffff)
	for _, v := range b {
		crc = crcTable[byte(crc>>24)^v] ^ (crc << 8)
	}
	return crc
}

// AppendCRC appends the big-endian MPEG-2 CRC32 of b to b and returns the
// result.
func AppendCRC(b []byte) []byte {
	out := make([]byte, len(b)+4)
	copy(out, b)
	binary.BigEndian.PutUint32(out[len(b):], CRC32(b))
	return out
}
