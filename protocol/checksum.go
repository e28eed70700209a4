package protocol

import (
	"hash/crc32"

	"github.com/sigurn/crc16"
)

// xmodemTable is the CRC-16/XMODEM table (poly 0x1021, init 0x0000, no reflection).
var xmodemTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CalculateDCS computes the data checksum byte of a frame payload.
// The DCS is chosen so that the byte sum of the payload plus the DCS is
// zero modulo 256.
//
// The checksum covers the payload only: SADDR through the end of the body,
// excluding preamble, length, DCS and end marker.
func CalculateDCS(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	// Return 2's complement: invert and add 1
	return ^sum + 1
}

// VerifyDCS reports whether payload and dcs sum to zero modulo 256.
func VerifyDCS(payload []byte, dcs byte) bool {
	sum := dcs
	for _, b := range payload {
		sum += b
	}
	return sum == 0
}

// CRC32 computes the IEEE CRC-32 (reflected, init 0xFFFFFFFF, final XOR
// 0xFFFFFFFF) the target stores in the type A firmware header.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CRC16XModem computes the CRC-16/XMODEM the secondary target stores in its
// configuration block.
func CRC16XModem(data []byte) uint16 {
	return crc16.Checksum(data, xmodemTable)
}
