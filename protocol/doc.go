// Package protocol implements the APDU-style command protocol spoken by the
// OTA bootloader of the target device.
//
// This package provides functions to build command frames, parse reply frames
// and decode the short confirmations the device sends while it is flashing.
//
// # Frame Overview
//
// Commands are carried in fixed-header frames:
//
//	[00][00][FF][LEN_L][LEN_H][PAYLOAD...][DCS][00]
//	PAYLOAD = [SADDR(6)][TADDR(6)][SNQ][CMD][PAGE_L][PAGE_H][BODY...]
//
// Where:
//   - LEN = 16-bit payload length (little-endian)
//   - SADDR/TADDR = source and target addresses, constant for a session
//   - SNQ = sequence tag, constant for a session
//   - PAGE = chunk index for PROGRAM frames (reply frames: result, count)
//   - DCS = payload checksum, sum(PAYLOAD) + DCS = 0 mod 256
//
// # Command Builders
//
// Use Encode for the generic form or the Build* helpers:
//
//	frame := protocol.BuildEraseCmd(h, 0x00280000, 1)
//	frame := protocol.BuildProgramCmd(h, addr, page, chunk)
//	frame := protocol.BuildReadHeaderCmd(h, 0x00280000)
//
// # Confirmations
//
// While a transfer runs the device answers with 2-3 byte confirmations rather
// than full frames:
//
//	[01][STATUS]          erase finished
//	[02][STATUS]          program finished
//	[03][STATUS]          verify finished
//	[04][PAGE_L][PAGE_H]  packet loss, next expected page
//
// Use a Decoder to split the inbound byte stream into confirmations and reply
// frames:
//
//	dec := protocol.NewDecoder()
//	for _, in := range dec.Feed(data) {
//	    if in.Confirmation != nil { ... }
//	}
//
// # Integrity Codes
//
// CRC32 and CRC16XModem compute the image integrity codes stored in the
// firmware headers; the device recomputes them bit for bit.
package protocol
