package protocol

import (
	"encoding/binary"
)

// Encode constructs a frame with the default session addressing.
// It is total: every command value produces a well-formed frame.
//
// Frame structure:
//
//	[00][00][FF][LEN_L][LEN_H][SADDR(6)][TADDR(6)][SNQ][CMD][PAGE_L][PAGE_H][BODY...][DCS][00]
//
// The body depends on the command:
//
//	ERASE:       [ADDR(4)][BLOCKS]
//	PROGRAM:     [ADDR(4)][PAGES][DATA...]
//	READ_HEADER: [ADDR(4)]
//	RESET, GET_UUID: empty
//
// Arguments that the command does not use are ignored.
func Encode(cmd Command, addr uint32, data []byte, blockCount, pageCount byte, pageNumber uint16) []byte {
	return EncodeWith(DefaultHeader(), cmd, addr, data, blockCount, pageCount, pageNumber)
}

// EncodeWith is Encode with explicit session addressing.
func EncodeWith(h Header, cmd Command, addr uint32, data []byte, blockCount, pageCount byte, pageNumber uint16) []byte {
	var body []byte

	switch cmd {
	case CmdErase:
		body = make([]byte, EraseBodySize)
		binary.LittleEndian.PutUint32(body[0:4], addr)
		body[4] = blockCount
	case CmdProgram:
		body = make([]byte, ProgramBodyPrefixSize, ProgramBodyPrefixSize+len(data))
		binary.LittleEndian.PutUint32(body[0:4], addr)
		body[4] = pageCount
		body = append(body, data...)
	case CmdReadHeader:
		body = make([]byte, ReadHeaderBodySize)
		binary.LittleEndian.PutUint32(body[0:4], addr)
	}

	return buildFrame(h, cmd, pageNumber, body)
}

// buildFrame wraps a body into a complete frame.
func buildFrame(h Header, cmd Command, pageNumber uint16, body []byte) []byte {
	payloadLen := PayloadPrefixSize + len(body)
	frame := make([]byte, 0, HeaderSize+payloadLen+TrailerSize)

	// Preamble
	frame = append(frame, Preamble0, Preamble1, Preamble2)

	// Payload length (little-endian)
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(payloadLen))
	frame = append(frame, lenBytes...)

	// Payload
	frame = append(frame, h.Source[:]...)
	frame = append(frame, h.Target[:]...)
	frame = append(frame, h.Sequence)
	frame = append(frame, byte(cmd))
	frame = append(frame, byte(pageNumber), byte(pageNumber>>8))
	frame = append(frame, body...)

	// DCS over the payload only
	frame = append(frame, CalculateDCS(frame[HeaderSize:]))

	frame = append(frame, EndOfFrame)

	return frame
}

// PageCount returns the number of flash pages covered by n data bytes.
func PageCount(n int) byte {
	return byte((n + FlashPageSize - 1) / FlashPageSize)
}

// BuildEraseCmd constructs an ERASE frame for blockCount 64 KiB blocks
// starting at addr.
func BuildEraseCmd(h Header, addr uint32, blockCount byte) []byte {
	return EncodeWith(h, CmdErase, addr, nil, blockCount, 0, 0)
}

// BuildProgramCmd constructs a PROGRAM frame writing data at addr.
// The page number identifies the chunk so the device can detect gaps.
func BuildProgramCmd(h Header, addr uint32, pageNumber uint16, data []byte) []byte {
	return EncodeWith(h, CmdProgram, addr, data, 0, PageCount(len(data)), pageNumber)
}

// BuildReadHeaderCmd constructs a READ_HEADER frame for the header at addr.
func BuildReadHeaderCmd(h Header, addr uint32) []byte {
	return EncodeWith(h, CmdReadHeader, addr, nil, 0, 0, 0)
}

// BuildResetCmd constructs a RESET frame.
func BuildResetCmd(h Header) []byte {
	return EncodeWith(h, CmdReset, 0, nil, 0, 0, 0)
}

// BuildGetUUIDCmd constructs a GET_UUID frame.
func BuildGetUUIDCmd(h Header) []byte {
	return EncodeWith(h, CmdGetUUID, 0, nil, 0, 0, 0)
}

// BuildReplyFrame constructs a device reply to cmd carrying result and
// count in the reserved bytes followed by data. Devices that answer with
// full frames use this layout; the simulator uses it for GET_UUID and
// READ_HEADER.
func BuildReplyFrame(h Header, cmd Command, result, count byte, data []byte) []byte {
	return buildFrame(h, cmd, uint16(result)|uint16(count)<<8, data)
}
