package protocol

import (
	"encoding/binary"
)

// ParseFrame validates a complete frame and extracts its fields.
// Validates preamble, declared length, end marker and DCS.
//
// Frame structure:
//
//	[00][00][FF][LEN_L][LEN_H][PAYLOAD...][DCS][00]
//
// Trailing bytes beyond the declared frame are ignored. No partially valid
// frame is ever returned: on error the *Frame is nil.
func ParseFrame(frame []byte) (*Frame, error) {
	if len(frame) < MinFrameSize {
		return nil, frameErrorf("frame too short: got %d bytes, minimum is %d", len(frame), MinFrameSize)
	}

	if frame[0] != Preamble0 || frame[1] != Preamble1 || frame[2] != Preamble2 {
		return nil, frameErrorf("invalid preamble: got % X", frame[0:3])
	}

	payloadLen := int(binary.LittleEndian.Uint16(frame[3:5]))
	if payloadLen < PayloadPrefixSize {
		return nil, frameErrorf("payload length %d below minimum %d", payloadLen, PayloadPrefixSize)
	}

	total := HeaderSize + payloadLen + TrailerSize
	if len(frame) < total {
		return nil, frameErrorf("declared payload length %d exceeds available %d bytes",
			payloadLen, len(frame)-HeaderSize-TrailerSize)
	}

	if frame[total-1] != EndOfFrame {
		return nil, frameErrorf("invalid end marker: got 0x%02X, expected 0x%02X", frame[total-1], EndOfFrame)
	}

	payload := frame[HeaderSize : HeaderSize+payloadLen]
	dcs := frame[HeaderSize+payloadLen]
	if !VerifyDCS(payload, dcs) {
		return nil, frameErrorf("checksum mismatch: got 0x%02X, expected 0x%02X", dcs, CalculateDCS(payload))
	}

	f := &Frame{}
	copy(f.Source[:], payload[0:6])
	copy(f.Target[:], payload[6:12])
	f.Sequence = payload[12]
	f.Command = Command(payload[13])
	f.PageNumber = binary.LittleEndian.Uint16(payload[14:16])

	if payloadLen > PayloadPrefixSize {
		f.Body = make([]byte, payloadLen-PayloadPrefixSize)
		copy(f.Body, payload[PayloadPrefixSize:])
	}

	return f, nil
}

// FrameLength returns the total length of the frame starting at b, or 0 if
// the length cannot be determined yet (fewer than HeaderSize bytes).
func FrameLength(b []byte) int {
	if len(b) < HeaderSize {
		return 0
	}
	return HeaderSize + int(binary.LittleEndian.Uint16(b[3:5])) + TrailerSize
}

// ParseRequest interprets the body of a command frame.
//
// Body formats:
//
//	ERASE:       [ADDR(4)][BLOCKS]
//	PROGRAM:     [ADDR(4)][PAGES][DATA...]
//	READ_HEADER: [ADDR(4)]
//	RESET, GET_UUID: empty
func ParseRequest(f *Frame) (*Request, error) {
	req := &Request{}

	switch f.Command {
	case CmdErase:
		if len(f.Body) != EraseBodySize {
			return nil, frameErrorf("invalid ERASE body length: got %d bytes, expected %d", len(f.Body), EraseBodySize)
		}
		req.Address = binary.LittleEndian.Uint32(f.Body[0:4])
		req.BlockCount = f.Body[4]
	case CmdProgram:
		if len(f.Body) < ProgramBodyPrefixSize {
			return nil, frameErrorf("invalid PROGRAM body length: got %d bytes, minimum %d", len(f.Body), ProgramBodyPrefixSize)
		}
		req.Address = binary.LittleEndian.Uint32(f.Body[0:4])
		req.PageCount = f.Body[4]
		req.Data = f.Body[ProgramBodyPrefixSize:]
	case CmdReadHeader:
		if len(f.Body) != ReadHeaderBodySize {
			return nil, frameErrorf("invalid READ_HEADER body length: got %d bytes, expected %d", len(f.Body), ReadHeaderBodySize)
		}
		req.Address = binary.LittleEndian.Uint32(f.Body[0:4])
	case CmdReset, CmdGetUUID:
		if len(f.Body) != 0 {
			return nil, frameErrorf("unexpected %s body of %d bytes", f.Command, len(f.Body))
		}
	default:
		return nil, frameErrorf("unknown command 0x%02X", byte(f.Command))
	}

	return req, nil
}

// ParseConfirmation decodes one short confirmation at the start of b.
// It returns the confirmation and the number of bytes consumed.
//
// Formats:
//
//	[0x01|0x02|0x03][STATUS]
//	[0x04][PAGE_L][PAGE_H]
//
// A nil error with n == 0 means b holds the start of a confirmation that
// needs more bytes.
func ParseConfirmation(b []byte) (c Confirmation, n int, err error) {
	if len(b) == 0 {
		return Confirmation{}, 0, nil
	}

	phase := Phase(b[0])
	switch phase {
	case PhaseErase, PhaseProgram, PhaseVerify:
		if len(b) < StatusConfirmationSize {
			return Confirmation{}, 0, nil
		}
		if b[1] != StatusSuccess && b[1] != StatusFailure {
			return Confirmation{}, 0, frameErrorf("invalid %s status 0x%02X", phase, b[1])
		}
		return Confirmation{Phase: phase, Status: b[1]}, StatusConfirmationSize, nil
	case PhasePacketLoss:
		if len(b) < PacketLossConfirmationSize {
			return Confirmation{}, 0, nil
		}
		return Confirmation{
			Phase: phase,
			Page:  binary.LittleEndian.Uint16(b[1:3]),
		}, PacketLossConfirmationSize, nil
	default:
		return Confirmation{}, 0, frameErrorf("unknown confirmation tag 0x%02X", b[0])
	}
}

// BuildConfirmation encodes a status confirmation for phase.
func BuildConfirmation(phase Phase, status byte) []byte {
	return []byte{byte(phase), status}
}

// BuildPacketLoss encodes a packet-loss notification for the expected page.
func BuildPacketLoss(page uint16) []byte {
	return []byte{byte(PhasePacketLoss), byte(page), byte(page >> 8)}
}
