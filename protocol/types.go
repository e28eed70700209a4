package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Command is the command byte of a frame.
type Command byte

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdReset:
		return "RESET"
	case CmdErase:
		return "ERASE"
	case CmdProgram:
		return "PROGRAM"
	case CmdReadHeader:
		return "READ_HEADER"
	case CmdGetUUID:
		return "GET_UUID"
	default:
		return fmt.Sprintf("CMD(0x%02X)", byte(c))
	}
}

// Address is a 6-byte source or target address.
type Address [AddressSize]byte

// String formats the address as colon separated hex.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// ParseAddress parses 12 hex digits, optionally separated by ':' or '-'.
func ParseAddress(s string) (Address, error) {
	var a Address
	digits := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(digits)
	if err != nil || len(b) != AddressSize {
		return a, fmt.Errorf("invalid address %q: want 6 hex bytes", s)
	}
	copy(a[:], b)
	return a, nil
}

// Header holds the per-session addressing fields written into every frame.
type Header struct {
	// Source is the host address
	Source Address

	// Target is the device address
	Target Address

	// Sequence is the SNQ byte, constant for a session
	Sequence byte
}

// DefaultHeader returns the addressing used by stock target firmware.
func DefaultHeader() Header {
	return Header{
		Source:   DefaultSourceAddress,
		Target:   DefaultTargetAddress,
		Sequence: DefaultSequenceTag,
	}
}

// Frame is a decoded command or reply frame.
type Frame struct {
	Header

	// Command is the command (or, in replies, the command being answered)
	Command Command

	// PageNumber is carried in the two reserved bytes after the command.
	// Replies use the same bytes for result (low) and apdu count (high).
	PageNumber uint16

	// Body is the command-specific payload following the fixed prefix
	Body []byte
}

// Result returns the result byte of a reply frame.
func (f *Frame) Result() byte {
	return byte(f.PageNumber)
}

// Count returns the apdu count byte of a reply frame.
func (f *Frame) Count() byte {
	return byte(f.PageNumber >> 8)
}

// Request is the command-specific content of a frame body.
type Request struct {
	// Address is the flash address (ERASE, PROGRAM, READ_HEADER)
	Address uint32

	// BlockCount is the number of 64 KiB blocks to erase (ERASE)
	BlockCount byte

	// PageCount is the number of flash pages covered by Data (PROGRAM)
	PageCount byte

	// Data is the chunk being programmed (PROGRAM)
	Data []byte
}

// Phase is the tag byte of a short confirmation.
type Phase byte

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseErase:
		return "erase"
	case PhaseProgram:
		return "program"
	case PhaseVerify:
		return "verify"
	case PhasePacketLoss:
		return "packet-loss"
	default:
		return fmt.Sprintf("phase(0x%02X)", byte(p))
	}
}

// Confirmation is a short inbound message from the device.
type Confirmation struct {
	// Phase identifies what is being confirmed
	Phase Phase

	// Status is StatusSuccess or StatusFailure (erase, program, verify)
	Status byte

	// Page is the next page the device expected (packet loss only)
	Page uint16
}

// OK reports whether the confirmation carries a success status.
func (c Confirmation) OK() bool {
	return c.Status == StatusSuccess
}

// Inbound is one unit decoded from the inbound byte stream: either a short
// confirmation or a full reply frame.
type Inbound struct {
	Confirmation *Confirmation
	Frame        *Frame
}
