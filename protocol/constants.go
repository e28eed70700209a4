package protocol

// ProtocolVersion is the APDU OTA protocol revision implemented by this library.
const ProtocolVersion = "1.0"

// Frame structure constants.
const (
	// Preamble0, Preamble1 and Preamble2 open every frame (0x00 0x00 0xFF)
	Preamble0 = 0x00
	Preamble1 = 0x00
	Preamble2 = 0xFF

	// EndOfFrame is the trailing frame marker (0x00)
	EndOfFrame = 0x00

	// HeaderSize is the preamble plus the 16-bit payload length:
	// PRE(3) + LEN(2)
	HeaderSize = 5

	// TrailerSize is the DCS byte plus the end marker
	TrailerSize = 2

	// AddressSize is the size of the source and target address fields
	AddressSize = 6

	// PayloadPrefixSize is the fixed part of every payload:
	// SADDR(6) + TADDR(6) + SNQ(1) + CMD(1) + PAGE_L(1) + PAGE_H(1)
	PayloadPrefixSize = 2*AddressSize + 4

	// MinFrameSize is the smallest frame that can carry a valid payload
	MinFrameSize = HeaderSize + PayloadPrefixSize + TrailerSize

	// MaxPayloadSize is the largest payload the 16-bit length field can declare
	MaxPayloadSize = 0xFFFF
)

// Command codes.
const (
	// CmdReset reboots the target MCU into its application
	CmdReset Command = 0xCA

	// CmdErase erases a number of 64 KiB blocks starting at an address
	CmdErase Command = 0xCB

	// CmdProgram writes one chunk of firmware at an address
	CmdProgram Command = 0xCC

	// CmdReadHeader reads the firmware header stored at an address
	CmdReadHeader Command = 0xCD

	// CmdGetUUID queries the device unique identifier
	CmdGetUUID Command = 0xCE
)

// Default addressing used by the target firmware.
var (
	// DefaultSourceAddress identifies the host
	DefaultSourceAddress = Address{0x05, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	// DefaultTargetAddress identifies the device
	DefaultTargetAddress = Address{0x06, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

// DefaultSequenceTag is the SNQ byte sent with every frame of a session.
const DefaultSequenceTag = 0x01

// Confirmation phase tags (first byte of a short inbound confirmation).
const (
	// PhaseErase reports the erase outcome
	PhaseErase Phase = 0x01

	// PhaseProgram reports a program outcome
	PhaseProgram Phase = 0x02

	// PhaseVerify reports the header verification outcome
	PhaseVerify Phase = 0x03

	// PhasePacketLoss carries the next page the device expected
	PhasePacketLoss Phase = 0x04
)

// Confirmation status values.
const (
	// StatusSuccess indicates the phase completed on the device
	StatusSuccess = 0x00

	// StatusFailure indicates the phase failed on the device
	StatusFailure = 0x01
)

// Confirmation sizes.
const (
	// StatusConfirmationSize is the size of erase/program/verify confirmations
	StatusConfirmationSize = 2

	// PacketLossConfirmationSize is the size of a packet-loss notification
	PacketLossConfirmationSize = 3
)

// Flash geometry of the external SPI flash behind the target.
const (
	// FlashPageSize is the program granularity of the flash
	FlashPageSize = 256

	// SectorSize is the smallest erase unit (4 KiB)
	SectorSize = 4096

	// BlockSize is the erase unit used by the ERASE command (64 KiB)
	BlockSize = 65536
)

// ChunkSize is the firmware payload size carried by one PROGRAM frame.
const ChunkSize = 128

// ChunksPerCommit is the number of chunks the device buffers before it
// commits a flash write (1024 bytes).
const ChunksPerCommit = 8

// ErasedByte is the value of erased flash, used for padding.
const ErasedByte = 0xFF

// Body sizes for commands that carry an address.
const (
	// AddressFieldSize is the size of the little-endian flash address
	AddressFieldSize = 4

	// EraseBodySize is ADDR(4) + BLOCKS(1)
	EraseBodySize = AddressFieldSize + 1

	// ProgramBodyPrefixSize is ADDR(4) + PAGES(1), followed by data
	ProgramBodyPrefixSize = AddressFieldSize + 1

	// ReadHeaderBodySize is ADDR(4)
	ReadHeaderBodySize = AddressFieldSize
)
