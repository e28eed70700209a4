package firmware

import (
	"encoding/binary"

	"github.com/moffa90/go-otaflash/protocol"
	"github.com/pkg/errors"
)

// Header layout constants.
const (
	// Magic identifies a type A header.
	Magic uint32 = 0x12345678

	// DefaultVersion is written into the type A version field.
	DefaultVersion uint32 = 1

	// HeaderSize is the size of a type A header.
	HeaderSize = 32

	// ConfigBlockSize is the size of a type B config block.
	ConfigBlockSize = 256

	// UpdateFlag marks a type A image as pending installation.
	UpdateFlag byte = 0x01

	// configBlockFieldsSize covers crc16(2) + size(4).
	configBlockFieldsSize = 6
)

// Header is a firmware header read back from the device.
//
// For Primary images all type A fields are populated. For Secondary images
// only Size and CRC16 are meaningful.
type Header struct {
	Kind       Kind
	Magic      uint32
	Version    uint32
	Size       uint32
	CRC32      uint32
	CRC16      uint16
	UpdateFlag byte
}

// BuildHeader returns the 32-byte type A header for image:
//
//	[MAGIC(4)][VERSION(4)][SIZE(4)][CRC32(4)][FLAG(1)][PAD(3)][RESERVED(12)]
//
// All integers are little-endian; pad and reserved bytes are zero.
func BuildHeader(image []byte, version uint32) []byte {
	h := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], Magic)
	binary.LittleEndian.PutUint32(h[4:8], version)
	binary.LittleEndian.PutUint32(h[8:12], uint32(len(image)))
	binary.LittleEndian.PutUint32(h[12:16], protocol.CRC32(image))
	h[16] = UpdateFlag
	return h
}

// BuildConfigBlock returns the 256-byte type B config block for image:
//
//	[CRC16(2)][SIZE(4)][0xFF...]
//
// CRC16 is CRC-16/XMODEM over the raw image. Integers are little-endian.
func BuildConfigBlock(image []byte) []byte {
	b := make([]byte, ConfigBlockSize)
	for i := range b {
		b[i] = protocol.ErasedByte
	}
	binary.LittleEndian.PutUint16(b[0:2], protocol.CRC16XModem(image))
	binary.LittleEndian.PutUint32(b[2:6], uint32(len(image)))
	return b
}

// ParseHeader decodes a header of the given kind from b.
func ParseHeader(kind Kind, b []byte) (*Header, error) {
	if kind == Secondary {
		if len(b) < configBlockFieldsSize {
			return nil, errors.Errorf("config block too short: got %d bytes, need %d", len(b), configBlockFieldsSize)
		}
		return &Header{
			Kind:  Secondary,
			CRC16: binary.LittleEndian.Uint16(b[0:2]),
			Size:  binary.LittleEndian.Uint32(b[2:6]),
		}, nil
	}

	if len(b) < HeaderSize {
		return nil, errors.Errorf("header too short: got %d bytes, need %d", len(b), HeaderSize)
	}
	h := &Header{
		Kind:       Primary,
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		Size:       binary.LittleEndian.Uint32(b[8:12]),
		CRC32:      binary.LittleEndian.Uint32(b[12:16]),
		UpdateFlag: b[16],
	}
	if h.Magic != Magic {
		return nil, errors.Errorf("bad header magic 0x%08X", h.Magic)
	}
	return h, nil
}

// Matches reports whether h describes image.
func (h *Header) Matches(image []byte) bool {
	if h.Size != uint32(len(image)) {
		return false
	}
	if h.Kind == Secondary {
		return h.CRC16 == protocol.CRC16XModem(image)
	}
	return h.Magic == Magic && h.CRC32 == protocol.CRC32(image)
}
