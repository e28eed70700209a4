package firmware

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind selects the flash region and header format of an image.
type Kind int

const (
	// Primary is the main application image, written at 0x00280000 behind a
	// 32-byte type A header.
	Primary Kind = iota

	// Secondary is the auxiliary image, written at 0x00300000 behind a
	// 256-byte type B config block.
	Secondary
)

// Flash layout of the target.
const (
	PrimaryBaseAddress   uint32 = 0x00280000
	SecondaryBaseAddress uint32 = 0x00300000
)

// BaseAddress returns the flash address the packaged image is written to.
func (k Kind) BaseAddress() uint32 {
	if k == Secondary {
		return SecondaryBaseAddress
	}
	return PrimaryBaseAddress
}

// HeaderSize returns the size of the header prepended to the raw image.
func (k Kind) HeaderSize() int {
	if k == Secondary {
		return ConfigBlockSize
	}
	return HeaderSize
}

// ImageAddress returns the flash address of the first raw image byte.
func (k Kind) ImageAddress() uint32 {
	return k.BaseAddress() + uint32(k.HeaderSize())
}

func (k Kind) String() string {
	switch k {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// ParseKind converts a config or command line value to a Kind.
// Accepts "primary"/"a" and "secondary"/"b", case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "a":
		return Primary, nil
	case "secondary", "b":
		return Secondary, nil
	default:
		return Primary, errors.Errorf("unknown firmware kind %q", s)
	}
}
