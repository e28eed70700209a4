package firmware

import (
	"github.com/moffa90/go-otaflash/protocol"
	"github.com/pkg/errors"
)

// MaxImageSize is the largest raw image the target accepts.
const MaxImageSize = 1 << 20

var (
	// ErrImageEmpty is returned when packaging a zero-length image.
	ErrImageEmpty = errors.New("firmware image is empty")

	// ErrImageTooLarge is returned when an image exceeds MaxImageSize.
	ErrImageTooLarge = errors.New("firmware image exceeds 1 MiB")
)

// Image is a packaged firmware image ready for transfer.
type Image struct {
	// Kind selects the base address and header format.
	Kind Kind

	// Raw is the unmodified firmware image.
	Raw []byte

	// Header is the type A header or type B config block prepended to Raw.
	Header []byte

	// Chunks holds header ‖ image split into ChunkSize pieces. The last data
	// chunk is padded with 0xFF and the count is padded with all-0xFF chunks
	// to a multiple of ChunksPerCommit.
	Chunks [][]byte

	// TotalLen is len(Header) + len(Raw), without padding.
	TotalLen int
}

type packageConfig struct {
	version uint32
}

// Option configures Package.
type Option func(*packageConfig)

// WithVersion sets the type A header version field. Default is 1.
func WithVersion(v uint32) Option {
	return func(c *packageConfig) {
		c.version = v
	}
}

// Package builds the header for image, prepends it and splits the result
// into padded chunks. The output depends only on its inputs.
//
// Example:
//
//	img, err := firmware.Package(data, firmware.Primary)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d chunks, %d bytes\n", len(img.Chunks), img.TotalLen)
func Package(image []byte, kind Kind, opts ...Option) (*Image, error) {
	if len(image) == 0 {
		return nil, ErrImageEmpty
	}
	if len(image) > MaxImageSize {
		return nil, errors.Wrapf(ErrImageTooLarge, "%d bytes", len(image))
	}

	cfg := packageConfig{version: DefaultVersion}
	for _, opt := range opts {
		opt(&cfg)
	}

	var header []byte
	if kind == Secondary {
		header = BuildConfigBlock(image)
	} else {
		header = BuildHeader(image, cfg.version)
	}

	data := make([]byte, 0, len(header)+len(image))
	data = append(data, header...)
	data = append(data, image...)

	raw := make([]byte, len(image))
	copy(raw, image)

	return &Image{
		Kind:     kind,
		Raw:      raw,
		Header:   header,
		Chunks:   split(data),
		TotalLen: len(data),
	}, nil
}

// split cuts data into ChunkSize chunks padded to a multiple of ChunksPerCommit.
func split(data []byte) [][]byte {
	n := (len(data) + protocol.ChunkSize - 1) / protocol.ChunkSize
	if rem := n % protocol.ChunksPerCommit; rem != 0 {
		n += protocol.ChunksPerCommit - rem
	}

	chunks := make([][]byte, n)
	for i := range chunks {
		c := make([]byte, protocol.ChunkSize)
		off := i * protocol.ChunkSize
		copied := 0
		if off < len(data) {
			copied = copy(c, data[off:])
		}
		for j := copied; j < len(c); j++ {
			c[j] = protocol.ErasedByte
		}
		chunks[i] = c
	}
	return chunks
}

// ChunkAddress returns the flash address of chunk i.
func (img *Image) ChunkAddress(i int) uint32 {
	return img.Kind.BaseAddress() + uint32(i*protocol.ChunkSize)
}

// EraseBlocks returns the number of 64 KiB blocks to erase before writing img.
func (img *Image) EraseBlocks() int {
	return EraseBlocks(img.TotalLen)
}

// EraseBlocks returns the number of erase blocks covering totalLen bytes:
// the length is rounded up to whole 4 KiB sectors, then to whole 64 KiB blocks.
func EraseBlocks(totalLen int) int {
	sectors := (totalLen + protocol.SectorSize - 1) / protocol.SectorSize
	return (sectors*protocol.SectorSize + protocol.BlockSize - 1) / protocol.BlockSize
}
