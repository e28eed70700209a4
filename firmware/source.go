package firmware

import (
	"os"

	"github.com/pkg/errors"
)

// Source supplies the raw firmware image.
type Source interface {
	Load() ([]byte, error)
}

// FileSource loads an image from a path on disk.
type FileSource string

// Load reads the whole file.
func (f FileSource) Load() ([]byte, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, errors.Wrapf(err, "read firmware %s", string(f))
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrImageEmpty, "%s", string(f))
	}
	return data, nil
}

// BytesSource serves an image already in memory.
type BytesSource []byte

// Load returns a copy of the image.
func (b BytesSource) Load() ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrImageEmpty
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
