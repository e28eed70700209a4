// Package ble carries OTA frames over a GATT write characteristic and
// receives device output from a notify characteristic.
package ble

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Characteristic is the writable side of the link.
// bluetooth.DeviceCharacteristic satisfies it.
type Characteristic interface {
	Write(p []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
}

// Link implements bootloader.Transport over BLE.
type Link struct {
	char Characteristic
	opts Options

	writeMu sync.Mutex

	recvMu sync.RWMutex
	recv   func([]byte)

	close func() error
}

// Options controls how frames are written.
type Options struct {
	// WithResponse uses acknowledged writes instead of write commands
	WithResponse bool

	// WriteSize splits frames into writes of at most this many bytes.
	// Zero writes each frame at once; the link MTU must then fit a frame.
	WriteSize int
}

// NewLink wraps a write characteristic. Device output must be passed to
// Notify.
func NewLink(char Characteristic, opts Options) *Link {
	if char == nil {
		panic("characteristic cannot be nil")
	}
	return &Link{char: char, opts: opts}
}

// SetReceiver installs the function that receives device output.
func (l *Link) SetReceiver(fn func(data []byte)) {
	l.recvMu.Lock()
	defer l.recvMu.Unlock()
	l.recv = fn
}

// Notify forwards a notification value to the receiver.
func (l *Link) Notify(value []byte) {
	l.recvMu.RLock()
	fn := l.recv
	l.recvMu.RUnlock()

	if fn != nil && len(value) > 0 {
		fn(value)
	}
}

// Send writes frame, split into WriteSize pieces. Once the first piece is
// written the rest of the frame follows regardless of ctx.
func (l *Link) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	for _, piece := range split(frame, l.opts.WriteSize) {
		if err := l.write(piece); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) write(p []byte) error {
	var (
		n   int
		err error
	)
	if l.opts.WithResponse {
		n, err = l.char.Write(p)
	} else {
		n, err = l.char.WriteWithoutResponse(p)
	}
	if err != nil {
		return errors.Wrap(err, "ble write")
	}
	if n != len(p) {
		return errors.Errorf("ble write: short write %d of %d bytes", n, len(p))
	}
	return nil
}

// Close disconnects a link created by Dial.
func (l *Link) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

func split(frame []byte, size int) [][]byte {
	if size <= 0 || len(frame) <= size {
		return [][]byte{frame}
	}
	pieces := make([][]byte, 0, (len(frame)+size-1)/size)
	for start := 0; start < len(frame); start += size {
		end := start + size
		if end > len(frame) {
			end = len(frame)
		}
		pieces = append(pieces, frame[start:end])
	}
	return pieces
}
