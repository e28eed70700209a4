// Package serial carries OTA frames over a UART.
package serial

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is the rate the bootloader UART starts at.
const DefaultBaudRate = 460800

const (
	readBufferSize = 512
	readTimeout    = 100 * time.Millisecond
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("serial port closed")

// Port implements bootloader.Transport over a byte stream. A reader
// goroutine forwards every read to the receiver.
type Port struct {
	conn io.ReadWriteCloser

	writeMu sync.Mutex

	recvMu sync.RWMutex
	recv   func([]byte)

	closed  atomic.Bool
	readErr atomic.Value
	done    chan struct{}
}

// New starts reading conn. Reads returning (0, nil) are treated as timeouts.
func New(conn io.ReadWriteCloser) *Port {
	if conn == nil {
		panic("conn cannot be nil")
	}
	p := &Port{
		conn: conn,
		done: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// Open opens the named port at baud (DefaultBaudRate when zero), 8N1.
func Open(name string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", name)
	}
	_ = port.ResetInputBuffer()
	return New(port), nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return ports, nil
}

// SetReceiver installs the function that receives device output.
func (p *Port) SetReceiver(fn func(data []byte)) {
	p.recvMu.Lock()
	defer p.recvMu.Unlock()
	p.recv = fn
}

// Send writes frame in full.
func (p *Port) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed.Load() {
		return ErrClosed
	}
	if err, ok := p.readErr.Load().(error); ok {
		return errors.Wrap(err, "serial read failed")
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	for written := 0; written < len(frame); {
		n, err := p.conn.Write(frame[written:])
		if err != nil {
			return errors.Wrap(err, "serial write")
		}
		if n == 0 {
			return errors.New("serial write: no progress")
		}
		written += n
	}
	return nil
}

// Close stops the reader and closes the port.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	err := p.conn.Close()
	<-p.done
	return err
}

func (p *Port) readLoop() {
	defer close(p.done)

	buf := make([]byte, readBufferSize)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			p.deliver(buf[:n])
		}
		if err != nil {
			if !p.closed.Load() {
				p.readErr.Store(err)
			}
			return
		}
		if p.closed.Load() {
			return
		}
	}
}

func (p *Port) deliver(data []byte) {
	p.recvMu.RLock()
	fn := p.recv
	p.recvMu.RUnlock()

	if fn != nil {
		fn(data)
	}
}
