package simulator

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/protocol"
	"github.com/pkg/errors"
)

// ErrLinkDown is returned by Send while injected send failures remain.
var ErrLinkDown = errors.New("simulated link failure")

// VerifyMode selects how the device answers READ_HEADER.
type VerifyMode int

const (
	// VerifyConfirm answers with a phase-3 confirmation.
	VerifyConfirm VerifyMode = iota

	// VerifyHeaderReply answers with a full frame carrying the stored header.
	VerifyHeaderReply

	// VerifySilent does not answer.
	VerifySilent
)

// Device is an in-process OTA target. It implements the bootloader
// Transport interface: frames passed to Send are decoded and answered
// through the receiver, the way the real bootloader answers over BLE.
//
// The device tracks the next page it expects. A PROGRAM frame for a later
// page is discarded and answered with a single packet-loss report carrying
// the expected page. Frames for earlier pages overwrite flash silently.
type Device struct {
	mu       sync.Mutex
	receiver func([]byte)
	cfg      config

	flash    map[uint32][]byte
	expected int
	gapSent  bool
	lastGap  int
	stale    bool

	sent     []protocol.Frame
	attempts int
	resets   int
}

// New creates a Device with blank (erased) flash.
func New(opts ...Option) *Device {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Device{
		cfg:     cfg,
		flash:   make(map[uint32][]byte),
		lastGap: -1,
	}
}

// SetReceiver installs the callback that receives device output.
func (d *Device) SetReceiver(fn func(data []byte)) {
	d.mu.Lock()
	d.receiver = fn
	d.mu.Unlock()
}

// Send delivers one frame to the device.
func (d *Device) Send(ctx context.Context, frame []byte) error {
	if d.cfg.latency > 0 {
		timer := time.NewTimer(d.cfg.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	d.attempts++
	if d.cfg.sendFailures > 0 {
		d.cfg.sendFailures--
		d.mu.Unlock()
		return ErrLinkDown
	}

	f, err := protocol.ParseFrame(frame)
	if err != nil {
		d.mu.Unlock()
		return nil
	}
	d.sent = append(d.sent, *f)

	replies := d.handle(f)
	fn := d.receiver
	d.mu.Unlock()

	if fn == nil {
		return nil
	}
	for _, r := range replies {
		if d.cfg.fragmented {
			for i := range r {
				fn(r[i : i+1])
			}
			continue
		}
		fn(r)
	}
	return nil
}

func (d *Device) handle(f *protocol.Frame) [][]byte {
	req, err := protocol.ParseRequest(f)
	if err != nil {
		return nil
	}

	switch f.Command {
	case protocol.CmdErase:
		return d.erase(req)
	case protocol.CmdProgram:
		return d.program(f.PageNumber, req)
	case protocol.CmdReadHeader:
		return d.readHeader(f, req)
	case protocol.CmdReset:
		d.resets++
		return nil
	case protocol.CmdGetUUID:
		return [][]byte{protocol.BuildReplyFrame(replyHeader(f), protocol.CmdGetUUID,
			protocol.StatusSuccess, 1, d.cfg.uuid)}
	default:
		return nil
	}
}

func (d *Device) erase(req *protocol.Request) [][]byte {
	start := req.Address
	end := start + uint32(req.BlockCount)*protocol.BlockSize
	for addr := range d.flash {
		if addr >= start && addr < end {
			delete(d.flash, addr)
		}
	}
	d.expected = 0
	d.gapSent = false
	d.lastGap = -1
	d.stale = false

	if d.cfg.silentErase {
		return nil
	}
	status := byte(protocol.StatusSuccess)
	if d.cfg.eraseFailure {
		status = protocol.StatusFailure
	}
	return [][]byte{protocol.BuildConfirmation(protocol.PhaseErase, status)}
}

func (d *Device) program(page uint16, req *protocol.Request) [][]byte {
	p := int(page)
	if n := d.cfg.drops[p]; n > 0 {
		d.cfg.drops[p] = n - 1
		return nil
	}

	switch {
	case p > d.expected:
		if d.gapSent {
			return nil
		}
		d.gapSent = true
		d.lastGap = d.expected
		d.stale = d.cfg.repeatGaps
		return [][]byte{protocol.BuildPacketLoss(uint16(d.expected))}
	case p < d.expected:
		d.store(req.Address, req.Data)
		return nil
	}

	d.store(req.Address, req.Data)
	d.expected++
	d.gapSent = false

	var out [][]byte
	if d.stale && p == d.lastGap {
		d.stale = false
		out = append(out, protocol.BuildPacketLoss(uint16(p)))
	}
	if d.expected%protocol.ChunksPerCommit == 0 {
		out = append(out, protocol.BuildConfirmation(protocol.PhaseProgram, protocol.StatusSuccess))
	}
	return out
}

func (d *Device) store(addr uint32, data []byte) {
	if d.cfg.corrupt && addr == d.cfg.corruptAt {
		data = append([]byte{}, data...)
		data[0] ^= 0xFF
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	d.flash[addr] = buf
}

func (d *Device) readHeader(f *protocol.Frame, req *protocol.Request) [][]byte {
	kind := firmware.Primary
	if req.Address == firmware.SecondaryBaseAddress {
		kind = firmware.Secondary
	}
	ok := d.verify(kind, req.Address)

	switch d.cfg.verifyMode {
	case VerifySilent:
		return nil
	case VerifyHeaderReply:
		header := d.read(req.Address, firmware.HeaderSize)
		return [][]byte{protocol.BuildReplyFrame(replyHeader(f), protocol.CmdReadHeader,
			protocol.StatusSuccess, 1, header)}
	}

	status := byte(protocol.StatusSuccess)
	if !ok {
		status = protocol.StatusFailure
	}
	return [][]byte{protocol.BuildConfirmation(protocol.PhaseVerify, status)}
}

// verify checks the stored image against its stored header.
func (d *Device) verify(kind firmware.Kind, base uint32) bool {
	raw := d.read(base, kind.HeaderSize())
	h, err := firmware.ParseHeader(kind, raw)
	if err != nil || h.Size == 0 || h.Size > firmware.MaxImageSize {
		return false
	}
	image := d.read(base+uint32(kind.HeaderSize()), int(h.Size))
	return h.Matches(image)
}

// read returns n bytes of flash at addr. Unwritten bytes read as 0xFF.
func (d *Device) read(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		a := addr + uint32(i)
		chunk, ok := d.flash[a&^uint32(protocol.ChunkSize-1)]
		if !ok {
			out[i] = protocol.ErasedByte
			continue
		}
		off := int(a & uint32(protocol.ChunkSize-1))
		if off < len(chunk) {
			out[i] = chunk[off]
		} else {
			out[i] = protocol.ErasedByte
		}
	}
	return out
}

func replyHeader(f *protocol.Frame) protocol.Header {
	return protocol.Header{
		Source:   f.Target,
		Target:   f.Source,
		Sequence: f.Sequence,
	}
}

// Image returns the raw image stored for kind, as described by its header.
func (d *Device) Image(kind firmware.Kind) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	base := kind.BaseAddress()
	h, err := firmware.ParseHeader(kind, d.read(base, kind.HeaderSize()))
	if err != nil {
		return nil, err
	}
	if h.Size > firmware.MaxImageSize {
		return nil, errors.Errorf("stored size %d out of range", h.Size)
	}
	return d.read(base+uint32(kind.HeaderSize()), int(h.Size)), nil
}

// Frames returns every frame the device accepted, in order.
func (d *Device) Frames() []protocol.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]protocol.Frame, len(d.sent))
	copy(out, d.sent)
	return out
}

// Count returns how many frames with cmd the device accepted.
func (d *Device) Count(cmd protocol.Command) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, f := range d.sent {
		if f.Command == cmd {
			n++
		}
	}
	return n
}

// Pages returns the page numbers of all PROGRAM frames in arrival order,
// including dropped ones.
func (d *Device) Pages() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var pages []int
	for _, f := range d.sent {
		if f.Command == protocol.CmdProgram {
			pages = append(pages, int(f.PageNumber))
		}
	}
	return pages
}

// Attempts returns the number of Send calls, failed ones included.
func (d *Device) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Resets returns the number of RESET frames received.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// Expected returns the next page the device expects.
func (d *Device) Expected() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expected
}

// UUID returns the identifier the device reports.
func (d *Device) UUID() []byte {
	return append([]byte{}, d.cfg.uuid...)
}

// DefaultUUID is reported by devices created without WithUUID.
var DefaultUUID = func() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, 0x0123456789ABCDEF)
	return b
}()
