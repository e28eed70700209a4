package bootloader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/protocol"
	"github.com/pkg/errors"
)

// Programmer drives the erase, program and verify lifecycle of an OTA
// transfer over a Transport.
//
// Operations are serialised: a second call blocks until the first returns.
type Programmer struct {
	transport Transport
	config    Config

	inbound chan []byte
	dropped atomic.Int64

	mu sync.Mutex
}

// New creates a new Programmer with the given transport and options.
// It installs its receiver on the transport.
//
// Example:
//
//	prog := bootloader.New(transport,
//	    bootloader.WithProgressCallback(progressFunc),
//	    bootloader.WithVerifyTimeout(10*time.Second),
//	)
func New(transport Transport, opts ...Option) *Programmer {
	if transport == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Programmer{
		transport: transport,
		config:    cfg,
		inbound:   make(chan []byte, inboundQueueSize),
	}
	transport.SetReceiver(p.receive)
	return p
}

// Config returns the effective configuration.
func (p *Programmer) Config() Config {
	return p.config
}

// receive is the transport callback. It never blocks.
func (p *Programmer) receive(data []byte) {
	if len(data) == 0 {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case p.inbound <- buf:
	default:
		p.dropped.Add(1)
	}
}

// transfer is the state of one Program run. It is owned by the goroutine
// running Program and never shared.
type transfer struct {
	img   *firmware.Image
	dec   *protocol.Decoder
	state State
	start time.Time

	cursor     int
	pass       int
	gaps       int
	redirected bool
	sent       int
	reached    int

	// gapMark is the furthest page the device has reported missing;
	// stalled counts passes since it last advanced.
	gapMark int
	stalled int

	hasGap    bool
	lastGap   int
	lastGapAt time.Time

	meter rateMeter
}

// advance moves the cursor past the chunk just sent and records the
// furthest position reached.
func (t *transfer) advance() {
	t.cursor++
	n := t.cursor * protocol.ChunkSize
	if n > t.img.TotalLen {
		n = t.img.TotalLen
	}
	if n > t.reached {
		t.reached = n
	}
}

// bytesTransferred is the furthest position reached, in image bytes. It does
// not move back when a gap redirects the cursor.
func (t *transfer) bytesTransferred() int {
	return t.reached
}

// Program packages image for kind and transfers it. See ProgramImage.
//
// Example:
//
//	data, _ := firmware.FileSource("app.bin").Load()
//	err := prog.Program(ctx, data, firmware.Primary)
func (p *Programmer) Program(ctx context.Context, image []byte, kind firmware.Kind) error {
	img, err := firmware.Package(image, kind, firmware.WithVersion(p.config.FirmwareVersion))
	if err != nil {
		return errors.Wrap(err, "package firmware")
	}
	return p.ProgramImage(ctx, img)
}

// ProgramImage performs the complete transfer sequence:
//  1. Erase the blocks covering the image (a missing confirmation is not fatal)
//  2. Program every chunk, following gap reports until a pass has none
//  3. Read back the header and require a positive verification result
//  4. Reset the device (best effort)
//
// The operation can be cancelled via context; cancellation is reported as
// an error matching ErrCancelled and no frame is sent after it is observed.
func (p *Programmer) ProgramImage(ctx context.Context, img *firmware.Image) error {
	if img == nil || len(img.Chunks) == 0 {
		return errors.New("firmware image cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.drain()

	t := &transfer{
		img:   img,
		dec:   protocol.NewDecoder(),
		state: StateIdle,
		start: time.Now(),

		gapMark: -1,
	}
	t.meter = newRateMeter(t.start)

	p.logInfo("transfer started",
		"kind", img.Kind.String(),
		"base", fmt.Sprintf("0x%08X", img.Kind.BaseAddress()),
		"bytes", img.TotalLen,
		"chunks", len(img.Chunks),
	)

	err := p.run(ctx, t)
	if err != nil {
		failedIn := t.state
		t.state = StateFailed
		if errors.Is(err, ErrCancelled) {
			p.logInfo("transfer cancelled", "state", failedIn.String(), "page", t.cursor)
		} else {
			p.logError("transfer failed", "state", failedIn.String(), "error", err.Error())
		}
		return err
	}

	p.logInfo("transfer complete",
		"bytes", img.TotalLen,
		"passes", t.pass,
		"gaps", t.gaps,
		"elapsed", time.Since(t.start).String(),
	)
	return nil
}

func (p *Programmer) run(ctx context.Context, t *transfer) error {
	if err := p.erase(ctx, t); err != nil {
		return err
	}
	if err := p.program(ctx, t); err != nil {
		return err
	}
	if err := p.verify(ctx, t); err != nil {
		return err
	}

	t.state = StateSucceeded
	if err := p.send(ctx, t.state, protocol.BuildResetCmd(p.config.Header)); err != nil {
		p.logWarn("reset after verification failed", "error", err.Error())
	}

	p.report(t, 100, "Firmware update complete")
	return nil
}

// erase sends one ERASE frame for the whole image and waits for the
// phase-1 confirmation. Only the send itself can fail the transfer.
func (p *Programmer) erase(ctx context.Context, t *transfer) error {
	t.state = StateErasing
	blocks := t.img.EraseBlocks()
	base := t.img.Kind.BaseAddress()

	p.report(t, 0, fmt.Sprintf("Erasing %d blocks", blocks))
	p.logDebug("erase",
		"address", fmt.Sprintf("0x%08X", base),
		"blocks", blocks,
	)

	frame := protocol.BuildEraseCmd(p.config.Header, base, byte(blocks))
	if err := p.send(ctx, t.state, frame); err != nil {
		return err
	}

	in, err := p.await(ctx, t, p.config.EraseTimeout, isConfirmation(protocol.PhaseErase))
	switch {
	case errors.Is(err, ErrCancelled):
		return err
	case err != nil:
		p.logWarn("erase confirmation not received, continuing",
			"timeout", p.config.EraseTimeout.String())
	case !in.Confirmation.OK():
		p.logWarn("device reported erase failure, continuing",
			"status", protocol.StatusName(in.Confirmation.Status))
	default:
		p.logDebug("erase confirmed")
	}

	p.report(t, 10, "Erase complete")
	return nil
}

// program sends every chunk from the cursor to the end, then settles.
// A gap report moves the cursor back to the page the device expects and
// starts a new pass from there. Programming ends when a pass reaches the
// end and settles without a gap report.
func (p *Programmer) program(ctx context.Context, t *transfer) error {
	t.state = StateProgramming
	n := len(t.img.Chunks)

	for t.pass = 1; ; {
		for t.cursor < n {
			page := t.cursor
			frame := protocol.BuildProgramCmd(p.config.Header,
				t.img.ChunkAddress(page), uint16(page), t.img.Chunks[page])
			if err := p.send(ctx, t.state, frame); err != nil {
				return err
			}
			t.sent += protocol.ChunkSize
			t.advance()
			t.meter.update(time.Now(), t.sent)

			p.poll(t)
			p.reportChunk(t)

			if t.redirected {
				if err := p.nextPass(t); err != nil {
					return err
				}
			}
		}

		if err := p.settle(ctx, t); err != nil {
			return err
		}
		if !t.redirected {
			return nil
		}
		if err := p.nextPass(t); err != nil {
			return err
		}
	}
}

// nextPass starts another pass after a gap report. A report past the
// previous furthest gap is progress and resets the budget; MaxPasses bounds
// the passes that end in a gap at or before it.
func (p *Programmer) nextPass(t *transfer) error {
	t.redirected = false
	if t.lastGap > t.gapMark {
		t.gapMark = t.lastGap
		t.stalled = 1
	} else {
		if t.stalled >= p.config.MaxPasses {
			return &RetransmitExhaustedError{Passes: t.stalled, Page: t.lastGap}
		}
		t.stalled++
	}
	t.pass++
	p.logDebug("programming pass", "pass", t.pass, "from_page", t.cursor)
	return nil
}

// settle waits the settle interval while handling inbound messages.
func (p *Programmer) settle(ctx context.Context, t *transfer) error {
	if p.config.SettleInterval == 0 {
		p.poll(t)
		return nil
	}
	_, err := p.await(ctx, t, p.config.SettleInterval, nil)
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return nil
}

// verify asks the device to check the header at the base address. Success
// requires a positive phase-3 confirmation or a header reply that matches
// the image.
func (p *Programmer) verify(ctx context.Context, t *transfer) error {
	t.state = StateVerifying
	t.pass = 0
	p.report(t, 90, "Verifying firmware")

	frame := protocol.BuildReadHeaderCmd(p.config.Header, t.img.Kind.BaseAddress())
	if err := p.send(ctx, t.state, frame); err != nil {
		return err
	}

	in, err := p.await(ctx, t, p.config.VerifyTimeout, isVerifyResult)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return &VerificationError{
			Reason: fmt.Sprintf("no verification result within %s", p.config.VerifyTimeout),
		}
	}

	if c := in.Confirmation; c != nil {
		if !c.OK() {
			return &VerificationError{Reason: "device rejected the image"}
		}
		p.logDebug("verification confirmed")
		return nil
	}

	f := in.Frame
	if f.Result() != protocol.StatusSuccess {
		return &VerificationError{
			Reason: fmt.Sprintf("header read failed: %s", protocol.StatusName(f.Result())),
		}
	}
	h, err := firmware.ParseHeader(t.img.Kind, f.Body)
	if err != nil {
		return &VerificationError{Reason: err.Error()}
	}
	if !h.Matches(t.img.Raw) {
		return &VerificationError{
			Reason: fmt.Sprintf("header mismatch: device has %d bytes", h.Size),
		}
	}
	p.logDebug("verification header matches", "size", h.Size)
	return nil
}

// ReadUUID queries the device identifier.
func (p *Programmer) ReadUUID(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drain()

	t := &transfer{dec: protocol.NewDecoder()}
	if err := p.send(ctx, t.state, protocol.BuildGetUUIDCmd(p.config.Header)); err != nil {
		return nil, err
	}

	in, err := p.await(ctx, t, p.config.ResponseTimeout, isReply(protocol.CmdGetUUID))
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		return nil, &TimeoutError{Command: protocol.CmdGetUUID, Timeout: p.config.ResponseTimeout}
	}
	if in.Frame.Result() != protocol.StatusSuccess {
		return nil, &DeviceError{Command: protocol.CmdGetUUID, Result: in.Frame.Result()}
	}

	p.logDebug("device uuid", "uuid", fmt.Sprintf("% X", in.Frame.Body))
	return in.Frame.Body, nil
}

// Reset sends a RESET frame. The device reboots without replying.
func (p *Programmer) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.send(ctx, StateIdle, protocol.BuildResetCmd(p.config.Header))
}

// send writes one frame, retrying with a fixed backoff.
func (p *Programmer) send(ctx context.Context, state State, frame []byte) error {
	var err error
	for attempt := 1; attempt <= p.config.Retries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return &CancelledError{Err: cerr}
		}

		if err = p.transport.Send(ctx, frame); err == nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return &CancelledError{Err: cerr}
		}

		p.logWarn("send failed",
			"state", state.String(),
			"attempt", attempt,
			"error", err.Error(),
		)
		if attempt < p.config.Retries {
			if serr := sleep(ctx, p.config.RetryBackoff); serr != nil {
				return serr
			}
		}
	}

	return &SendError{
		State:    state,
		Command:  frameCommand(frame),
		Attempts: p.config.Retries,
		Err:      err,
	}
}

var errWaitTimeout = errors.New("wait timed out")

// await processes inbound messages until match accepts one, the timeout
// expires or ctx is done. Messages not accepted by match are handled as
// usual. A nil match waits for the full timeout.
func (p *Programmer) await(ctx context.Context, t *transfer, timeout time.Duration, match func(protocol.Inbound) bool) (protocol.Inbound, error) {
	if in, ok := p.dispatchPending(t, match); ok {
		return in, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return protocol.Inbound{}, &CancelledError{Err: ctx.Err()}
		case <-timer.C:
			return protocol.Inbound{}, errWaitTimeout
		case data := <-p.inbound:
			if in, ok := p.dispatch(t, data, match); ok {
				return in, nil
			}
		}
	}
}

// poll handles every buffered inbound message without blocking.
func (p *Programmer) poll(t *transfer) {
	p.dispatchPending(t, nil)
}

func (p *Programmer) dispatchPending(t *transfer, match func(protocol.Inbound) bool) (protocol.Inbound, bool) {
	for {
		select {
		case data := <-p.inbound:
			if in, ok := p.dispatch(t, data, match); ok {
				return in, true
			}
		default:
			return protocol.Inbound{}, false
		}
	}
}

// dispatch decodes data and hands each message to match or handle. Messages
// decoded after a match are still handled.
func (p *Programmer) dispatch(t *transfer, data []byte, match func(protocol.Inbound) bool) (protocol.Inbound, bool) {
	var (
		matched protocol.Inbound
		ok      bool
	)
	for _, in := range t.dec.Feed(data) {
		if !ok && match != nil && match(in) {
			matched, ok = in, true
			continue
		}
		p.handle(t, in)
	}
	return matched, ok
}

// handle processes an inbound message nobody is waiting for.
func (p *Programmer) handle(t *transfer, in protocol.Inbound) {
	if in.Frame != nil {
		p.logDebug("unsolicited frame",
			"command", in.Frame.Command.String(),
			"result", in.Frame.Result(),
		)
		return
	}

	c := in.Confirmation
	switch c.Phase {
	case protocol.PhasePacketLoss:
		p.onGap(t, int(c.Page))
	case protocol.PhaseProgram:
		p.logDebug("program confirmation", "status", protocol.StatusName(c.Status), "page", t.cursor)
	default:
		p.logDebug("unexpected confirmation",
			"phase", c.Phase.String(),
			"status", protocol.StatusName(c.Status),
			"state", t.state.String(),
		)
	}
}

// onGap redirects the send cursor to the page the device expects.
func (p *Programmer) onGap(t *transfer, page int) {
	if t.state != StateProgramming {
		p.logDebug("gap report outside programming ignored", "page", page, "state", t.state.String())
		return
	}
	if page < 0 || page >= len(t.img.Chunks) {
		p.logWarn("gap report for unknown page ignored", "page", page, "chunks", len(t.img.Chunks))
		return
	}

	now := time.Now()
	if t.hasGap && page == t.lastGap && now.Sub(t.lastGapAt) < p.config.DuplicateGapWindow {
		p.logDebug("duplicate gap report ignored", "page", page)
		return
	}

	t.hasGap = true
	t.lastGap = page
	t.lastGapAt = now
	t.gaps++
	t.redirected = true

	p.logInfo("packet loss detected, resending",
		"expected_page", page,
		"cursor", t.cursor,
		"pass", t.pass,
	)
	t.cursor = page
}

// drain discards deliveries left over from a previous operation.
func (p *Programmer) drain() {
	for {
		select {
		case <-p.inbound:
		default:
			if n := p.dropped.Swap(0); n > 0 {
				p.logWarn("inbound deliveries dropped", "count", n)
			}
			return
		}
	}
}

func isConfirmation(phase protocol.Phase) func(protocol.Inbound) bool {
	return func(in protocol.Inbound) bool {
		return in.Confirmation != nil && in.Confirmation.Phase == phase
	}
}

func isReply(cmd protocol.Command) func(protocol.Inbound) bool {
	return func(in protocol.Inbound) bool {
		return in.Frame != nil && in.Frame.Command == cmd
	}
}

func isVerifyResult(in protocol.Inbound) bool {
	return isConfirmation(protocol.PhaseVerify)(in) || isReply(protocol.CmdReadHeader)(in)
}

// frameCommand extracts the command byte of an encoded frame for error reports.
func frameCommand(frame []byte) protocol.Command {
	i := protocol.HeaderSize + 2*protocol.AddressSize + 1
	if len(frame) <= i {
		return 0
	}
	return protocol.Command(frame[i])
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return &CancelledError{Err: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

// reportChunk publishes progress after a chunk send.
func (p *Programmer) reportChunk(t *transfer) {
	done := t.bytesTransferred()
	pct := 10 + 80*float64(done)/float64(t.img.TotalLen)
	p.report(t, pct, fmt.Sprintf("Programming page %d/%d", t.cursor, len(t.img.Chunks)))
}

// report calls the progress callback if configured.
func (p *Programmer) report(t *transfer, pct float64, msg string) {
	if p.config.ProgressCallback == nil {
		return
	}

	done := t.bytesTransferred()
	switch t.state {
	case StateErasing:
		done = 0
	case StateVerifying, StateSucceeded:
		done = t.img.TotalLen
	}

	p.config.ProgressCallback(Progress{
		State:            t.state,
		Message:          msg,
		CurrentPage:      t.cursor,
		TotalPages:       len(t.img.Chunks),
		Pass:             t.pass,
		Percentage:       pct,
		BytesTransferred: done,
		BytesTotal:       t.img.TotalLen,
		BytesPerSecond:   t.meter.rate(),
		ElapsedTime:      time.Since(t.start),
	})
}

// logDebug logs a debug message if a logger is configured.
func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if a logger is configured.
func (p *Programmer) logWarn(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
