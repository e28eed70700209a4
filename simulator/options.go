package simulator

import "time"

type config struct {
	latency      time.Duration
	sendFailures int
	drops        map[int]int
	silentErase  bool
	eraseFailure bool
	verifyMode   VerifyMode
	repeatGaps   bool
	fragmented   bool
	corrupt      bool
	corruptAt    uint32
	uuid         []byte
}

func defaultConfig() config {
	return config{
		drops: make(map[int]int),
		uuid:  DefaultUUID,
	}
}

// Option configures a Device.
type Option func(*config)

// WithLatency delays every Send by d.
func WithLatency(d time.Duration) Option {
	return func(c *config) {
		c.latency = d
	}
}

// WithSendFailures makes the next n Send calls fail with ErrLinkDown.
func WithSendFailures(n int) Option {
	return func(c *config) {
		c.sendFailures = n
	}
}

// WithDroppedPage silently loses the PROGRAM frame for page the first
// times it arrives.
func WithDroppedPage(page, times int) Option {
	return func(c *config) {
		c.drops[page] += times
	}
}

// WithSilentErase suppresses the erase confirmation.
func WithSilentErase() Option {
	return func(c *config) {
		c.silentErase = true
	}
}

// WithEraseFailure reports a failed erase. Flash is erased anyway.
func WithEraseFailure() Option {
	return func(c *config) {
		c.eraseFailure = true
	}
}

// WithVerifyMode selects how READ_HEADER is answered.
func WithVerifyMode(m VerifyMode) Option {
	return func(c *config) {
		c.verifyMode = m
	}
}

// WithRepeatedGaps makes the device send each packet-loss report a second
// time right after the missing page arrives.
func WithRepeatedGaps() Option {
	return func(c *config) {
		c.repeatGaps = true
	}
}

// WithFragmentedDelivery delivers device output one byte at a time.
func WithFragmentedDelivery() Option {
	return func(c *config) {
		c.fragmented = true
	}
}

// WithCorruptWrite flips the first byte of every write to addr.
func WithCorruptWrite(addr uint32) Option {
	return func(c *config) {
		c.corrupt = true
		c.corruptAt = addr
	}
}

// WithUUID sets the identifier returned for GET_UUID.
func WithUUID(uuid []byte) Option {
	return func(c *config) {
		c.uuid = append([]byte{}, uuid...)
	}
}
