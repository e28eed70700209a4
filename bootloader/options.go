package bootloader

import (
	"time"

	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/protocol"
)

// Config holds the programmer configuration.
type Config struct {
	// ProgressCallback is called during programming to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Retries is the number of attempts made for every frame send
	Retries int

	// RetryBackoff is the fixed delay between send attempts
	RetryBackoff time.Duration

	// EraseTimeout bounds the wait for the erase confirmation
	EraseTimeout time.Duration

	// VerifyTimeout bounds the wait for the verification result
	VerifyTimeout time.Duration

	// ResponseTimeout bounds the wait for a reply frame (GET_UUID)
	ResponseTimeout time.Duration

	// SettleInterval is the wait after each programming pass during
	// which the device may report gaps
	SettleInterval time.Duration

	// DuplicateGapWindow suppresses repeated gap reports for the same page
	DuplicateGapWindow time.Duration

	// MaxPasses bounds the consecutive passes that end in a gap report no
	// further than the furthest one seen so far
	MaxPasses int

	// Header holds the addressing and sequence tag of every frame
	Header protocol.Header

	// FirmwareVersion is written into type A headers
	FirmwareVersion uint32
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Retries:            3,
		RetryBackoff:       100 * time.Millisecond,
		EraseTimeout:       15 * time.Second,
		VerifyTimeout:      5 * time.Second,
		ResponseTimeout:    5 * time.Second,
		SettleInterval:     time.Second,
		DuplicateGapWindow: time.Second,
		MaxPasses:          32,
		Header:             protocol.DefaultHeader(),
		FirmwareVersion:    firmware.DefaultVersion,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithProgressCallback sets a callback function to track programming progress.
//
// Example:
//
//	prog := bootloader.New(transport,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the programmer operations.
//
// Example:
//
//	prog := bootloader.New(transport, bootloader.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRetries sets the number of attempts for each frame send.
// Values below 1 are ignored.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 1 {
			c.Retries = retries
		}
	}
}

// WithRetryBackoff sets the delay between send attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.RetryBackoff = d
		}
	}
}

// WithEraseTimeout sets how long to wait for the erase confirmation.
// A missing confirmation is logged and the transfer proceeds.
func WithEraseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.EraseTimeout = d
		}
	}
}

// WithVerifyTimeout sets how long to wait for the verification result.
//
// Example:
//
//	prog := bootloader.New(transport, bootloader.WithVerifyTimeout(10*time.Second))
func WithVerifyTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.VerifyTimeout = d
		}
	}
}

// WithResponseTimeout sets how long to wait for reply frames.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResponseTimeout = d
		}
	}
}

// WithTimeout sets the erase, verify and response timeouts at once.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.EraseTimeout = d
			c.VerifyTimeout = d
			c.ResponseTimeout = d
		}
	}
}

// WithSettleInterval sets the wait after each programming pass.
func WithSettleInterval(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleInterval = d
		}
	}
}

// WithDuplicateGapWindow sets the window in which a repeated gap report for
// the same page is ignored. Zero disables suppression.
func WithDuplicateGapWindow(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.DuplicateGapWindow = d
		}
	}
}

// WithMaxPasses bounds the consecutive programming passes that make no
// progress past the furthest reported gap.
func WithMaxPasses(n int) Option {
	return func(c *Config) {
		if n >= 1 {
			c.MaxPasses = n
		}
	}
}

// WithHeader sets the frame addressing and sequence tag.
//
// Example:
//
//	h := protocol.DefaultHeader()
//	h.Sequence = 0x02
//	prog := bootloader.New(transport, bootloader.WithHeader(h))
func WithHeader(h protocol.Header) Option {
	return func(c *Config) {
		c.Header = h
	}
}

// WithFirmwareVersion sets the version written into type A headers.
func WithFirmwareVersion(v uint32) Option {
	return func(c *Config) {
		c.FirmwareVersion = v
	}
}
