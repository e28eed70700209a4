package session

import "github.com/moffa90/go-otaflash/bootloader"

// Config holds the controller configuration.
type Config struct {
	// Logger receives controller and programmer logs (optional)
	Logger bootloader.Logger

	// ProgrammerOptions are applied to the Programmer of every session
	ProgrammerOptions []bootloader.Option

	// EventQueueSize bounds the progress events waiting for the dispatcher.
	// Events that do not fit are dropped.
	EventQueueSize int
}

func defaultConfig() Config {
	return Config{
		EventQueueSize: 64,
	}
}

// Option is a functional option for configuring the Controller.
type Option func(*Config)

// WithLogger sets the logger shared by the controller and its programmers.
func WithLogger(logger bootloader.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithProgrammerOptions appends options for the per-session Programmer.
//
// Example:
//
//	ctrl := session.New(link,
//	    session.WithProgrammerOptions(
//	        bootloader.WithRetries(5),
//	        bootloader.WithMaxPasses(16),
//	    ),
//	)
func WithProgrammerOptions(opts ...bootloader.Option) Option {
	return func(c *Config) {
		c.ProgrammerOptions = append(c.ProgrammerOptions, opts...)
	}
}

// WithEventQueueSize sets the progress queue length. Values below 1 are ignored.
func WithEventQueueSize(n int) Option {
	return func(c *Config) {
		if n >= 1 {
			c.EventQueueSize = n
		}
	}
}
