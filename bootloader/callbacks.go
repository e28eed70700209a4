package bootloader

import "time"

// State is the lifecycle state of a transfer.
type State int

const (
	StateIdle State = iota
	StateErasing
	StateProgramming
	StateVerifying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateErasing:
		return "erasing"
	case StateProgramming:
		return "programming"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress contains information about the transfer progress.
// Passed to ProgressCallback during programming operations.
type Progress struct {
	// State is the current transfer state
	State State

	// Message is a human-readable description of the current step
	Message string

	// CurrentPage is the next chunk index to be sent. It moves back when the
	// device reports a gap.
	CurrentPage int

	// TotalPages is the number of chunks in the packaged image
	TotalPages int

	// Pass is the current programming pass (1-based, 0 outside programming)
	Pass int

	// Percentage is the completion percentage (0.0 to 100.0):
	// erase takes 0-10, programming 10-90, verification 90-100
	Percentage float64

	// BytesTransferred is the furthest position sent so far. It does not move
	// back after a gap.
	BytesTransferred int

	// BytesTotal is the header plus image length
	BytesTotal int

	// BytesPerSecond is the measured send rate, 0 until the first sample
	BytesPerSecond float64

	// ElapsedTime is the time elapsed since the transfer started
	ElapsedTime time.Duration
}

// ProgressCallback is called during a transfer to report progress.
// It runs on the transfer goroutine; implementations must return quickly
// and must not call back into the Programmer.
//
// Example:
//
//	prog := bootloader.New(transport,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%% - page %d/%d\n",
//	            p.State, p.Percentage, p.CurrentPage, p.TotalPages)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the programmer.
// This allows integration with any logging framework.
//
// Example adapting logrus:
//
//	type logrusLogger struct{ l *logrus.Logger }
//	func (a logrusLogger) Debug(msg string, kv ...interface{}) { a.l.WithFields(fields(kv)).Debug(msg) }
//	...
//
//	prog := bootloader.New(transport, bootloader.WithLogger(logrusLogger{l}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a recoverable problem with optional key-value pairs
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
