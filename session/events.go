package session

import (
	"fmt"
	"time"

	"github.com/moffa90/go-otaflash/bootloader"
)

// ProgressEvent is published while a session runs.
type ProgressEvent struct {
	// State is the transfer state that produced the event
	State bootloader.State

	// Percent is the completion percentage (0.0 to 100.0)
	Percent float64

	// Message describes the current step
	Message string

	// Speed is the formatted send rate, empty until the first sample
	Speed string

	BytesTransferred int
	BytesTotal       int

	// ETA is the estimated time left in programming, zero when unknown
	ETA time.Duration
}

// Result is the terminal event of a session. It is always the last event a
// Sink receives for that session.
type Result struct {
	Success   bool
	Cancelled bool
	Message   string
	Err       error
	Elapsed   time.Duration
}

// Sink receives session events on the session's dispatcher goroutine.
// Implementations must not block.
type Sink interface {
	OnProgress(ProgressEvent)
	OnResult(Result)
}

// SinkFuncs adapts a pair of functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	Progress func(ProgressEvent)
	Result   func(Result)
}

func (f SinkFuncs) OnProgress(ev ProgressEvent) {
	if f.Progress != nil {
		f.Progress(ev)
	}
}

func (f SinkFuncs) OnResult(r Result) {
	if f.Result != nil {
		f.Result(r)
	}
}

// FormatSpeed renders a byte rate. It returns "" for a non-positive rate.
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond <= 0:
		return ""
	case bytesPerSecond < 1024:
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	case bytesPerSecond < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	default:
		return fmt.Sprintf("%.2f MB/s", bytesPerSecond/(1024*1024))
	}
}

// EstimateRemaining returns the time needed to send the remaining bytes at
// bytesPerSecond, rounded to the second. It returns 0 when the rate is unknown.
func EstimateRemaining(transferred, total int, bytesPerSecond float64) time.Duration {
	remaining := total - transferred
	if bytesPerSecond <= 0 || remaining <= 0 {
		return 0
	}
	secs := float64(remaining) / bytesPerSecond
	return time.Duration(secs * float64(time.Second)).Round(time.Second)
}

func newProgressEvent(p bootloader.Progress) ProgressEvent {
	ev := ProgressEvent{
		State:            p.State,
		Percent:          p.Percentage,
		Message:          p.Message,
		Speed:            FormatSpeed(p.BytesPerSecond),
		BytesTransferred: p.BytesTransferred,
		BytesTotal:       p.BytesTotal,
	}
	if p.State == bootloader.StateProgramming {
		ev.ETA = EstimateRemaining(p.BytesTransferred, p.BytesTotal, p.BytesPerSecond)
	}
	return ev
}
