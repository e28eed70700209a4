package bootloader

import (
	"fmt"
	"time"

	"github.com/moffa90/go-otaflash/protocol"
	"github.com/pkg/errors"
)

// ErrCancelled matches every error returned because the context was cancelled.
var ErrCancelled = errors.New("transfer cancelled")

// CancelledError is returned when the context ends a transfer.
// It matches ErrCancelled and unwraps to the context error.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("transfer cancelled: %v", e.Err)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// SendError indicates that a frame could not be sent after all attempts.
type SendError struct {
	State    State
	Command  protocol.Command
	Attempts int
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s send failed after %d attempts: %v",
		e.State, e.Command, e.Attempts, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// VerificationError indicates that the device did not confirm the image.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("firmware verification failed: %s", e.Reason)
}

// RetransmitExhaustedError indicates that gap reports kept arriving after
// the maximum number of programming passes.
type RetransmitExhaustedError struct {
	Passes int
	Page   int
}

func (e *RetransmitExhaustedError) Error() string {
	return fmt.Sprintf("packet loss persists after %d passes: device still expects page %d",
		e.Passes, e.Page)
}

// DeviceError indicates that the device answered a request with a failure result.
type DeviceError struct {
	Command protocol.Command
	Result  byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Command, protocol.StatusName(e.Result), e.Result)
}

// TimeoutError indicates that no reply arrived in time.
type TimeoutError struct {
	Command protocol.Command
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no %s reply within %s", e.Command, e.Timeout)
}
