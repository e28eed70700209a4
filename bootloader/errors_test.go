package bootloader

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/moffa90/go-otaflash/protocol"
	"github.com/pkg/errors"
)

func TestSendError(t *testing.T) {
	cause := errors.New("write failed")
	err := &SendError{
		State:    StateProgramming,
		Command:  protocol.CmdProgram,
		Attempts: 3,
		Err:      cause,
	}

	errMsg := err.Error()
	for _, want := range []string{"programming", "PROGRAM", "3 attempts", "write failed"} {
		if !strings.Contains(errMsg, want) {
			t.Errorf("error message should contain %q, got: %s", want, errMsg)
		}
	}

	if !errors.Is(err, cause) {
		t.Error("SendError should unwrap to its cause")
	}
}

func TestVerificationError(t *testing.T) {
	err := &VerificationError{Reason: "device rejected the image"}

	if !strings.Contains(err.Error(), "verification failed") {
		t.Errorf("error message should contain 'verification failed', got: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "device rejected the image") {
		t.Errorf("error message should contain reason, got: %s", err.Error())
	}
}

func TestRetransmitExhaustedError(t *testing.T) {
	err := &RetransmitExhaustedError{Passes: 32, Page: 17}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "32 passes") {
		t.Errorf("error message should contain pass count, got: %s", errMsg)
	}
	if !strings.Contains(errMsg, "page 17") {
		t.Errorf("error message should contain page, got: %s", errMsg)
	}
}

func TestCancelledError(t *testing.T) {
	err := error(&CancelledError{Err: context.DeadlineExceeded})

	if !errors.Is(err, ErrCancelled) {
		t.Error("CancelledError should match ErrCancelled")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("CancelledError should unwrap to the context error")
	}

	wrapped := errors.Wrap(err, "program")
	if !errors.Is(wrapped, ErrCancelled) {
		t.Error("wrapped CancelledError should match ErrCancelled")
	}
}

func TestDeviceError(t *testing.T) {
	err := &DeviceError{Command: protocol.CmdGetUUID, Result: protocol.StatusFailure}

	if !strings.Contains(err.Error(), "GET_UUID") {
		t.Errorf("error message should contain command, got: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "0x01") {
		t.Errorf("error message should contain result code, got: %s", err.Error())
	}
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Command: protocol.CmdGetUUID, Timeout: 5 * time.Second}

	if !strings.Contains(err.Error(), "5s") {
		t.Errorf("error message should contain timeout, got: %s", err.Error())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateErasing, "erasing"},
		{StateProgramming, "programming"},
		{StateVerifying, "verifying"},
		{StateSucceeded, "succeeded"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
