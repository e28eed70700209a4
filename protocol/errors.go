package protocol

import "fmt"

// FrameError describes why a byte sequence was rejected as a frame.
type FrameError struct {
	// Reason is a short description of the structural problem
	Reason string
}

func (e *FrameError) Error() string {
	return "invalid frame: " + e.Reason
}

// IsFrameError returns true if the error is a FrameError.
func IsFrameError(err error) bool {
	_, ok := err.(*FrameError)
	return ok
}

func frameErrorf(format string, args ...interface{}) error {
	return &FrameError{Reason: fmt.Sprintf(format, args...)}
}

// StatusName returns a human-readable name for a confirmation or reply status.
func StatusName(code byte) string {
	switch code {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("unknown status 0x%02X", code)
	}
}
