package bootloader

import "context"

// Transport delivers frames to the device and reports inbound bytes.
//
// Send returns once the frame has been handed to the link (for BLE, after
// the write completes). The function passed to SetReceiver may be called
// from any goroutine with any slicing of the inbound stream; it must not be
// retained after SetReceiver is called again.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	SetReceiver(fn func(data []byte))
}

// inboundQueueSize bounds the deliveries buffered between the transport
// callback and the transfer goroutine.
const inboundQueueSize = 256
