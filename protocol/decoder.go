package protocol

// maxInboundPayload bounds the payload length accepted from the device.
// Larger declared lengths are treated as a corrupt preamble.
const maxInboundPayload = 1024

// maxPending bounds the bytes held while waiting for a split message.
const maxPending = 4 * (HeaderSize + maxInboundPayload + TrailerSize)

// Decoder turns the inbound byte stream into confirmations and reply frames.
//
// A transport delivery does not have to line up with a message: one delivery
// may carry several confirmations, and a confirmation or frame may be split
// across deliveries. Bytes that cannot start a valid message are discarded
// one at a time until the stream resynchronises. Malformed input is never
// returned.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	dropped int
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends data to the stream and returns every complete message.
func (d *Decoder) Feed(data []byte) []Inbound {
	d.buf = append(d.buf, data...)

	var out []Inbound
	for len(d.buf) > 0 {
		if d.buf[0] == Preamble0 {
			f, n, wait := d.nextFrame()
			if wait {
				break
			}
			if f == nil {
				d.discard(1)
				continue
			}
			out = append(out, Inbound{Frame: f})
			d.buf = d.buf[n:]
			continue
		}

		c, n, err := ParseConfirmation(d.buf)
		if err != nil {
			d.discard(1)
			continue
		}
		if n == 0 {
			break
		}
		conf := c
		out = append(out, Inbound{Confirmation: &conf})
		d.buf = d.buf[n:]
	}

	if len(d.buf) > maxPending {
		d.discard(len(d.buf))
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}

	return out
}

// nextFrame tries to decode a frame at the start of the buffer. wait is true
// when more bytes are needed; a nil frame with wait false means the bytes at
// the head cannot be a frame.
func (d *Decoder) nextFrame() (f *Frame, n int, wait bool) {
	if len(d.buf) < 3 {
		if len(d.buf) == 2 && d.buf[1] != Preamble1 {
			return nil, 0, false
		}
		return nil, 0, true
	}
	if d.buf[1] != Preamble1 || d.buf[2] != Preamble2 {
		return nil, 0, false
	}

	total := FrameLength(d.buf)
	if total == 0 {
		return nil, 0, true
	}
	if total-HeaderSize-TrailerSize > maxInboundPayload {
		return nil, 0, false
	}
	if len(d.buf) < total {
		return nil, 0, true
	}

	f, err := ParseFrame(d.buf[:total])
	if err != nil {
		return nil, 0, false
	}
	return f, total, false
}

func (d *Decoder) discard(n int) {
	d.dropped += n
	d.buf = d.buf[n:]
}

// Dropped returns the number of bytes discarded while resynchronising.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Pending returns the number of buffered bytes awaiting completion.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset discards any partially received message.
func (d *Decoder) Reset() {
	d.buf = nil
}
