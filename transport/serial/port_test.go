package serial

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// pipeConn reads from a pipe fed by the test and records writes.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	chunk   int
	failErr error
}

func newPipeConn() *pipeConn {
	r, w := io.Pipe()
	return &pipeConn{r: r, w: w}
}

func (c *pipeConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *pipeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return 0, c.failErr
	}
	if c.chunk > 0 && len(p) > c.chunk {
		p = p[:c.chunk]
	}
	return c.written.Write(p)
}

func (c *pipeConn) Close() error {
	c.r.Close()
	return nil
}

func (c *pipeConn) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

func TestSend_PartialWrites(t *testing.T) {
	conn := newPipeConn()
	conn.chunk = 3
	p := New(conn)
	defer p.Close()

	frame := []byte{0x00, 0x00, 0xFF, 0x02, 0x00, 0xAA, 0xBB, 0x9B, 0x00}
	if err := p.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := conn.bytes(); !bytes.Equal(got, frame) {
		t.Errorf("written = % X, want % X", got, frame)
	}
}

func TestSend_Errors(t *testing.T) {
	conn := newPipeConn()
	cause := errors.New("device unplugged")
	conn.failErr = cause
	p := New(conn)

	if err := p.Send(context.Background(), []byte{1}); !errors.Is(err, cause) {
		t.Errorf("Send() error = %v, want wrapped cause", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Send(ctx, []byte{1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Send(context.Background(), []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestReceive(t *testing.T) {
	conn := newPipeConn()
	p := New(conn)
	defer p.Close()

	got := make(chan []byte, 4)
	p.SetReceiver(func(data []byte) {
		got <- append([]byte(nil), data...)
	})

	if _, err := conn.w.Write([]byte{0x04, 0x05, 0x00}); err != nil {
		t.Fatalf("pipe write: %v", err)
	}

	select {
	case data := <-got:
		if !bytes.Equal(data, []byte{0x04, 0x05, 0x00}) {
			t.Errorf("received % X", data)
		}
	case <-time.After(time.Second):
		t.Fatal("nothing received")
	}
}

func TestReadErrorFailsSend(t *testing.T) {
	conn := newPipeConn()
	p := New(conn)
	defer p.Close()

	cause := errors.New("framing error")
	conn.w.CloseWithError(cause)
	<-p.done

	if err := p.Send(context.Background(), []byte{1}); !errors.Is(err, cause) {
		t.Errorf("Send() error = %v, want read error", err)
	}
}
