package session

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/moffa90/go-otaflash/bootloader"
	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/simulator"
	"github.com/pkg/errors"
)

// recorder is a Sink that keeps every event in arrival order.
type recorder struct {
	mu       sync.Mutex
	order    []string
	progress []ProgressEvent
	results  []Result
	onResult func(Result)
}

func (r *recorder) OnProgress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, "progress")
	r.progress = append(r.progress, ev)
}

func (r *recorder) OnResult(res Result) {
	r.mu.Lock()
	r.order = append(r.order, "result")
	r.results = append(r.results, res)
	fn := r.onResult
	r.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}

func (r *recorder) snapshot() ([]string, []ProgressEvent, []Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...),
		append([]ProgressEvent(nil), r.progress...),
		append([]Result(nil), r.results...)
}

func fastOptions() Option {
	return WithProgrammerOptions(
		bootloader.WithRetryBackoff(time.Millisecond),
		bootloader.WithTimeout(50*time.Millisecond),
		bootloader.WithSettleInterval(5*time.Millisecond),
	)
}

func testImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i * 7)
	}
	return img
}

func TestNew_NilTransport(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New should panic with nil transport")
		}
	}()
	New(nil)
}

func TestSessionSuccess(t *testing.T) {
	dev := simulator.New()
	ctrl := New(dev, fastOptions())
	rec := &recorder{}
	ctrl.AddSink(rec)

	image := testImage(300)
	if err := ctrl.Start(firmware.BytesSource(image), firmware.Primary); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res := ctrl.Wait()
	if !res.Success || res.Cancelled || res.Err != nil {
		t.Fatalf("Wait() = %+v, want success", res)
	}
	if res.Message != "Firmware update complete" {
		t.Errorf("Message = %q", res.Message)
	}
	if ctrl.IsActive() {
		t.Error("IsActive() = true after Wait")
	}

	got, err := dev.Image(firmware.Primary)
	if err != nil {
		t.Fatalf("device image: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Error("device image does not match")
	}

	order, progress, results := rec.snapshot()
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if order[len(order)-1] != "result" {
		t.Errorf("last event = %q, want result", order[len(order)-1])
	}
	if len(progress) == 0 {
		t.Fatal("no progress events")
	}
	last := progress[len(progress)-1]
	if last.Percent != 100 || last.BytesTransferred != last.BytesTotal {
		t.Errorf("last progress = %+v, want 100%% and all bytes", last)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].Percent < progress[i-1].Percent {
			t.Errorf("progress went backwards: %.1f after %.1f", progress[i].Percent, progress[i-1].Percent)
		}
	}
}

func TestStartWhileActive(t *testing.T) {
	dev := simulator.New(simulator.WithLatency(20 * time.Millisecond))
	ctrl := New(dev, fastOptions())

	if err := ctrl.Start(firmware.BytesSource(testImage(300)), firmware.Primary); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !ctrl.IsActive() {
		t.Fatal("IsActive() = false after Start")
	}

	err := ctrl.Start(firmware.BytesSource(testImage(10)), firmware.Secondary)
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start() error = %v, want ErrSessionActive", err)
	}

	res := ctrl.Wait()
	if !res.Success {
		t.Fatalf("first session result = %+v, want success", res)
	}
	if _, err := dev.Image(firmware.Secondary); err == nil {
		t.Error("rejected session must not reach the device")
	}
}

func TestCancel(t *testing.T) {
	dev := simulator.New(simulator.WithLatency(10 * time.Millisecond))
	ctrl := New(dev, fastOptions())
	rec := &recorder{}
	ctrl.AddSink(rec)

	if err := ctrl.Start(firmware.BytesSource(testImage(4000)), firmware.Primary); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	ctrl.Cancel()
	ctrl.Cancel()

	res := ctrl.Wait()
	if res.Success || !res.Cancelled {
		t.Fatalf("result = %+v, want cancelled", res)
	}
	if !errors.Is(res.Err, bootloader.ErrCancelled) {
		t.Errorf("Err = %v, want ErrCancelled", res.Err)
	}
	if res.Message != "Firmware update cancelled" {
		t.Errorf("Message = %q", res.Message)
	}
	if ctrl.IsActive() {
		t.Error("IsActive() = true after cancelled session")
	}

	sent := len(dev.Frames())
	time.Sleep(30 * time.Millisecond)
	if len(dev.Frames()) != sent {
		t.Error("frames sent after cancellation")
	}

	_, _, results := rec.snapshot()
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestStartAfterCancelAndWait(t *testing.T) {
	dev := simulator.New(simulator.WithLatency(5 * time.Millisecond))
	ctrl := New(dev, fastOptions())

	if err := ctrl.Start(firmware.BytesSource(testImage(4000)), firmware.Primary); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	ctrl.Cancel()
	if res := ctrl.Wait(); !res.Cancelled {
		t.Fatalf("first result = %+v, want cancelled", res)
	}
	if ctrl.IsActive() {
		t.Fatal("IsActive() = true after Wait returned")
	}

	if err := ctrl.Start(firmware.BytesSource(testImage(300)), firmware.Primary); err != nil {
		t.Fatalf("Start() after cancel = %v, want nil", err)
	}
	if res := ctrl.Wait(); !res.Success {
		t.Errorf("second result = %+v, want success", res)
	}
}

func TestCancelIdle(t *testing.T) {
	ctrl := New(simulator.New())

	ctrl.Cancel()
	ctrl.Cancel()

	if ctrl.IsActive() {
		t.Error("IsActive() = true on idle controller")
	}
	if res := ctrl.Wait(); res != (Result{}) {
		t.Errorf("Wait() on idle controller = %+v, want zero", res)
	}
}

func TestVerificationGatesSuccess(t *testing.T) {
	tests := []struct {
		name string
		opts []simulator.Option
	}{
		{"no verify result", []simulator.Option{simulator.WithVerifyMode(simulator.VerifySilent)}},
		{"corrupt header", []simulator.Option{
			simulator.WithVerifyMode(simulator.VerifyHeaderReply),
			simulator.WithCorruptWrite(firmware.PrimaryBaseAddress),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := simulator.New(tt.opts...)
			ctrl := New(dev, fastOptions())

			if err := ctrl.Start(firmware.BytesSource(testImage(300)), firmware.Primary); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			res := ctrl.Wait()

			if res.Success || res.Cancelled {
				t.Fatalf("result = %+v, want failure", res)
			}
			var verr *bootloader.VerificationError
			if !errors.As(res.Err, &verr) {
				t.Errorf("Err = %v, want VerificationError", res.Err)
			}
			if dev.Resets() != 0 {
				t.Error("device reset after failed verification")
			}
		})
	}
}

func TestLoadFailure(t *testing.T) {
	dev := simulator.New()
	ctrl := New(dev, fastOptions())

	if err := ctrl.Start(firmware.BytesSource(nil), firmware.Primary); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := ctrl.Wait()

	if res.Success || res.Cancelled {
		t.Fatalf("result = %+v, want failure", res)
	}
	if !errors.Is(res.Err, firmware.ErrImageEmpty) {
		t.Errorf("Err = %v, want ErrImageEmpty", res.Err)
	}
	if len(dev.Frames()) != 0 {
		t.Errorf("device received %d frames", len(dev.Frames()))
	}
}

func TestStart_NilSource(t *testing.T) {
	ctrl := New(simulator.New())
	if err := ctrl.Start(nil, firmware.Primary); err == nil {
		t.Error("Start(nil) should fail")
	}
	if ctrl.IsActive() {
		t.Error("IsActive() = true after rejected Start")
	}
}

func TestSlowSinkDropsProgressKeepsResult(t *testing.T) {
	ctrl := New(simulator.New(), fastOptions(), WithEventQueueSize(1))

	var (
		mu       sync.Mutex
		progress int
		results  int
		after    bool
	)
	ctrl.AddSink(SinkFuncs{
		Progress: func(ProgressEvent) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			progress++
			if results > 0 {
				after = true
			}
			mu.Unlock()
		},
		Result: func(Result) {
			mu.Lock()
			results++
			mu.Unlock()
		},
	})

	if err := ctrl.Start(firmware.BytesSource(testImage(4000)), firmware.Primary); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := ctrl.Wait()
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if results != 1 {
		t.Errorf("results = %d, want 1", results)
	}
	if after {
		t.Error("progress delivered after result")
	}
	if progress == 0 {
		t.Error("no progress delivered")
	}
}

func TestStartFromResultSink(t *testing.T) {
	dev := simulator.New()
	ctrl := New(dev, fastOptions())

	restarted := make(chan error, 1)
	var once sync.Once
	ctrl.AddSink(&recorder{onResult: func(Result) {
		once.Do(func() {
			restarted <- ctrl.Start(firmware.BytesSource(testImage(10)), firmware.Secondary)
		})
	}})

	if err := ctrl.Start(firmware.BytesSource(testImage(300)), firmware.Primary); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case err := <-restarted:
		if err != nil {
			t.Fatalf("Start() from result sink error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("result not delivered")
	}

	if res := ctrl.Wait(); !res.Success {
		t.Fatalf("second session result = %+v, want success", res)
	}
	if _, err := dev.Image(firmware.Secondary); err != nil {
		t.Errorf("secondary image: %v", err)
	}
}
