// Package bootloader drives over-the-air firmware transfers to the target
// bootloader.
//
// # Overview
//
// This package orchestrates the complete transfer sequence:
//   - Erasing the 64 KiB blocks that will hold the image
//   - Programming 128-byte chunks, following the device's packet-loss reports
//   - Verifying the stored header
//   - Resetting the device into the new image
//
// # Basic Usage
//
// The simplest way to flash a device:
//
//	// User provides the link to the device (see transport/ble, transport/serial)
//	link, err := ble.Dial(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Load the raw image
//	data, err := firmware.FileSource("app.bin").Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	prog := bootloader.New(link)
//	err = prog.Program(context.Background(), data, firmware.Primary)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Packet Loss
//
// Chunks are sent back to back without waiting for per-chunk
// acknowledgements. When the device sees a page out of order it reports the
// page it expected; the programmer moves its cursor back to that page and
// starts a new pass. After every pass it waits a settle interval for late
// reports. Programming finishes when a pass settles without a report, and
// fails with RetransmitExhaustedError once MaxPasses passes in a row end in
// a report no further than the furthest one seen so far. Repeated
// reports for the same page within DuplicateGapWindow are ignored.
//
// # Progress Tracking
//
// Track progress with a callback:
//
//	prog := bootloader.New(link,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%% - page %d/%d\n",
//	            p.State, p.Percentage, p.CurrentPage, p.TotalPages)
//	    }),
//	)
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	prog := bootloader.New(link,
//	    bootloader.WithLogger(myLogger),
//	    bootloader.WithRetries(5),
//	    bootloader.WithEraseTimeout(20*time.Second),
//	    bootloader.WithVerifyTimeout(5*time.Second),
//	    bootloader.WithSettleInterval(time.Second),
//	    bootloader.WithMaxPasses(32),
//	)
//
// # Context Support
//
// All operations support context for cancellation and timeouts. A cancelled
// transfer returns an error matching ErrCancelled and sends nothing further:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
//	defer cancel()
//
//	err := prog.Program(ctx, data, firmware.Primary)
//	if errors.Is(err, bootloader.ErrCancelled) {
//	    ...
//	}
//
// # Error Handling
//
// The package provides structured error types:
//   - SendError: a frame could not be sent after all attempts
//   - VerificationError: the device did not confirm the image
//   - RetransmitExhaustedError: packet loss made no progress for MaxPasses passes
//   - DeviceError: a request was answered with a failure result
//   - TimeoutError: a reply did not arrive in time
//   - CancelledError: the context ended the operation
//
// A missing or negative erase confirmation is logged and does not fail the
// transfer; verification decides the outcome.
package bootloader
