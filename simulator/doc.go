// Package simulator provides an in-process OTA target for tests and dry runs.
//
// A Device decodes the frames it is sent, keeps a sparse flash image,
// answers with the same confirmations and reply frames as the real
// bootloader and can inject link failures, lost pages and missing or
// negative confirmations:
//
//	dev := simulator.New(
//	    simulator.WithDroppedPage(5, 1),
//	    simulator.WithLatency(2*time.Millisecond),
//	)
//	prog := bootloader.New(dev)
//	err := prog.Program(ctx, image, firmware.Primary)
package simulator
