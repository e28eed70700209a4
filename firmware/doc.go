// Package firmware packages raw firmware images for over-the-air transfer.
//
// # Image Layout
//
// A raw image is never written on its own. Depending on its Kind it is
// preceded by a header the bootloader uses to validate and install it:
//
//	Primary (0x00280000), 32-byte type A header:
//	  [MAGIC(4)][VERSION(4)][SIZE(4)][CRC32(4)][FLAG(1)][PAD(3)][RESERVED(12)]
//
//	Secondary (0x00300000), 256-byte type B config block:
//	  [CRC16(2)][SIZE(4)][0xFF...]
//
// CRC32 is the IEEE reflected CRC; CRC16 is CRC-16/XMODEM. All integers are
// little-endian.
//
// # Chunking
//
// The header and image are concatenated and split into 128-byte chunks. The
// final chunk is padded with 0xFF and further all-0xFF chunks are appended
// until the count is a multiple of 8, since the device commits 1024 bytes at
// a time.
//
//	img, err := firmware.Package(data, firmware.Primary)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i, chunk := range img.Chunks {
//	    addr := img.ChunkAddress(i)
//	    ...
//	}
//
// # Sources
//
// Images are loaded through the Source interface. FileSource reads a file
// from disk and BytesSource serves an in-memory image:
//
//	data, err := firmware.FileSource("app.bin").Load()
package firmware
