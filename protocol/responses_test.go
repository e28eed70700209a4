package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		cmd        Command
		addr       uint32
		data       []byte
		blockCount byte
		pageCount  byte
		pageNumber uint16
	}{
		{name: "reset", cmd: CmdReset},
		{name: "erase", cmd: CmdErase, addr: 0x00280000, blockCount: 16},
		{name: "program first page", cmd: CmdProgram, addr: 0x00280000, data: bytes.Repeat([]byte{0x11}, ChunkSize), pageCount: 1},
		{name: "program high page", cmd: CmdProgram, addr: 0x002A0000, data: bytes.Repeat([]byte{0xFF}, ChunkSize), pageCount: 1, pageNumber: 0x1234},
		{name: "program zeros", cmd: CmdProgram, addr: 0x00300000, data: make([]byte, ChunkSize), pageCount: 1, pageNumber: 0xFFFF},
		{name: "read header", cmd: CmdReadHeader, addr: 0x00300000},
		{name: "get uuid", cmd: CmdGetUUID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := Encode(tt.cmd, tt.addr, tt.data, tt.blockCount, tt.pageCount, tt.pageNumber)

			f, err := ParseFrame(frame)
			if err != nil {
				t.Fatalf("ParseFrame() error: %v", err)
			}

			if f.Command != tt.cmd {
				t.Errorf("Command = %v, want %v", f.Command, tt.cmd)
			}
			if f.PageNumber != tt.pageNumber {
				t.Errorf("PageNumber = %d, want %d", f.PageNumber, tt.pageNumber)
			}
			if f.Header != DefaultHeader() {
				t.Errorf("Header = %+v, want default", f.Header)
			}

			req, err := ParseRequest(f)
			if err != nil {
				t.Fatalf("ParseRequest() error: %v", err)
			}
			if req.Address != tt.addr {
				t.Errorf("Address = 0x%08X, want 0x%08X", req.Address, tt.addr)
			}
			if req.BlockCount != tt.blockCount {
				t.Errorf("BlockCount = %d, want %d", req.BlockCount, tt.blockCount)
			}
			if req.PageCount != tt.pageCount {
				t.Errorf("PageCount = %d, want %d", req.PageCount, tt.pageCount)
			}
			if !bytes.Equal(req.Data, tt.data) {
				t.Errorf("Data mismatch: got %d bytes, want %d", len(req.Data), len(tt.data))
			}
		})
	}
}

func TestParseFrameErrors(t *testing.T) {
	valid := BuildEraseCmd(DefaultHeader(), 0x00280000, 1)

	corrupt := func(mutate func([]byte) []byte) []byte {
		b := make([]byte, len(valid))
		copy(b, valid)
		return mutate(b)
	}

	tests := []struct {
		name   string
		frame  []byte
		errMsg string
	}{
		{
			name:   "too short",
			frame:  valid[:MinFrameSize-1],
			errMsg: "frame too short",
		},
		{
			name:   "bad preamble",
			frame:  corrupt(func(b []byte) []byte { b[2] = 0xFE; return b }),
			errMsg: "invalid preamble",
		},
		{
			name:   "length exceeds data",
			frame:  corrupt(func(b []byte) []byte { b[3] += 10; return b }),
			errMsg: "exceeds available",
		},
		{
			name:   "length below prefix",
			frame:  corrupt(func(b []byte) []byte { b[3] = 4; return b }),
			errMsg: "below minimum",
		},
		{
			name:   "bad end marker",
			frame:  corrupt(func(b []byte) []byte { b[len(b)-1] = 0x17; return b }),
			errMsg: "invalid end marker",
		},
		{
			name:   "checksum mismatch",
			frame:  corrupt(func(b []byte) []byte { b[HeaderSize+16] ^= 0x01; return b }),
			errMsg: "checksum mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame(tt.frame)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if f != nil {
				t.Error("frame returned alongside error")
			}
			if !IsFrameError(err) {
				t.Errorf("error type = %T, want *FrameError", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestParseFrameIgnoresTrailingBytes(t *testing.T) {
	frame := append(BuildResetCmd(DefaultHeader()), 0x01, 0x00)

	f, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Command != CmdReset {
		t.Errorf("Command = %v, want RESET", f.Command)
	}
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{name: "short erase", frame: &Frame{Command: CmdErase, Body: []byte{0, 0, 0, 0}}},
		{name: "short program", frame: &Frame{Command: CmdProgram, Body: []byte{0, 0}}},
		{name: "long read header", frame: &Frame{Command: CmdReadHeader, Body: make([]byte, 5)}},
		{name: "reset with body", frame: &Frame{Command: CmdReset, Body: []byte{1}}},
		{name: "unknown command", frame: &Frame{Command: Command(0x01)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRequest(tt.frame); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestReplyFrame(t *testing.T) {
	uuid := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	frame := BuildReplyFrame(DefaultHeader(), CmdGetUUID, StatusSuccess, 1, uuid)

	f, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Result() != StatusSuccess {
		t.Errorf("Result() = %d, want 0", f.Result())
	}
	if f.Count() != 1 {
		t.Errorf("Count() = %d, want 1", f.Count())
	}
	if !bytes.Equal(f.Body, uuid) {
		t.Errorf("Body = % X, want % X", f.Body, uuid)
	}
}

func TestParseConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Confirmation
		wantN   int
		wantErr bool
	}{
		{name: "erase ok", data: []byte{0x01, 0x00}, want: Confirmation{Phase: PhaseErase, Status: StatusSuccess}, wantN: 2},
		{name: "erase failed", data: []byte{0x01, 0x01}, want: Confirmation{Phase: PhaseErase, Status: StatusFailure}, wantN: 2},
		{name: "program ok", data: []byte{0x02, 0x00}, want: Confirmation{Phase: PhaseProgram}, wantN: 2},
		{name: "verify failed", data: []byte{0x03, 0x01}, want: Confirmation{Phase: PhaseVerify, Status: StatusFailure}, wantN: 2},
		{name: "packet loss", data: []byte{0x04, 0x34, 0x12}, want: Confirmation{Phase: PhasePacketLoss, Page: 0x1234}, wantN: 3},
		{name: "trailing bytes", data: []byte{0x03, 0x00, 0x01, 0x00}, want: Confirmation{Phase: PhaseVerify}, wantN: 2},
		{name: "incomplete status", data: []byte{0x01}, wantN: 0},
		{name: "incomplete loss", data: []byte{0x04, 0x01}, wantN: 0},
		{name: "empty", data: nil, wantN: 0},
		{name: "unknown tag", data: []byte{0x09, 0x00}, wantErr: true},
		{name: "bad status", data: []byte{0x01, 0x07}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, n, err := ParseConfirmation(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != tt.wantN {
				t.Errorf("n = %d, want %d", n, tt.wantN)
			}
			if n > 0 && c != tt.want {
				t.Errorf("confirmation = %+v, want %+v", c, tt.want)
			}
		})
	}
}

func TestBuildConfirmationRoundTrip(t *testing.T) {
	c, n, err := ParseConfirmation(BuildPacketLoss(513))
	if err != nil || n != PacketLossConfirmationSize {
		t.Fatalf("ParseConfirmation() = %d, %v", n, err)
	}
	if c.Page != 513 {
		t.Errorf("Page = %d, want 513", c.Page)
	}

	c, _, _ = ParseConfirmation(BuildConfirmation(PhaseVerify, StatusSuccess))
	if !c.OK() || c.Phase != PhaseVerify {
		t.Errorf("confirmation = %+v, want verify success", c)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"05:FF:FF:FF:FF:FF", DefaultSourceAddress, false},
		{"06ffffffffff", DefaultTargetAddress, false},
		{"01-02-03-04-05-06", Address{1, 2, 3, 4, 5, 6}, false},
		{" 0A:0B:0C:0D:0E:0F ", Address{0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}, false},
		{"05:FF:FF:FF:FF", Address{}, true},
		{"05:FF:FF:FF:FF:FF:00", Address{}, true},
		{"zz:FF:FF:FF:FF:FF", Address{}, true},
		{"", Address{}, true},
	}

	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if got, _ := ParseAddress(DefaultSourceAddress.String()); got != DefaultSourceAddress {
		t.Errorf("String/ParseAddress round trip = %v", got)
	}
}
