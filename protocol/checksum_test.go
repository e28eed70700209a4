package protocol

import "testing"

func TestCalculateDCS(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty payload", nil, 0x00},
		{"lone byte", []byte{0x01}, 0xFF},
		{"wraps past 0xFF", []byte{0x80, 0x80, 0x01}, 0xFF},
		{"sums to zero", []byte{0xF0, 0x10}, 0x00},
		// SADDR TADDR SNQ RESET 00 00 with default addressing
		{"reset payload", []byte{
			0x05, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
			0x06, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
			0x01, 0xCA, 0x00, 0x00,
		}, 0x34},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateDCS(tt.data)
			if result != tt.expected {
				t.Errorf("CalculateDCS() = 0x%02X, want 0x%02X", result, tt.expected)
			}
			if !VerifyDCS(tt.data, result) {
				t.Errorf("VerifyDCS(%v, 0x%02X) = false, want true", tt.data, result)
			}
		})
	}
}

func TestVerifyDCSRejectsCorruption(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30}
	dcs := CalculateDCS(data)

	if VerifyDCS(data, dcs+1) {
		t.Error("VerifyDCS accepted a wrong checksum")
	}

	data[1] ^= 0x01
	if VerifyDCS(data, dcs) {
		t.Error("VerifyDCS accepted corrupted data")
	}
}

func TestCRC32(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint32
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x00000000,
		},
		{
			name:     "check value",
			data:     []byte("123456789"),
			expected: 0xCBF43926,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CRC32(tt.data)
			if result != tt.expected {
				t.Errorf("CRC32() = 0x%08X, want 0x%08X", result, tt.expected)
			}
		})
	}
}

func TestCRC16XModem(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x0000,
		},
		{
			name:     "single byte zero",
			data:     []byte{0x00},
			expected: 0x0000,
		},
		{
			name:     "single byte one",
			data:     []byte{0x01},
			expected: 0x1021,
		},
		{
			name:     "check value",
			data:     []byte("123456789"),
			expected: 0x31C3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CRC16XModem(tt.data)
			if result != tt.expected {
				t.Errorf("CRC16XModem() = 0x%04X, want 0x%04X", result, tt.expected)
			}
		})
	}
}

func BenchmarkCalculateDCS(b *testing.B) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CalculateDCS(data)
	}
}

func BenchmarkCRC16XModem(b *testing.B) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CRC16XModem(data)
	}
}
