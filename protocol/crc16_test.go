package protocol

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0xFFFF},
		{"check string", []byte("123456789"), 0x6F91},
		{"ack header 0x10", []byte{5, 0x10}, 0x9E81},
		{"ack header 0x11", []byte{5, 0x11}, 0x8F08},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CRC16(tc.data); got != tc.want {
				t.Errorf("CRC16 = %#04x, want %#04x", got, tc.want)
			}
		})
	}
}
