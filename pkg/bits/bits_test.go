package bits

import "testing"

func TestBit(t *testing.T) {
	tests := []struct {
		n        uint
		expected byte
	}{
		{1, 0b0000_0001},
		{4, 0b0000_1000},
		{8, 0b1000_0000},
		{0, 0},
		{9, 0},
	}
	for _, tt := range tests {
		if got := Bit(tt.n); got != tt.expected {
			t.Errorf("Bit(%d) = %08b, want %08b", tt.n, got, tt.expected)
		}
	}
}

func TestIsSet(t *testing.T) {
	b := byte(0b1001_0010)
	for n, expected := range map[uint]bool{1: false, 2: true, 5: true, 8: true, 3: false} {
		if got := IsSet(b, n); got != expected {
			t.Errorf("IsSet(%08b, %d) = %v, want %v", b, n, got, expected)
		}
	}
}

func TestSet(t *testing.T) {
	if got := Set(0, 5); got != 0b0001_0000 {
		t.Errorf("Set(0, 5) = %08b", got)
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		b         byte
		high, low uint
		expected  byte
	}{
		{0b0000_1100, 4, 3, 0b11},
		{0b1100_0000, 8, 7, 0b11},
		{0b0000_0011, 2, 1, 0b11},
		{0b1111_1111, 4, 4, 0b1},
		{0b1111_1111, 3, 4, 0}, // inverted range
		{0b1111_1111, 9, 1, 0}, // out of range
	}
	for _, tt := range tests {
		if got := GetRange(tt.b, tt.high, tt.low); got != tt.expected {
			t.Errorf("GetRange(%08b, %d, %d) = %d, want %d", tt.b, tt.high, tt.low, got, tt.expected)
		}
	}
}
