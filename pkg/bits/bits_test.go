package bits

import "testing"

func TestBit(t *testing.T) {
	tests := []struct {
		n        uint
		expected byte
	}{
		{1, 0x01}, {5, 0x10}, {8, 0x80},
		{0, 0x00}, {9, 0x00}, // out of range
	}

	for _, tt := range tests {
		if res := Bit(tt.n); res != tt.expected {
			t.Errorf("Bit(%d) = 0x%02X; want 0x%02X", tt.n, res, tt.expected)
		}
	}
}

func TestIsSet(t *testing.T) {
	val := byte(0b1010_0101)
	for n, want := range map[uint]bool{8: true, 7: false, 6: true, 1: true, 2: false} {
		if got := IsSet(val, n); got != want {
			t.Errorf("IsSet(0b%08b, %d) = %v; want %v", val, n, got, want)
		}
	}
}

func TestSetClear(t *testing.T) {
	b := Set(0, 5)
	if b != 0x10 {
		t.Errorf("Set(0, 5) = 0b%08b", b)
	}
	b = Set(b, 8)
	if b = Clear(b, 5); b != 0x80 {
		t.Errorf("Clear(5) = 0b%08b; want 0b10000000", b)
	}
	if Clear(b, 9) != b {
		t.Error("Clear with a bad position must not change the byte")
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		high     uint
		low      uint
		expected byte
	}{
		{"channel bits of 0x03", 0b0000_0011, 2, 1, 3},
		{"SM bits of 0x0C", 0b0000_1100, 4, 3, 3},
		{"further channel of 0x4F", 0b0100_1111, 4, 1, 15},
		{"top bits of 0x40", 0b0100_0000, 8, 7, 1},
		{"full byte", 0xAA, 8, 1, 0xAA},
		{"inverted range", 0xFF, 1, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := GetRange(tt.input, tt.high, tt.low); res != tt.expected {
				t.Errorf("GetRange(0x%02X, %d, %d) = %d; want %d", tt.input, tt.high, tt.low, res, tt.expected)
			}
		})
	}
}

func TestSetRange(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		high     uint
		low      uint
		v        byte
		expected byte
	}{
		{"channel 3 into GP class", 0x80, 2, 1, 3, 0x83},
		{"replace channel", 0x83, 2, 1, 1, 0x81},
		{"further channel offset", 0x40, 4, 1, 15, 0x4F},
		{"value wider than range", 0x00, 2, 1, 0xFF, 0x03},
		{"bad range", 0x12, 9, 1, 0xFF, 0x12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := SetRange(tt.input, tt.high, tt.low, tt.v); res != tt.expected {
				t.Errorf("SetRange(0x%02X, %d, %d, %d) = 0x%02X; want 0x%02X", tt.input, tt.high, tt.low, tt.v, res, tt.expected)
			}
		})
	}
}
