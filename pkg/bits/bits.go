// Package bits reads and writes the 1-based bit positions used by ISO 7816 tables,
// where bit 8 is the most significant bit of a byte and bit 1 the least.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with bit n raised.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with bit n lowered.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

// mask returns the bits high..low in place, or 0 for a bad range.
func mask(high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}
	width := high - low + 1
	return byte((1<<width)-1) << (low - 1)
}

// GetRange extracts the value held in bits high..low.
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11).
func GetRange(b byte, high, low uint) byte {
	m := mask(high, low)
	if m == 0 {
		return 0
	}
	return (b & m) >> (low - 1)
}

// SetRange stores v in bits high..low, leaving the other bits of b untouched.
// Bits of v that do not fit the range are dropped.
// Example: SetRange(0b1000_0000, 2, 1, 3) returns 0b1000_0011.
func SetRange(b byte, high, low uint, v byte) byte {
	m := mask(high, low)
	if m == 0 {
		return b
	}
	return b&^m | (v<<(low-1))&m
}
