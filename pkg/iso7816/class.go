package iso7816

import (
	"fmt"

	"github.com/gregLibert/secure-element/pkg/bits"
)

// Class is the CLA byte (ISO/IEC 7816-4 section 5.4.1).
//
// Layout, bit 8 first:
//
//	0 0 x x c s s n n   first interindustry: SM on bits 4-3, channel 0-3 on bits 2-1
//	0 1 s c n n n n     further interindustry: SM on bit 6, channel 4-19 as n+4 on bits 4-1
//
// Bit 5 is command chaining in both. GlobalPlatform proprietary classes (bit 8 set) keep the same
// channel and chaining layout, which is why 0x80 and 0x00 take channels the same way.
type Class byte

const (
	ClassInterindustry Class = 0x00
	// ClassGlobalPlatform is the proprietary class used for GlobalPlatform card management commands.
	ClassGlobalPlatform Class = 0x80

	// MaxChannel is the highest logical channel number a CLA byte can address.
	MaxChannel = 19
)

// ParseClass validates a raw CLA byte. 0xFF is reserved for PPS and never a class.
func ParseClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return 0, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}
	return Class(cla), nil
}

// Proprietary reports whether bit 8 is set.
func (c Class) Proprietary() bool {
	return bits.IsSet(byte(c), 8)
}

func (c Class) further() bool {
	return bits.IsSet(byte(c), 7)
}

// Chained reports whether more commands of a chain follow.
func (c Class) Chained() bool {
	return bits.IsSet(byte(c), 5)
}

// Channel returns the logical channel number, 0 to 19.
func (c Class) Channel() uint8 {
	if c.further() {
		return bits.GetRange(byte(c), 4, 1) + 4
	}
	return bits.GetRange(byte(c), 2, 1)
}

// SecureMessaging reports whether the class announces secure messaging.
func (c Class) SecureMessaging() bool {
	if c.further() {
		return bits.IsSet(byte(c), 6)
	}
	return bits.GetRange(byte(c), 4, 3) != 0
}

// WithChannel returns c addressed to logical channel n, switching between the first and further
// encodings as needed. Secure messaging is only carried over when the target encoding can express it.
func (c Class) WithChannel(n uint8) (Class, error) {
	if n > MaxChannel {
		return c, fmt.Errorf("channel %d out of range (max %d)", n, MaxChannel)
	}
	b := byte(c)
	sm := c.SecureMessaging()

	if n <= 3 {
		b = bits.Clear(b, 7)
		if c.further() {
			// further SM bit maps to "ISO, header not processed" (10)
			b = bits.Clear(b, 6)
			b = bits.SetRange(b, 4, 1, 0)
			if sm {
				b = bits.SetRange(b, 4, 3, 0b10)
			}
		}
		b = bits.SetRange(b, 2, 1, n)
	} else {
		if !c.further() {
			smBits := bits.GetRange(b, 4, 3)
			if smBits == 0b01 || smBits == 0b11 {
				return c, fmt.Errorf("secure messaging mode %02b cannot be expressed on channel %d", smBits, n)
			}
			b = bits.Set(b, 7)
			b = bits.Clear(b, 6)
			if sm {
				b = bits.Set(b, 6)
			}
		}
		b = bits.SetRange(b, 4, 1, n-4)
	}
	return Class(b), nil
}

// WithChaining returns c with the chaining bit set or cleared.
func (c Class) WithChaining(more bool) Class {
	if more {
		return Class(bits.Set(byte(c), 5))
	}
	return Class(bits.Clear(byte(c), 5))
}

// Verbose returns a human-readable description of the CLA byte.
func (c Class) Verbose() string {
	kind := "Interindustry"
	if c.Proprietary() {
		kind = "Proprietary"
	}
	return fmt.Sprintf("CLA %02X | %s | Channel: %d | SM: %t | Chained: %t",
		byte(c), kind, c.Channel(), c.SecureMessaging(), c.Chained())
}
