package iso7816

import (
	"fmt"
)

// A Command APDU is a 4-byte header (CLA INS P1 P2) optionally followed by Lc, data and Le.
// Which of the four ISO 7816-3 cases applies follows from Nc (len(Data)) and Ne:
//
//	case 1: header
//	case 2: header | Le
//	case 3: header | Lc | data
//	case 4: header | Lc | data | Le
//
// Lc and Le are one byte each (short form) unless Nc > 255 or Ne > 256, in which case both switch
// to the extended form: Lc = 00 hi lo, Le = hi lo (or 00 hi lo when there is no Lc).
// In both forms an all-zero Le means the maximum, 256 or 65536.

const (
	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536
)

// InsCode is the INS byte.
type InsCode byte

// Instructions used against a Secure Element.
const (
	INS_MANAGE_CHANNEL InsCode = 0x70
	INS_SELECT         InsCode = 0xA4
	INS_GET_RESPONSE   InsCode = 0xC0
	INS_GET_DATA       InsCode = 0xCA
)

var insNames = map[InsCode]string{
	INS_MANAGE_CHANNEL: "MANAGE CHANNEL",
	INS_SELECT:         "SELECT",
	INS_GET_RESPONSE:   "GET RESPONSE",
	INS_GET_DATA:       "GET DATA",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INS %02X", byte(i))
}

// Valid reports whether i may appear in a command. 6X and 9X are procedure bytes under T=0.
func (i InsCode) Valid() bool {
	hi := byte(i) & 0xF0
	return hi != 0x60 && hi != 0x90
}

// CommandAPDU is a command sent to the card.
type CommandAPDU struct {
	Class  Class
	Ins    InsCode
	P1, P2 byte
	Data   []byte
	// Ne is the expected response length; 0 means no Le field.
	Ne int
}

// NewCommandAPDU creates a command.
func NewCommandAPDU(cla Class, ins InsCode, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{Class: cla, Ins: ins, P1: p1, P2: p2, Data: data, Ne: ne}
}

// Bytes encodes the command, choosing short or extended lengths from Nc and Ne.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	if byte(c.Class) == 0xFF {
		return nil, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}
	if !c.Ins.Valid() {
		return nil, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(c.Ins))
	}
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data length %d exceeds %d", nc, MaxExtendedLc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("Ne %d outside 0..%d", ne, MaxExtendedLe)
	}

	out := make([]byte, 0, 4+3+nc+3)
	out = append(out, byte(c.Class), byte(c.Ins), c.P1, c.P2)

	extended := nc > MaxShortLc || ne > MaxShortLe
	if nc > 0 {
		if extended {
			out = append(out, 0x00, byte(nc>>8), byte(nc))
		} else {
			out = append(out, byte(nc))
		}
		out = append(out, c.Data...)
	}

	if ne > 0 {
		switch {
		case !extended:
			// 256 wraps to 00
			out = append(out, byte(ne))
		default:
			if nc == 0 {
				out = append(out, 0x00)
			}
			// 65536 wraps to 00 00
			out = append(out, byte(ne>>8), byte(ne))
		}
	}
	return out, nil
}

// String summarises the command header and lengths.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | CLA: %02X, P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Ins, byte(c.Class), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is the card's reply: optional data followed by SW1 SW2.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into data and status word. raw must hold at least SW1 SW2.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}
	n := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:n],
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
