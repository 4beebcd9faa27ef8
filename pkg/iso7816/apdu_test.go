package iso7816

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/gregLibert/secure-element/pkg/tlv"
)

func TestCommandAPDU_Encoding(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *CommandAPDU
		expected []byte
	}{
		{
			name:     "Case 1: header only",
			cmd:      NewCommandAPDU(ClassGlobalPlatform, INS_MANAGE_CHANNEL, 0x80, 0x01, nil, 0),
			expected: tlv.Hex("80 70 80 01"),
		},
		{
			name:     "Case 2 short: Le = 256 encodes as 00",
			cmd:      NewCommandAPDU(ClassInterindustry, InsCode(0xB0), 0x00, 0x00, nil, MaxShortLe),
			expected: tlv.Hex("00 B0 00 00", "00"),
		},
		{
			name:     "Case 3 short",
			cmd:      NewCommandAPDU(ClassInterindustry, INS_SELECT, 0x04, 0x00, []byte{0xA0, 0x00}, 0),
			expected: tlv.Hex("00 A4 04 00", "02", "A0 00"),
		},
		{
			name:     "Case 4 short",
			cmd:      NewCommandAPDU(ClassGlobalPlatform, InsCode(0xF2), 0x80, 0x02, []byte{0x4F, 0x00}, 10),
			expected: tlv.Hex("80 F2 80 02", "02", "4F 00", "0A"),
		},
		{
			name:     "Case 3 extended: Nc > 255",
			cmd:      NewCommandAPDU(ClassInterindustry, InsCode(0xC2), 0x00, 0x00, make([]byte, 260), 0),
			expected: append(tlv.Hex("00 C2 00 00", "00 01 04"), make([]byte, 260)...),
		},
		{
			name:     "Case 2 extended: Le = 65536 encodes as 00 00 00",
			cmd:      NewCommandAPDU(ClassInterindustry, InsCode(0xB0), 0x00, 0x00, nil, MaxExtendedLe),
			expected: tlv.Hex("00 B0 00 00", "00 00 00"),
		},
		{
			name:     "Case 4 extended: Ne > 256 forces extended Lc",
			cmd:      NewCommandAPDU(ClassInterindustry, InsCode(0xCB), 0x3F, 0xFF, []byte{0x5C, 0x00}, 1024),
			expected: tlv.Hex("00 CB 3F FF", "00 00 02", "5C 00", "04 00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Encoding failed: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				gotHex := strings.ToUpper(hex.EncodeToString(got))
				wantHex := strings.ToUpper(hex.EncodeToString(tt.expected))
				if len(gotHex) > 50 {
					gotHex = gotHex[:20] + "..." + gotHex[len(gotHex)-10:]
					wantHex = wantHex[:20] + "..." + wantHex[len(wantHex)-10:]
				}
				t.Errorf("Mismatch\nExpected: %s\nGot:      %s", wantHex, gotHex)
			}
		})
	}
}

func TestCommandAPDU_EncodingErrors(t *testing.T) {
	tests := []struct {
		name string
		cmd  *CommandAPDU
	}{
		{"reserved CLA", NewCommandAPDU(0xFF, INS_SELECT, 0, 0, nil, 0)},
		{"procedure byte as INS", NewCommandAPDU(ClassInterindustry, 0x61, 0, 0, nil, 0)},
		{"9X INS", NewCommandAPDU(ClassInterindustry, 0x90, 0, 0, nil, 0)},
		{"data too long", NewCommandAPDU(ClassInterindustry, InsCode(0xC2), 0, 0, make([]byte, MaxExtendedLc+1), 0)},
		{"Ne too large", NewCommandAPDU(ClassInterindustry, InsCode(0xB0), 0, 0, nil, MaxExtendedLe+1)},
		{"negative Ne", NewCommandAPDU(ClassInterindustry, InsCode(0xB0), 0, 0, nil, -1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cmd.Bytes(); err == nil {
				t.Error("expected an encoding error")
			}
		})
	}
}

func TestParseResponseAPDU(t *testing.T) {
	resp, err := ParseResponseAPDU(tlv.Hex("01 02 03", "90 00"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !bytes.Equal(resp.Data, []byte{1, 2, 3}) {
		t.Errorf("Wrong data: % X", resp.Data)
	}
	if resp.Status != SW_NO_ERROR {
		t.Errorf("Wrong status: got %s, want 9000", resp.Status)
	}

	if _, err := ParseResponseAPDU([]byte{0x90}); err == nil {
		t.Error("Expected error for short response, got nil")
	}
}

func TestInsCode(t *testing.T) {
	if got := INS_SELECT.String(); got != "SELECT" {
		t.Errorf("INS_SELECT.String() = %q", got)
	}
	if got := InsCode(0x12).String(); got != "INS 12" {
		t.Errorf("unknown INS String() = %q", got)
	}
	// Only the instructions this module sends carry a name.
	named := map[InsCode]string{
		INS_MANAGE_CHANNEL: "MANAGE CHANNEL",
		INS_SELECT:         "SELECT",
		INS_GET_RESPONSE:   "GET RESPONSE",
		INS_GET_DATA:       "GET DATA",
		0xB0:               "INS B0",
		0xC2:               "INS C2",
		0xF2:               "INS F2",
	}
	for ins, want := range named {
		if got := ins.String(); got != want {
			t.Errorf("InsCode(%02X).String() = %q, want %q", byte(ins), got, want)
		}
	}
	for _, ins := range []InsCode{0x60, 0x6F, 0x90, 0x9F} {
		if ins.Valid() {
			t.Errorf("INS %02X should be invalid", byte(ins))
		}
	}
}
