package iso7816

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/secure-element/pkg/tlv"
)

// script answers each Transmit with the next canned response and records what it was sent.
type script struct {
	responses [][]byte
	sent      [][]byte
	err       error
}

func (s *script) Transmit(cmd []byte) ([]byte, error) {
	s.sent = append(s.sent, append([]byte(nil), cmd...))
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return []byte{0x6F, 0x00}, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func TestClient_Send(t *testing.T) {
	aid := tlv.Hex("A0 00 00 01 51 00 00 00")
	cls, _ := ClassInterindustry.WithChannel(2)

	tests := []struct {
		name      string
		cmd       *CommandAPDU
		responses [][]byte
		wantSent  [][]byte
		wantData  []byte
		wantSW    StatusWord
	}{
		{
			name:      "plain 9000",
			cmd:       SelectByAID(ClassInterindustry, aid),
			responses: [][]byte{tlv.Hex("6F 00", "90 00")},
			wantSent:  [][]byte{tlv.Hex("00 A4 04 00 08", "A0 00 00 01 51 00 00 00")},
			wantData:  tlv.Hex("6F 00"),
			wantSW:    SW_NO_ERROR,
		},
		{
			name:      "61XX fetched on the same channel",
			cmd:       SelectByAID(cls, aid),
			responses: [][]byte{tlv.Hex("61 02"), tlv.Hex("6F 00", "90 00")},
			wantSent: [][]byte{
				tlv.Hex("02 A4 04 00 08", "A0 00 00 01 51 00 00 00"),
				tlv.Hex("02 C0 00 00 02"),
			},
			wantData: tlv.Hex("6F 00"),
			wantSW:   SW_NO_ERROR,
		},
		{
			name:      "6CXX re-issued with the right Le",
			cmd:       NewCommandAPDU(ClassGlobalPlatform, INS_GET_DATA, 0x9F, 0x7F, nil, MaxShortLe),
			responses: [][]byte{tlv.Hex("6C 2D"), tlv.Hex("9F 7F 00", "90 00")},
			wantSent: [][]byte{
				tlv.Hex("80 CA 9F 7F 00"),
				tlv.Hex("80 CA 9F 7F 2D"),
			},
			wantData: tlv.Hex("9F 7F 00"),
			wantSW:   SW_NO_ERROR,
		},
		{
			name:      "error status is not an error return",
			cmd:       SelectByAID(ClassInterindustry, []byte{0xA0}),
			responses: [][]byte{tlv.Hex("6A 82")},
			wantSent:  [][]byte{tlv.Hex("00 A4 04 00 01 A0")},
			wantSW:    SW_ERR_FILE_NOT_FOUND,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := &script{responses: tt.responses}
			trace, err := NewClient(card).Send(tt.cmd)
			if err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			if diff := cmp.Diff(tt.wantSent, card.sent); diff != "" {
				t.Errorf("sent mismatch (-want +got):\n%s", diff)
			}
			if !bytes.Equal(trace.Data(), tt.wantData) {
				t.Errorf("Data() = % X, want % X", trace.Data(), tt.wantData)
			}
			if trace.Status() != tt.wantSW {
				t.Errorf("Status() = %s, want %s", trace.Status(), tt.wantSW)
			}
		})
	}
}

func TestClient_SendErrors(t *testing.T) {
	t.Run("transmit failure", func(t *testing.T) {
		boom := errors.New("link down")
		_, err := NewClient(&script{err: boom}).Send(SelectByAID(ClassInterindustry, []byte{0xA0}))
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped transmit error, got %v", err)
		}
	})

	t.Run("short response", func(t *testing.T) {
		card := &script{responses: [][]byte{{0x90}}}
		if _, err := NewClient(card).Send(SelectByAID(ClassInterindustry, []byte{0xA0})); err == nil {
			t.Error("expected a parse error")
		}
	})

	t.Run("endless 61XX", func(t *testing.T) {
		card := &script{}
		for i := 0; i < 100; i++ {
			card.responses = append(card.responses, tlv.Hex("61 10"))
		}
		trace, err := NewClient(card).Send(SelectByAID(ClassInterindustry, []byte{0xA0}))
		if err == nil {
			t.Fatal("expected the follow-up bound to trip")
		}
		if len(trace) != maxFollowUps+1 {
			t.Errorf("trace has %d transactions, want %d", len(trace), maxFollowUps+1)
		}
	})
}
