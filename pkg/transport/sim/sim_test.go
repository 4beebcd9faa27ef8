package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/secure-element/pkg/transport"
)

func openCard(t *testing.T) (*Card, transport.RawHandle) {
	t.Helper()
	c := New()
	h, err := c.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c, h
}

func TestCard_Respond(t *testing.T) {
	selectISD := append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(ISDAID))}, ISDAID...)

	tests := []struct {
		name string
		apdu []byte
		want []byte
	}{
		{"short", []byte{0x00, 0xA4}, []byte{0x67, 0x00}},
		{"select ISD", selectISD, withSW(ISDFCI, swOK)},
		{"select unknown", []byte{0x00, 0xA4, 0x04, 0x00, 0x02, 0xA0, 0x01}, []byte{0x6A, 0x82}},
		{"get CPLC", []byte{0x80, 0xCA, 0x9F, 0x7F, 0x00}, withSW(append([]byte{0x9F, 0x7F, 0x2A}, CPLC...), swOK)},
		{"get data unknown", []byte{0x80, 0xCA, 0x00, 0x66, 0x00}, []byte{0x6A, 0x88}},
		{"open channel", []byte{0x00, 0x70, 0x00, 0x00, 0x01}, []byte{0x01, 0x90, 0x00}},
		{"unknown INS", []byte{0x00, 0x12, 0x00, 0x00}, []byte{0x6D, 0x00}},
		{"closed channel", []byte{0x02, 0xA4, 0x04, 0x00}, []byte{0x68, 0x81}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, h := openCard(t)
			got, err := c.Transceive(context.Background(), h, tt.apdu)
			if err != nil {
				t.Fatalf("Transceive failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCard_GetResponseOnT0(t *testing.T) {
	c, h := openCard(t)
	c.T0 = true
	ctx := context.Background()

	sel := append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(ISDAID))}, ISDAID...)
	got, _ := c.Transceive(ctx, h, sel)
	if diff := cmp.Diff([]byte{0x61, byte(len(ISDFCI))}, got); diff != "" {
		t.Fatalf("select mismatch (-want +got):\n%s", diff)
	}

	got, _ = c.Transceive(ctx, h, []byte{0x00, 0xC0, 0x00, 0x00, byte(len(ISDFCI))})
	if diff := cmp.Diff(withSW(ISDFCI, swOK), got); diff != "" {
		t.Errorf("get response mismatch (-want +got):\n%s", diff)
	}
}

func TestCard_ManageChannel(t *testing.T) {
	c, h := openCard(t)
	ctx := context.Background()

	for want := byte(1); want <= 3; want++ {
		got, _ := c.Transceive(ctx, h, []byte{0x00, 0x70, 0x00, 0x00, 0x01})
		if got[0] != want {
			t.Fatalf("opened channel %d, want %d", got[0], want)
		}
	}
	if got, _ := c.Transceive(ctx, h, []byte{0x00, 0x70, 0x00, 0x00, 0x01}); !cmp.Equal(got, swNoChannel) {
		t.Errorf("fourth open = % X, want 6A81", got)
	}
	if got, _ := c.Transceive(ctx, h, []byte{0x00, 0x70, 0x80, 0x02}); !cmp.Equal(got, swOK) {
		t.Errorf("close channel 2 = % X", got)
	}
	if got, _ := c.Transceive(ctx, h, []byte{0x02, 0xCA, 0x9F, 0x7F, 0x00}); !cmp.Equal(got, swChannelClosed) {
		t.Errorf("closed channel answered % X", got)
	}
}

func TestCard_Faults(t *testing.T) {
	c, h := openCard(t)
	ctx := context.Background()

	c.FailNext(OpGetAtr, transport.ErrHardwareFault)
	if _, err := c.GetAtr(ctx, h); !errors.Is(err, transport.ErrHardwareFault) {
		t.Fatalf("expected injected fault, got %v", err)
	}
	if _, err := c.GetAtr(ctx, h); err != nil {
		t.Fatalf("fault should fire once, got %v", err)
	}

	c.FailNext(OpReset, transport.ErrTimeout)
	c.FailNext(OpReset, nil)
	if err := c.Reset(ctx, h); err != nil {
		t.Errorf("cleared fault still fired: %v", err)
	}

	c.Hang(OpTransceive)
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := c.Transceive(tctx, h, []byte{0x00, 0xA4, 0x04, 0x00}); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("hung call: expected timeout, got %v", err)
	}

	if n := c.Calls(OpGetAtr); n != 2 {
		t.Errorf("Calls(get_atr) = %d, want 2", n)
	}
}

func TestCard_StaleRawHandle(t *testing.T) {
	c, h := openCard(t)
	ctx := context.Background()

	if err := c.Disconnect(ctx, h); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if c.Connected() {
		t.Error("still connected")
	}
	if _, err := c.GetAtr(ctx, h); !errors.Is(err, transport.ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", err)
	}

	h2, err := c.Open(ctx)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if h2 == h {
		t.Errorf("raw handle 0x%X reused", h)
	}
}

func TestCard_ResponsesAreIndependent(t *testing.T) {
	c, h := openCard(t)
	ctx := context.Background()
	unknown := []byte{0x00, 0x12, 0x00, 0x00}

	first, err := c.Transceive(ctx, h, unknown)
	if err != nil {
		t.Fatalf("Transceive failed: %v", err)
	}
	first[0], first[1] = 0xFF, 0xFF

	second, err := c.Transceive(ctx, h, unknown)
	if err != nil {
		t.Fatalf("Transceive failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0x6D, 0x00}, second); diff != "" {
		t.Errorf("mutated response leaked into the next one (-want +got):\n%s", diff)
	}
}
