/*
Package sim provides an in-memory Secure Element behind a transport.Channel.

The simulated SE answers a small APDU repertoire, enough to drive a session end to end:

  - SELECT by AID of the Issuer Security Domain returns a GlobalPlatform FCI (9000); other AIDs 6A82.
  - GET DATA 9F7F returns the Card Production Life Cycle data.
  - MANAGE CHANNEL opens channel 1..3 and closes them.
  - Anything shorter than a header answers 6700, unknown instructions 6D00.

With T0 set, SELECT answers 61XX and the FCI must be fetched with GET RESPONSE, as T=0 cards do.

Failures are injected per operation with FailNext (returned once) and Hang (the next call blocks
until its context ends).
*/
package sim

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/gregLibert/secure-element/pkg/transport"
)

// Op names a channel primitive for fault injection and call counting.
type Op string

const (
	OpOpen       Op = "open"
	OpDisconnect Op = "disconnect"
	OpActivate   Op = "activate"
	OpDeactivate Op = "deactivate"
	OpReset      Op = "reset"
	OpGetAtr     Op = "get_atr"
	OpTransceive Op = "transceive"
)

var (
	// DefaultATR is a JCOP-style answer to reset.
	DefaultATR = []byte{0x3B, 0x8A, 0x80, 0x01, 0x4A, 0x43, 0x4F, 0x50, 0x33, 0x31, 0x56, 0x32, 0x33, 0x32, 0x7A}

	// ISDAID is the GlobalPlatform Issuer Security Domain AID.
	ISDAID = []byte{0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00}

	// ISDFCI is returned by SELECT ISD.
	ISDFCI = []byte{
		0x6F, 0x32,
		0x84, 0x08, 0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00,
		0xA5, 0x26,
		0x73, 0x17,
		0x06, 0x07, 0x2A, 0x86, 0x48, 0x86, 0xFC, 0x6B, 0x01,
		0x60, 0x0C, 0x06, 0x0A, 0x2A, 0x86, 0x48, 0x86, 0xFC, 0x6B, 0x02, 0x02, 0x02, 0x01,
		0x9F, 0x6E, 0x06, 0x47, 0x91, 0x00, 0x78, 0x33, 0x00,
		0x9F, 0x65, 0x01, 0xFF,
	}

	// CPLC is the 42-byte Card Production Life Cycle value.
	CPLC = []byte{
		0x47, 0x90, // IC fabricator
		0x51, 0x67, // IC type
		0x47, 0x91, // OS identifier
		0x20, 0x83, // OS release date
		0x01, 0x20, // OS release level
		0x91, 0x55, // IC fabrication date
		0x00, 0x12, 0x34, 0x56, // IC serial number
		0x00, 0x01, // IC batch identifier
		0x48, 0x12, // IC module fabricator
		0x91, 0x60, // IC module packaging date
		0x00, 0x00, // ICC manufacturer
		0x91, 0x61, // IC embedding date
		0x00, 0x00, // IC pre-personalizer
		0x00, 0x00, // IC pre-perso equipment date
		0x00, 0x00, 0x00, 0x00, // IC pre-perso equipment ID
		0x00, 0x00, // IC personalizer
		0x00, 0x00, // IC personalization date
		0x00, 0x00, 0x00, 0x00, // IC perso equipment ID
	}
)

// Card is a simulated Secure Element. The zero value is not usable; call New.
type Card struct {
	// ATR is returned by GetAtr.
	ATR []byte
	// T0 makes SELECT answer 61XX so the caller has to issue GET RESPONSE.
	T0 bool

	mu       sync.Mutex
	raw      transport.RawHandle
	next     transport.RawHandle
	active   bool
	channels [4]bool
	pending  []byte
	faults   map[Op]error
	hangs    map[Op]bool
	calls    map[Op]int
	apdus    [][]byte
}

// New returns a powered, disconnected card.
func New() *Card {
	return &Card{
		ATR:    append([]byte(nil), DefaultATR...),
		raw:    transport.InvalidRawHandle,
		next:   0x4C0,
		faults: make(map[Op]error),
		hangs:  make(map[Op]bool),
		calls:  make(map[Op]int),
	}
}

// FailNext makes the next call of op return err. A nil err clears a pending failure.
func (c *Card) FailNext(op Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.faults, op)
		return
	}
	c.faults[op] = err
}

// Hang makes the next call of op block until its context is done.
func (c *Card) Hang(op Op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hangs[op] = true
}

// Calls returns how many times op reached the card, failed or not.
func (c *Card) Calls(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// APDUs returns a copy of every command APDU received.
func (c *Card) APDUs() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.apdus))
	for i, a := range c.apdus {
		out[i] = append([]byte(nil), a...)
	}
	return out
}

// Connected reports whether a controller connection is open.
func (c *Card) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw != transport.InvalidRawHandle
}

// Active reports whether the interface is activated.
func (c *Card) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// enter counts the call and applies injected behaviour. It returns with c.mu held
// unless it returns an error.
func (c *Card) enter(ctx context.Context, op Op) error {
	c.mu.Lock()
	c.calls[op]++

	if c.hangs[op] {
		delete(c.hangs, op)
		c.mu.Unlock()
		<-ctx.Done()
		return transport.FromContext(ctx, string(op))
	}
	if err, ok := c.faults[op]; ok {
		delete(c.faults, op)
		c.mu.Unlock()
		return err
	}
	if err := transport.FromContext(ctx, string(op)); err != nil {
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Card) checkRaw(op Op, h transport.RawHandle) error {
	if c.raw == transport.InvalidRawHandle || h != c.raw {
		return transport.Wrap(transport.ErrDisconnected, string(op), fmt.Errorf("raw handle 0x%X not connected", h))
	}
	return nil
}

func (c *Card) Open(ctx context.Context) (transport.RawHandle, error) {
	if err := c.enter(ctx, OpOpen); err != nil {
		return transport.InvalidRawHandle, err
	}
	defer c.mu.Unlock()

	if c.raw != transport.InvalidRawHandle {
		return transport.InvalidRawHandle, transport.Wrap(transport.ErrHardwareFault, string(OpOpen), fmt.Errorf("already connected"))
	}
	c.raw = c.next
	c.next++
	c.channels = [4]bool{true}
	return c.raw, nil
}

func (c *Card) Disconnect(ctx context.Context, h transport.RawHandle) error {
	if err := c.enter(ctx, OpDisconnect); err != nil {
		// The link is gone either way.
		c.mu.Lock()
		c.raw, c.active = transport.InvalidRawHandle, false
		c.mu.Unlock()
		return err
	}
	defer c.mu.Unlock()

	if err := c.checkRaw(OpDisconnect, h); err != nil {
		return err
	}
	c.raw, c.active, c.pending = transport.InvalidRawHandle, false, nil
	return nil
}

func (c *Card) Activate(ctx context.Context) error {
	if err := c.enter(ctx, OpActivate); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.active = true
	return nil
}

func (c *Card) Deactivate(ctx context.Context) error {
	if err := c.enter(ctx, OpDeactivate); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.active = false
	return nil
}

func (c *Card) Reset(ctx context.Context, h transport.RawHandle) error {
	if err := c.enter(ctx, OpReset); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := c.checkRaw(OpReset, h); err != nil {
		return err
	}
	c.active, c.pending = false, nil
	c.channels = [4]bool{true}
	return nil
}

func (c *Card) GetAtr(ctx context.Context, h transport.RawHandle) ([]byte, error) {
	if err := c.enter(ctx, OpGetAtr); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	if err := c.checkRaw(OpGetAtr, h); err != nil {
		return nil, err
	}
	return append([]byte(nil), c.ATR...), nil
}

func (c *Card) Transceive(ctx context.Context, h transport.RawHandle, data []byte) ([]byte, error) {
	if err := c.enter(ctx, OpTransceive); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	if err := c.checkRaw(OpTransceive, h); err != nil {
		return nil, err
	}
	c.apdus = append(c.apdus, append([]byte(nil), data...))
	return c.respond(data), nil
}

// Status words used by the simulator.
var (
	swOK            = []byte{0x90, 0x00}
	swWrongLength   = []byte{0x67, 0x00}
	swFileNotFound  = []byte{0x6A, 0x82}
	swRefNotFound   = []byte{0x6A, 0x88}
	swWrongP1P2     = []byte{0x6B, 0x00}
	swINSInvalid    = []byte{0x6D, 0x00}
	swNoChannel     = []byte{0x6A, 0x81}
	swChannelClosed = []byte{0x68, 0x81}
)

func (c *Card) respond(apdu []byte) []byte {
	if len(apdu) < 4 {
		return withSW(nil, swWrongLength)
	}
	cla, ins, p1, p2 := apdu[0], apdu[1], apdu[2], apdu[3]
	channel := cla & 0x03
	if !c.channels[channel] {
		return withSW(nil, swChannelClosed)
	}

	switch ins {
	case 0xA4: // SELECT
		if p1 != 0x04 || len(apdu) < 5 {
			return withSW(nil, swFileNotFound)
		}
		lc := int(apdu[4])
		if len(apdu) < 5+lc {
			return withSW(nil, swWrongLength)
		}
		if !bytes.Equal(apdu[5:5+lc], ISDAID) {
			return withSW(nil, swFileNotFound)
		}
		if c.T0 {
			c.pending = ISDFCI
			return []byte{0x61, byte(len(ISDFCI))}
		}
		return withSW(ISDFCI, swOK)

	case 0xC0: // GET RESPONSE
		if c.pending == nil {
			return withSW(nil, swWrongP1P2)
		}
		out := withSW(c.pending, swOK)
		c.pending = nil
		return out

	case 0xCA, 0xCB: // GET DATA
		if p1 == 0x9F && p2 == 0x7F {
			tlv := append([]byte{0x9F, 0x7F, byte(len(CPLC))}, CPLC...)
			return withSW(tlv, swOK)
		}
		return withSW(nil, swRefNotFound)

	case 0x70: // MANAGE CHANNEL
		switch p1 {
		case 0x00:
			for n := 1; n < len(c.channels); n++ {
				if !c.channels[n] {
					c.channels[n] = true
					return []byte{byte(n), 0x90, 0x00}
				}
			}
			return withSW(nil, swNoChannel)
		case 0x80:
			if p2 == 0 || int(p2) >= len(c.channels) || !c.channels[p2] {
				return withSW(nil, swWrongP1P2)
			}
			c.channels[p2] = false
			return withSW(nil, swOK)
		}
		return withSW(nil, swWrongP1P2)
	}
	return withSW(nil, swINSInvalid)
}

func withSW(data, sw []byte) []byte {
	out := make([]byte, 0, len(data)+len(sw))
	out = append(out, data...)
	return append(out, sw...)
}
