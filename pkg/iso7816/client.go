package iso7816

import (
	"fmt"
)

// maxFollowUps bounds the GET RESPONSE / re-issue rounds for one logical command,
// so a card stuck answering 61XX cannot keep the client busy forever.
const maxFollowUps = 32

// Transmitter sends one raw C-APDU and returns the raw R-APDU.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client sends logical commands over a Transmitter and takes care of 61XX and 6CXX.
type Client struct {
	Card Transmitter
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits cmd and follows up on 61XX (GET RESPONSE) and 6CXX (re-issue with the right Le).
// The returned Trace holds every exchange, including the partial one when an error interrupts the
// sequence.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	next := cmd

	for round := 0; ; round++ {
		if round > maxFollowUps {
			return trace, fmt.Errorf("card still asking for follow-ups after %d rounds (last status %s)", maxFollowUps, trace.Status())
		}

		resp, err := c.exchange(next)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: next, Response: resp})

		sw1, sw2 := resp.Status.SW1(), resp.Status.SW2()
		switch sw1 {
		case 0x61:
			// GET RESPONSE stays on the channel of the original command.
			ne := int(sw2)
			if ne == 0 {
				ne = MaxShortLe
			}
			next = NewCommandAPDU(cmd.Class.WithChaining(false), INS_GET_RESPONSE, 0x00, 0x00, nil, ne)
		case 0x6C:
			retry := *next
			retry.Ne = int(sw2)
			if retry.Ne == 0 {
				retry.Ne = MaxShortLe
			}
			next = &retry
		default:
			return trace, nil
		}
	}
}

func (c *Client) exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}
	rawResp, err := c.Card.Transmit(raw)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}
	return ParseResponseAPDU(rawResp)
}
