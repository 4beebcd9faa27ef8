package iso7816

import "fmt"

// MANAGE CHANNEL (INS 70): P1 = 00 opens, P1 = 80 closes the channel given in P2.
// Opening with P2 = 00 lets the card choose and return the number in a single data byte.

// ManageChannelOpen asks the card to open a new logical channel. It is sent on cla's channel.
func ManageChannelOpen(cla Class) *CommandAPDU {
	return NewCommandAPDU(cla, INS_MANAGE_CHANNEL, 0x00, 0x00, nil, 1)
}

// ManageChannelClose closes logical channel n. The basic channel 0 cannot be closed.
func ManageChannelClose(cla Class, n uint8) (*CommandAPDU, error) {
	if n == 0 || n > MaxChannel {
		return nil, fmt.Errorf("cannot close channel %d", n)
	}
	return NewCommandAPDU(cla, INS_MANAGE_CHANNEL, 0x80, n, nil, 0), nil
}

// OpenedChannel extracts the channel number from the answer to ManageChannelOpen.
func OpenedChannel(trace Trace) (uint8, error) {
	if err := trace.Err(); err != nil {
		return 0, err
	}
	data := trace.Data()
	if len(data) != 1 || data[0] == 0 || data[0] > MaxChannel {
		return 0, fmt.Errorf("unexpected MANAGE CHANNEL answer % X", data)
	}
	return data[0], nil
}
