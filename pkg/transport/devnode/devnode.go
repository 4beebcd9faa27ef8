/*
Package devnode binds transport.Channel to an embedded SE character device (for example /dev/p73).

Every primitive is one request/response exchange of length-prefixed frames:

	request:  op(1) | len(2, big endian) | payload
	response: status(1) | len(2, big endian) | payload

Open answers with the 4-byte raw handle; Disconnect, Reset and GetAtr carry it in their request.
Reads are bounded by the context deadline with unix.Poll, and bytes left over from an abandoned
exchange are drained before the next request goes out.
*/
package devnode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/gregLibert/secure-element/pkg/transport"
)

// Request opcodes.
const (
	OpOpen       byte = 0x01
	OpDisconnect byte = 0x02
	OpActivate   byte = 0x03
	OpDeactivate byte = 0x04
	OpReset      byte = 0x05
	OpGetAtr     byte = 0x06
	OpTransceive byte = 0x07
)

// Response status codes.
const (
	StatusOK            byte = 0x00
	StatusTimeout       byte = 0x01
	StatusHardwareFault byte = 0x02
	StatusDisconnected  byte = 0x03
)

const (
	headerSize = 3
	// maxFrame is the largest payload a 16-bit length field describes.
	maxFrame = 0xFFFF
	// handleSize is the raw handle prefix of handle-bound requests.
	handleSize = 4
	// MaxPayload is the largest response payload the driver hands back.
	MaxPayload = 0x8800
	// pollSlice bounds a single poll so cancellation is noticed without a deadline.
	pollSlice = 50 * time.Millisecond
)

// Channel is a transport.Channel over an open character device.
type Channel struct {
	fd  int
	log zerolog.Logger

	mu    sync.Mutex
	rxBuf []byte
}

// Dial opens the device at path.
func Dial(path string, log zerolog.Logger) (*Channel, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	return NewFD(fd, log.With().Str("device", path).Logger()), nil
}

// NewFD wraps an already open, non-blocking descriptor. The channel owns fd from now on.
func NewFD(fd int, log zerolog.Logger) *Channel {
	return &Channel{
		fd:    fd,
		log:   log.With().Str("component", "devnode").Logger(),
		rxBuf: make([]byte, headerSize+MaxPayload),
	}
}

// Close releases the descriptor.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return unix.Close(c.fd)
}

func (c *Channel) Open(ctx context.Context) (transport.RawHandle, error) {
	resp, err := c.exchange(ctx, "open", OpOpen, nil)
	if err != nil {
		return transport.InvalidRawHandle, err
	}
	if len(resp) != 4 {
		return transport.InvalidRawHandle, transport.Wrap(transport.ErrMalformedResponse, "open",
			fmt.Errorf("handle is %d bytes", len(resp)))
	}
	return transport.RawHandle(int32(binary.BigEndian.Uint32(resp))), nil
}

func (c *Channel) Disconnect(ctx context.Context, h transport.RawHandle) error {
	_, err := c.exchange(ctx, "disconnect", OpDisconnect, handleBytes(h))
	return err
}

func (c *Channel) Activate(ctx context.Context) error {
	_, err := c.exchange(ctx, "activate", OpActivate, nil)
	return err
}

func (c *Channel) Deactivate(ctx context.Context) error {
	_, err := c.exchange(ctx, "deactivate", OpDeactivate, nil)
	return err
}

func (c *Channel) Reset(ctx context.Context, h transport.RawHandle) error {
	_, err := c.exchange(ctx, "reset", OpReset, handleBytes(h))
	return err
}

func (c *Channel) GetAtr(ctx context.Context, h transport.RawHandle) ([]byte, error) {
	return c.exchange(ctx, "get_atr", OpGetAtr, handleBytes(h))
}

func (c *Channel) Transceive(ctx context.Context, h transport.RawHandle, data []byte) ([]byte, error) {
	payload := append(handleBytes(h), data...)
	return c.exchange(ctx, "transceive", OpTransceive, payload)
}

// MaxTransceive is the largest command that fits a frame after the raw handle.
func (c *Channel) MaxTransceive() int { return maxFrame - handleSize }

func handleBytes(h transport.RawHandle) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(h))
}

// exchange writes one request frame and reads one response frame.
func (c *Channel) exchange(ctx context.Context, op string, code byte, payload []byte) ([]byte, error) {
	if len(payload) > maxFrame {
		return nil, transport.Wrap(transport.ErrHardwareFault, op, fmt.Errorf("payload of %d bytes does not fit a frame", len(payload)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := transport.FromContext(ctx, op); err != nil {
		return nil, err
	}
	if n := c.drain(); n > 0 {
		c.log.Warn().Int("bytes", n).Str("op", op).Msg("discarded stale response bytes")
	}

	frame := make([]byte, 0, headerSize+len(payload))
	frame = append(frame, code)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	if err := c.writeFull(ctx, op, frame); err != nil {
		return nil, err
	}

	hdr := c.rxBuf[:headerSize]
	if err := c.readFull(ctx, op, hdr); err != nil {
		return nil, err
	}
	status := hdr[0]
	n := int(binary.BigEndian.Uint16(hdr[1:]))
	if n > MaxPayload {
		return nil, transport.Wrap(transport.ErrMalformedResponse, op, fmt.Errorf("response length %d exceeds %d", n, MaxPayload))
	}
	body := c.rxBuf[headerSize : headerSize+n]
	if err := c.readFull(ctx, op, body); err != nil {
		return nil, err
	}

	c.log.Trace().Str("op", op).Hex("tx", payload).Uint8("status", status).Hex("rx", body).Msg("frame")

	switch status {
	case StatusOK:
		return append([]byte(nil), body...), nil
	case StatusTimeout:
		return nil, transport.Wrap(transport.ErrTimeout, op, nil)
	case StatusHardwareFault:
		return nil, transport.Wrap(transport.ErrHardwareFault, op, nil)
	case StatusDisconnected:
		return nil, transport.Wrap(transport.ErrDisconnected, op, nil)
	default:
		return nil, transport.Wrap(transport.ErrMalformedResponse, op, fmt.Errorf("unknown status 0x%02X", status))
	}
}

func (c *Channel) writeFull(ctx context.Context, op string, frame []byte) error {
	for off := 0; off < len(frame); {
		if err := transport.FromContext(ctx, op); err != nil {
			return err
		}
		n, err := unix.Write(c.fd, frame[off:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				if err := c.poll(ctx, op, unix.POLLOUT); err != nil {
					return err
				}
				continue
			}
			return writeError(op, err)
		}
		off += n
	}
	return nil
}

func (c *Channel) readFull(ctx context.Context, op string, buf []byte) error {
	for off := 0; off < len(buf); {
		if err := c.poll(ctx, op, unix.POLLIN); err != nil {
			return err
		}
		n, err := unix.Read(c.fd, buf[off:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return transport.Wrap(transport.ErrHardwareFault, op, err)
		}
		if n == 0 {
			if off == 0 {
				return transport.Wrap(transport.ErrDisconnected, op, io.EOF)
			}
			return transport.Wrap(transport.ErrMalformedResponse, op, io.ErrUnexpectedEOF)
		}
		off += n
	}
	return nil
}

// poll waits until fd is ready for events or ctx ends.
func (c *Channel) poll(ctx context.Context, op string, events int16) error {
	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: events}}
	for {
		if err := transport.FromContext(ctx, op); err != nil {
			return err
		}
		wait := pollSlice
		if deadline, ok := ctx.Deadline(); ok {
			if until := time.Until(deadline); until < wait {
				wait = until
			}
		}
		timeoutMs := int(wait / time.Millisecond)
		if timeoutMs < 1 {
			timeoutMs = 1
		}

		n, err := unix.Poll(pfd, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return transport.Wrap(transport.ErrHardwareFault, op, err)
		}
		if n == 0 {
			continue
		}
		rev := pfd[0].Revents
		if rev&events != 0 {
			return nil
		}
		if rev&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return transport.Wrap(transport.ErrDisconnected, op, fmt.Errorf("poll revents 0x%X", rev))
		}
	}
}

// drain discards whatever is readable right now and returns how many bytes were dropped.
func (c *Channel) drain() int {
	total := 0
	buf := c.rxBuf
	for {
		pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, 0)
		if err != nil || n == 0 || pfd[0].Revents&unix.POLLIN == 0 {
			return total
		}
		r, err := unix.Read(c.fd, buf)
		if err != nil || r <= 0 {
			return total
		}
		total += r
	}
}

func writeError(op string, err error) error {
	if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ENXIO) || errors.Is(err, unix.ENODEV) {
		return transport.Wrap(transport.ErrDisconnected, op, err)
	}
	return transport.Wrap(transport.ErrHardwareFault, op, err)
}
