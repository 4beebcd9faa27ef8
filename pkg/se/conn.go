package se

import "context"

// Conn binds a session handle to a context so APDU-level clients that expect a
// plain Transmit(cmd) method can drive the session.
type Conn struct {
	ctx     context.Context
	session *Session
	handle  Handle
}

// Conn returns a transmitter for h. Every Transmit goes through Transceive.
func (s *Session) Conn(ctx context.Context, h Handle) *Conn {
	return &Conn{ctx: ctx, session: s, handle: h}
}

func (c *Conn) Transmit(cmd []byte) ([]byte, error) {
	return c.session.Transceive(c.ctx, c.handle, cmd)
}
