package arylic

// Cursor is a forward-only reader over a byte buffer. Reads never run past
// the end: a short read returns ok=false and leaves the position unchanged.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Next returns the next n bytes and advances past them.
func (c *Cursor) Next(n int) ([]byte, bool) {
	out, ok := c.Fetch(n)
	if ok {
		c.pos += n
	}
	return out, ok
}

// Fetch returns the next n bytes without advancing.
func (c *Cursor) Fetch(n int) ([]byte, bool) {
	if n < 0 || n > c.Remaining() {
		return nil, false
	}
	return c.buf[c.pos : c.pos+n], true
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Rest returns the unread bytes without advancing.
func (c *Cursor) Rest() []byte {
	return c.buf[c.pos:]
}
