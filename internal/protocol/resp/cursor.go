package resp

import (
	"bytes"
	"io"
)

const (
	defaultCursorSize = 4096
	maxEmptyReads     = 100
)

// Cursor is a buffered reader over a byte stream that can rewind to the start
// of the frame being decoded. Bytes before the mark are released on the next
// refill; bytes after it are kept until Commit.
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	src  io.Reader
	buf  []byte
	off  int
	mark int
}

func NewCursor(src io.Reader) *Cursor {
	return &Cursor{
		src: src,
		buf: make([]byte, 0, defaultCursorSize),
	}
}

// Begin marks the current position as the start of a frame.
func (c *Cursor) Begin() {
	c.mark = c.off
}

// Rewind returns to the last mark so the frame can be read again.
func (c *Cursor) Rewind() {
	c.off = c.mark
}

// Commit releases everything read since Begin.
func (c *Cursor) Commit() {
	c.mark = c.off
}

// Buffered returns the number of unread bytes held in the cursor.
func (c *Cursor) Buffered() int {
	return len(c.buf) - c.off
}

// readLine returns the next line including its trailing LF. The returned
// slice aliases the cursor buffer and is valid until the next read.
func (c *Cursor) readLine(max int) ([]byte, error) {
	scanned := 0
	for {
		if i := bytes.IndexByte(c.buf[c.off+scanned:], '\n'); i >= 0 {
			end := c.off + scanned + i + 1
			if max > 0 && end-c.off > max+2 {
				return nil, limitError("line exceeds %d bytes", max)
			}
			line := c.buf[c.off:end]
			c.off = end
			return line, nil
		}
		scanned = len(c.buf) - c.off
		if max > 0 && scanned > max {
			return nil, limitError("line exceeds %d bytes", max)
		}
		if err := c.fill(1); err != nil {
			return nil, err
		}
	}
}

// readN returns exactly n bytes. The returned slice aliases the cursor
// buffer and is valid until the next read.
func (c *Cursor) readN(n int) ([]byte, error) {
	for len(c.buf)-c.off < n {
		if err := c.fill(n - (len(c.buf) - c.off)); err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	out := c.buf[c.off : c.off+n]
	c.off += n
	return out, nil
}

// fill reads at least one more byte from src, making room for want more.
func (c *Cursor) fill(want int) error {
	if c.mark > 0 {
		n := copy(c.buf, c.buf[c.mark:])
		c.buf = c.buf[:n]
		c.off -= c.mark
		c.mark = 0
	}
	if free := cap(c.buf) - len(c.buf); free < want || free == 0 {
		grow := max(want, cap(c.buf), defaultCursorSize)
		next := make([]byte, len(c.buf), len(c.buf)+grow)
		copy(next, c.buf)
		c.buf = next
	}
	for range maxEmptyReads {
		n, err := c.src.Read(c.buf[len(c.buf):cap(c.buf)])
		c.buf = c.buf[:len(c.buf)+n]
		if n > 0 {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}
