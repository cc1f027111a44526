package streams

import (
	"errors"
	"io"
)

// ErrTruncated is returned by a CutoffStream whose upstream ended before
// producing the expected number of bytes.
var ErrTruncated = errors.New("stream ended before expected length")

// CutoffStream limits consumption of an upstream stream to exactly n bytes.
// Reading past n reports EOF without consuming more of the upstream; an
// upstream that ends early fails with ErrTruncated.
type CutoffStream struct {
	src       Stream
	remaining int64
	limit     int64
}

// NewCutoff caps src at n bytes.
func NewCutoff(src Stream, n int64) *CutoffStream {
	return &CutoffStream{src: src, remaining: n, limit: n}
}

func (c *CutoffStream) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.src.Read(p)
	c.remaining -= int64(n)
	if err == io.EOF && c.remaining > 0 {
		return n, ErrTruncated
	}
	return n, err
}

func (c *CutoffStream) Close() error { return c.src.Close() }

func (c *CutoffStream) Size() int64 { return c.limit }
