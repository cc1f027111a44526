// Package streams provides the pull-based byte sources the gateway moves
// between backends. A Stream declares its size up front (possibly unknown) and
// is consumed exactly once unless it is explicitly restartable; composable
// wrappers add digesting, length capping and zip archiving. Consumers read
// only as fast as the destination accepts, so no wrapper buffers more than a
// chunk.
package streams

import (
	"io"
	"net/http"
	"strconv"
)

// SizeUnknown marks a stream whose total length is not known in advance.
const SizeUnknown int64 = -1

// Stream is a single-pass asynchronous byte source with a declared size.
type Stream interface {
	io.ReadCloser

	// Size returns the total number of bytes the stream will produce, or
	// SizeUnknown.
	Size() int64
}

// Restartable is implemented by streams that can be rewound and consumed
// again, such as spooled temporary files.
type Restartable interface {
	Restart() error
}

type reader struct {
	rc   io.ReadCloser
	size int64
}

// NewReader adapts a plain io.ReadCloser into a Stream with a declared size.
func NewReader(rc io.ReadCloser, size int64) Stream {
	return &reader{rc: rc, size: size}
}

func (r *reader) Read(p []byte) (int, error) { return r.rc.Read(p) }
func (r *reader) Close() error               { return r.rc.Close() }
func (r *reader) Size() int64                { return r.size }

// NewResponse adapts a backend HTTP response body into a Stream, taking the
// size from Content-Length when the backend declares one.
func NewResponse(resp *http.Response) Stream {
	size := SizeUnknown
	if resp.ContentLength >= 0 {
		size = resp.ContentLength
	} else if cl := resp.Header.Get("Content-Length"); cl != "" {
		if parsed, err := strconv.ParseInt(cl, 10, 64); err == nil {
			size = parsed
		}
	}
	return NewReader(resp.Body, size)
}
