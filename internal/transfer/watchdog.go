package transfer

import (
	"time"

	"github.com/floodgatehq/floodgate/internal/streams"
)

// watchdog aborts a transfer whose stream goes quiet. Every successful read
// rearms the timer; when it fires the transfer context is cancelled, which
// unwinds both the source read and the destination write.
type watchdog struct {
	src    streams.Stream
	timer  *time.Timer
	d      time.Duration
	onRead func(n int64)
}

func newWatchdog(src streams.Stream, d time.Duration, cancel func(), onRead func(n int64)) *watchdog {
	return &watchdog{
		src:    src,
		timer:  time.AfterFunc(d, cancel),
		d:      d,
		onRead: onRead,
	}
}

func (w *watchdog) Read(p []byte) (int, error) {
	n, err := w.src.Read(p)
	if n > 0 {
		w.timer.Reset(w.d)
		if w.onRead != nil {
			w.onRead(int64(n))
		}
	}
	return n, err
}

func (w *watchdog) Close() error {
	w.timer.Stop()
	return w.src.Close()
}

func (w *watchdog) Size() int64 { return w.src.Size() }
