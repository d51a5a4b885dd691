package clip

import (
	"github.com/emirpasic/gods/queues/circularbuffer"

	"github.com/five82/marlin/internal/video"
)

// Window holds at most Cap() of the most recent frames. Pushing onto a full
// window evicts the oldest frame.
type Window struct {
	buf      *circularbuffer.Queue
	capacity int
}

// NewWindow creates an empty window. Capacity must be positive.
func NewWindow(capacity int) *Window {
	return &Window{
		buf:      circularbuffer.New(capacity),
		capacity: capacity,
	}
}

// Push appends a frame, evicting the oldest one when the window is full.
func (w *Window) Push(f video.Frame) {
	w.buf.Enqueue(f)
}

// Len returns the number of buffered frames.
func (w *Window) Len() int {
	return w.buf.Size()
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return w.capacity
}

// Full reports whether the window holds Cap() frames.
func (w *Window) Full() bool {
	return w.buf.Full()
}

// Snapshot returns the buffered frames oldest first. Frame pixel data is
// shared with the window, not copied.
func (w *Window) Snapshot() video.Clip {
	values := w.buf.Values()
	c := make(video.Clip, len(values))
	for i, v := range values {
		c[i] = v.(video.Frame)
	}
	return c
}
