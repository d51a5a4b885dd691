// Package video defines decoded frames, clips, and the frame source contracts
// the clip segmenter consumes.
package video

import (
	"context"
	"fmt"
)

// Channels is the number of color channels in every frame (RGB).
const Channels = 3

// Frame is a decoded RGB frame in height-width-channel order with intensities
// normalized to [0,1].
type Frame struct {
	Width  int
	Height int
	Pix    []float32
}

// NewFrame allocates a black frame of the given size.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, Pix: make([]float32, width*height*Channels)}
}

// FrameFromRGB24 converts packed 8-bit RGB pixels into a normalized frame.
func FrameFromRGB24(width, height int, rgb []byte) (Frame, error) {
	if len(rgb) != width*height*Channels {
		return Frame{}, fmt.Errorf("rgb24 buffer has %d bytes, want %d for %dx%d", len(rgb), width*height*Channels, width, height)
	}
	f := NewFrame(width, height)
	for i, b := range rgb {
		f.Pix[i] = float32(b) / 255
	}
	return f, nil
}

// RGB24 converts the frame back to packed 8-bit RGB, clamping out-of-range values.
func (f Frame) RGB24() []byte {
	out := make([]byte, len(f.Pix))
	for i, v := range f.Pix {
		switch {
		case v <= 0:
			out[i] = 0
		case v >= 1:
			out[i] = 255
		default:
			out[i] = byte(v*255 + 0.5)
		}
	}
	return out
}

// SameSize reports whether the frame has the given spatial dimensions.
func (f Frame) SameSize(width, height int) bool {
	return f.Width == width && f.Height == height
}

// Clip is an ordered run of frames fed to the feature extractor as one unit.
type Clip []Frame

// Len returns the number of frames in the clip.
func (c Clip) Len() int {
	return len(c)
}

// Info is stream metadata obtained without decoding the video.
type Info struct {
	TotalFrames int
	Width       int
	Height      int
}

// Stream is a one-pass sequential frame reader. Next returns io.EOF once the
// stream is exhausted.
type Stream interface {
	// Next decodes and returns the next frame.
	Next() (Frame, error)
	// Skip advances past one frame without converting it.
	Skip() error
	// Close releases the decoder. It is safe to call more than once.
	Close() error
}

// Source provides frame counts, whole-video decodes, and sequential streams.
type Source interface {
	// Probe returns stream metadata without a full decode.
	Probe(ctx context.Context, path string) (Info, error)
	// ReadAll decodes every frame of the video.
	ReadAll(ctx context.Context, path string) ([]Frame, error)
	// Open starts a sequential decode of the video.
	Open(ctx context.Context, path string) (Stream, error)
}

// PadRepeatLast extends frames to length n by appending copies of the final
// frame. Inputs already n or longer are returned unchanged, and an empty input
// stays empty.
func PadRepeatLast(frames []Frame, n int) []Frame {
	if len(frames) == 0 || len(frames) >= n {
		return frames
	}
	out := make([]Frame, n)
	copy(out, frames)
	last := frames[len(frames)-1]
	for i := len(frames); i < n; i++ {
		out[i] = last
	}
	return out
}

// Tensor lays the clip out as a channel, time, height, width float32 tensor
// and returns the data with its shape. All frames must share one size.
func (c Clip) Tensor() ([]float32, [4]int64, error) {
	if len(c) == 0 {
		return nil, [4]int64{}, fmt.Errorf("empty clip")
	}
	w, h := c[0].Width, c[0].Height
	plane := w * h
	frameSize := plane * Channels
	t := len(c)
	out := make([]float32, Channels*t*plane)
	for ti, f := range c {
		if !f.SameSize(w, h) || len(f.Pix) != frameSize {
			return nil, [4]int64{}, fmt.Errorf("frame %d is %dx%d, want %dx%d", ti, f.Width, f.Height, w, h)
		}
		for p := range plane {
			for ch := range Channels {
				out[(ch*t+ti)*plane+p] = f.Pix[p*Channels+ch]
			}
		}
	}
	return out, [4]int64{Channels, int64(t), int64(h), int64(w)}, nil
}
