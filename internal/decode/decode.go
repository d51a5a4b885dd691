// Package decode holds the frame source helpers shared by decoders and the
// ffmpeg rawvideo pipe decoder.
package decode

import (
	"context"
	"errors"
	"io"

	"github.com/five82/marlin/internal/video"
)

// Prober returns stream metadata without decoding.
type Prober interface {
	Probe(ctx context.Context, path string) (video.Info, error)
}

// OpenFunc starts a sequential decode.
type OpenFunc func(ctx context.Context, path string) (video.Stream, error)

// ReadAll drains the stream returned by open and closes it on every path.
func ReadAll(ctx context.Context, path string, open OpenFunc) ([]video.Frame, error) {
	s, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var frames []video.Frame
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
}
