// Package clip partitions videos of any length into fixed-length clips.
//
// Three regimes are selected from the probed frame count:
//
//   - short (total <= L): the whole video, padded by repeating its last frame
//   - medium (L < total <= L*rate): the first L decoded frames, no decimation
//   - long (total > L*rate): a single streaming pass through a sliding window
//     over every rate-th frame, followed by a tail flush of L/2 clips
//
// where L is the clip length and rate the sample rate.
package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/video"
)

// Regime identifies the segmentation strategy for a video.
type Regime int

const (
	// RegimeShort pads a video no longer than one clip.
	RegimeShort Regime = iota
	// RegimeMedium truncates a video shorter than one decimated clip span.
	RegimeMedium
	// RegimeLong streams a sliding window over the decimated video.
	RegimeLong
)

// String returns the regime name.
func (r Regime) String() string {
	switch r {
	case RegimeShort:
		return "short"
	case RegimeMedium:
		return "medium"
	case RegimeLong:
		return "long"
	default:
		return "unknown"
	}
}

// Params controls segmentation.
type Params struct {
	ClipLength int
	SampleRate int
	// Stride is validated but has no effect on emitted clips.
	Stride int
}

// Validate checks that every parameter is positive.
func (p Params) Validate() error {
	if p.ClipLength < 1 {
		return fmt.Errorf("clip length must be positive, got %d", p.ClipLength)
	}
	if p.SampleRate < 1 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Stride < 1 {
		return fmt.Errorf("stride must be positive, got %d", p.Stride)
	}
	return nil
}

// SelectRegime picks the segmentation regime for a frame count.
func SelectRegime(totalFrames, clipLength, sampleRate int) Regime {
	switch {
	case totalFrames <= clipLength:
		return RegimeShort
	case totalFrames <= clipLength*sampleRate:
		return RegimeMedium
	default:
		return RegimeLong
	}
}

// ExpectedClips returns how many clips a video of totalFrames frames yields,
// assuming the decoder delivers the probed count.
func ExpectedClips(totalFrames int, p Params) int {
	if SelectRegime(totalFrames, p.ClipLength, p.SampleRate) != RegimeLong {
		return 1
	}
	half := p.ClipLength / 2
	decimated := (totalFrames + p.SampleRate - 1) / p.SampleRate
	return max(decimated-half, 0) + half
}

// Plan is the probed metadata and chosen regime for one video.
type Plan struct {
	Path          string
	Info          video.Info
	Regime        Regime
	ExpectedClips int
}

// Segmenter produces clips from a frame source.
type Segmenter struct {
	src    video.Source
	params Params
}

// New creates a Segmenter.
func New(src video.Source, params Params) (*Segmenter, error) {
	if src == nil {
		return nil, errors.New("clip: nil frame source")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}
	return &Segmenter{src: src, params: params}, nil
}

// Params returns the segmentation parameters.
func (s *Segmenter) Params() Params {
	return s.params
}

// Plan probes the video and selects its regime.
func (s *Segmenter) Plan(ctx context.Context, path string) (Plan, error) {
	info, err := s.src.Probe(ctx, path)
	if err != nil {
		return Plan{}, err
	}
	regime := SelectRegime(info.TotalFrames, s.params.ClipLength, s.params.SampleRate)
	logging.Debug("planned clip segmentation",
		"path", path,
		"total_frames", info.TotalFrames,
		"regime", regime.String(),
		"clip_length", s.params.ClipLength,
		"sample_rate", s.params.SampleRate,
	)
	return Plan{
		Path:          path,
		Info:          info,
		Regime:        regime,
		ExpectedClips: ExpectedClips(info.TotalFrames, s.params),
	}, nil
}

// Segment probes the video and returns its clip sequence.
func (s *Segmenter) Segment(ctx context.Context, path string) iter.Seq2[video.Clip, error] {
	return func(yield func(video.Clip, error) bool) {
		plan, err := s.Plan(ctx, path)
		if err != nil {
			yield(nil, err)
			return
		}
		for c, err := range s.Clips(ctx, plan) {
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

// Clips returns the lazy, single-use clip sequence for a planned video. Every
// clip holds exactly ClipLength frames. An error is yielded at most once and
// ends the sequence. The decoder is released when the sequence ends, including
// when the consumer stops early.
func (s *Segmenter) Clips(ctx context.Context, plan Plan) iter.Seq2[video.Clip, error] {
	return func(yield func(video.Clip, error) bool) {
		if plan.Regime == RegimeLong {
			s.slide(ctx, plan, yield)
			return
		}
		c, err := s.whole(ctx, plan.Path)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(c, nil)
	}
}

// whole decodes the entire video and returns its first ClipLength frames,
// padding short decodes with the last frame.
func (s *Segmenter) whole(ctx context.Context, path string) (video.Clip, error) {
	frames, err := s.src.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, merrors.NewEmptyVideoError(path)
	}

	n := s.params.ClipLength
	frames = video.PadRepeatLast(frames, n)
	c := make(video.Clip, n)
	copy(c, frames[:n])
	return c, nil
}

func (s *Segmenter) slide(ctx context.Context, plan Plan, yield func(video.Clip, error) bool) {
	stream, err := s.src.Open(ctx, plan.Path)
	if err != nil {
		yield(nil, err)
		return
	}
	defer func() { _ = stream.Close() }()

	length := s.params.ClipLength
	half := length / 2
	lastEmit := plan.Info.TotalFrames + half - 1

	win := NewWindow(length)
	var last video.Frame
	index := -1

	for {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			yield(nil, err)
			return
		}
		index++
		last = frame

		// Center the first full window on the first sample. The window is
		// full once index reaches half, for odd lengths too.
		if index == 0 {
			for range length - half - 1 {
				win.Push(frame)
			}
		}

		if err := skipFrames(stream, s.params.SampleRate-1); err != nil {
			yield(nil, err)
			return
		}

		win.Push(frame)
		if index >= half && index <= lastEmit {
			if !yield(win.Snapshot(), nil) {
				return
			}
		}
	}

	if index < 0 {
		yield(nil, merrors.NewEmptyVideoError(plan.Path))
		return
	}

	if err := stream.Close(); err != nil {
		yield(nil, err)
		return
	}

	// Taper out so windows centered near the tail are still emitted.
	for range half {
		win.Push(last)
		for !win.Full() {
			win.Push(last)
		}
		if !yield(win.Snapshot(), nil) {
			return
		}
	}
}

func skipFrames(stream video.Stream, n int) error {
	for range n {
		if err := stream.Skip(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}
