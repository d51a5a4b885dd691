package ffms

import (
	"context"
	"io"

	"github.com/five82/marlin/internal/decode"
	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/video"
)

// Source decodes through an FFMS2 index. Frame access is by index, so
// skipped frames are never converted.
type Source struct {
	prober  decode.Prober
	threads int
}

// NewSource creates an FFMS2 frame source.
func NewSource(prober decode.Prober, threads int) *Source {
	return &Source{prober: prober, threads: threads}
}

// Probe returns stream metadata from the prober.
func (s *Source) Probe(ctx context.Context, path string) (video.Info, error) {
	return s.prober.Probe(ctx, path)
}

// ReadAll decodes every frame of the video.
func (s *Source) ReadAll(ctx context.Context, path string) ([]video.Frame, error) {
	return decode.ReadAll(ctx, path, s.Open)
}

// Open indexes the video and starts a sequential decode.
func (s *Source) Open(ctx context.Context, path string) (video.Stream, error) {
	idx, err := OpenIndex(path)
	if err != nil {
		return nil, merrors.NewDecodeError(path, err)
	}
	inf, err := idx.Properties()
	if err != nil {
		idx.Close()
		return nil, merrors.NewDecodeError(path, err)
	}
	if inf.Frames == 0 {
		return &stream{ctx: ctx, path: path, idx: idx, inf: inf}, nil
	}
	src, err := idx.OpenRGB(inf, s.threads)
	if err != nil {
		idx.Close()
		return nil, merrors.NewDecodeError(path, err)
	}

	logging.Debug("ffms source opened", "path", path, "frames", inf.Frames, "width", inf.Width, "height", inf.Height, "fps", inf.FrameRate())
	return &stream{
		ctx:  ctx,
		path: path,
		idx:  idx,
		src:  src,
		inf:  inf,
		buf:  make([]byte, src.FrameSize()),
	}, nil
}

type stream struct {
	ctx  context.Context
	path string
	idx  *Index
	src  *RGBSource
	inf  Properties
	buf  []byte
	pos  int
}

func (s *stream) Next() (video.Frame, error) {
	if err := s.advance(); err != nil {
		return video.Frame{}, err
	}
	if err := s.src.ReadFrame(s.pos-1, s.buf); err != nil {
		return video.Frame{}, merrors.NewDecodeError(s.path, err)
	}
	return video.FrameFromRGB24(s.inf.Width, s.inf.Height, s.buf)
}

func (s *stream) Skip() error {
	return s.advance()
}

func (s *stream) advance() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.src == nil || s.pos >= s.inf.Frames {
		return io.EOF
	}
	s.pos++
	return nil
}

// Close releases the source and index.
func (s *stream) Close() error {
	if s.src != nil {
		s.src.Close()
	}
	if s.idx != nil {
		s.idx.Close()
	}
	return nil
}
