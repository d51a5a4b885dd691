package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/video"
)

// PipeSource decodes by reading packed RGB24 frames from an ffmpeg process.
type PipeSource struct {
	prober Prober
	binary string
}

// NewPipeSource creates a pipe source running binary ("ffmpeg" when empty).
func NewPipeSource(prober Prober, binary string) *PipeSource {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &PipeSource{prober: prober, binary: binary}
}

// Probe returns stream metadata from the prober.
func (s *PipeSource) Probe(ctx context.Context, path string) (video.Info, error) {
	return s.prober.Probe(ctx, path)
}

// ReadAll decodes every frame of the video.
func (s *PipeSource) ReadAll(ctx context.Context, path string) ([]video.Frame, error) {
	return ReadAll(ctx, path, s.Open)
}

// Open probes the frame size and starts ffmpeg writing rawvideo to stdout.
func (s *PipeSource) Open(ctx context.Context, path string) (video.Stream, error) {
	info, err := s.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	args := PipeArgs(path)
	cmd := exec.CommandContext(ctx, s.binary, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, merrors.NewCommandStartError(s.binary, err)
	}
	p := &pipeStream{
		ctx:    ctx,
		cmd:    cmd,
		out:    out,
		path:   path,
		width:  info.Width,
		height: info.Height,
		buf:    make([]byte, info.Width*info.Height*video.Channels),
	}
	cmd.Stderr = &p.stderr

	logging.Debug("starting ffmpeg pipe", "cmd", s.binary+" "+strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, merrors.NewCommandStartError(s.binary, err)
	}
	return p, nil
}

// PipeArgs returns the ffmpeg arguments that decode path to packed RGB24 on
// stdout.
func PipeArgs(path string) []string {
	return ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"f":       "rawvideo",
			"pix_fmt": "rgb24",
		}).
		GlobalArgs("-nostdin", "-v", "error").
		GetArgs()
}

type pipeStream struct {
	ctx    context.Context
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr bytes.Buffer
	path   string
	width  int
	height int
	buf    []byte
	done   bool
}

func (p *pipeStream) Next() (video.Frame, error) {
	if err := p.read(); err != nil {
		return video.Frame{}, err
	}
	return video.FrameFromRGB24(p.width, p.height, p.buf)
}

// Skip must still read the frame off the pipe.
func (p *pipeStream) Skip() error {
	return p.read()
}

func (p *pipeStream) read() error {
	if p.done {
		return io.EOF
	}
	_, err := io.ReadFull(p.out, p.buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if werr := p.wait(); werr != nil {
			return werr
		}
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		p.wait()
		return merrors.NewDecodeError(p.path, fmt.Errorf("truncated frame from ffmpeg"))
	default:
		p.wait()
		return merrors.NewDecodeError(p.path, err)
	}
}

// wait reaps ffmpeg after stdout closes and reports a failed exit.
func (p *pipeStream) wait() error {
	if p.done {
		return nil
	}
	p.done = true
	if err := p.cmd.Wait(); err != nil {
		if cerr := p.ctx.Err(); cerr != nil {
			return cerr
		}
		return merrors.NewDecodeError(p.path, merrors.WrapExecError(p.cmd.Path, err, strings.TrimSpace(p.stderr.String())))
	}
	return nil
}

func (p *pipeStream) Close() error {
	if p.done {
		return nil
	}
	p.done = true
	p.out.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.cmd.Wait()
	return nil
}
