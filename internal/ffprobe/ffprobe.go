// Package ffprobe extracts frame counts and stream metadata using ffprobe.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/logging"
	"github.com/five82/marlin/internal/video"
)

// DefaultCacheTTL is how long probe results are reused for an unchanged file.
const DefaultCacheTTL = 10 * time.Minute

// StreamInfo describes the first video stream of a file.
type StreamInfo struct {
	video.Info
	CodecName    string
	FrameRate    float64
	DurationSecs float64
	// Counted is set when the frame count required a full -count_frames pass.
	Counted bool
}

// ffprobeOutput represents the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	NbFrames     string `json:"nb_frames"`
	NbReadFrames string `json:"nb_read_frames"`
	RFrameRate   string `json:"r_frame_rate"`
	Duration     string `json:"duration"`
}

// Prober runs ffprobe and memoizes results per file version.
type Prober struct {
	binary string
	cache  *gocache.Cache
}

// NewProber creates a Prober executing binary ("ffprobe" when empty).
// Results are cached for ttl; a non-positive ttl disables caching.
func NewProber(binary string, ttl time.Duration) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	p := &Prober{binary: binary}
	if ttl > 0 {
		p.cache = gocache.New(ttl, 2*ttl)
	}
	return p
}

// Binary returns the ffprobe executable path.
func (p *Prober) Binary() string {
	return p.binary
}

// Probe returns the frame count and dimensions of the first video stream.
func (p *Prober) Probe(ctx context.Context, path string) (video.Info, error) {
	info, err := p.Stream(ctx, path)
	if err != nil {
		return video.Info{}, err
	}
	return info.Info, nil
}

// Stream returns the full metadata of the first video stream. When the
// container does not record nb_frames, frames are counted by decoding.
func (p *Prober) Stream(ctx context.Context, path string) (StreamInfo, error) {
	key, keyErr := cacheKey(path)
	if keyErr == nil && p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			return v.(StreamInfo), nil
		}
	}

	data, err := p.run(ctx, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return StreamInfo{}, merrors.NewProbeError(path, err)
	}
	probe, err := parseFFprobeOutput(data)
	if err != nil {
		return StreamInfo{}, merrors.NewProbeError(path, err)
	}
	info, err := streamInfo(probe)
	if err != nil {
		return StreamInfo{}, merrors.NewProbeError(path, err)
	}

	if info.TotalFrames <= 0 {
		logging.Debug("nb_frames missing, counting frames", "path", path)
		n, err := p.countFrames(ctx, path)
		if err != nil {
			return StreamInfo{}, merrors.NewProbeError(path, err)
		}
		info.TotalFrames = n
		info.Counted = true
	}

	if keyErr == nil && p.cache != nil {
		p.cache.SetDefault(key, info)
	}
	return info, nil
}

func (p *Prober) countFrames(ctx context.Context, path string) (int, error) {
	data, err := p.run(ctx,
		"-v", "quiet",
		"-print_format", "json",
		"-count_frames",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		path,
	)
	if err != nil {
		return 0, err
	}
	probe, err := parseFFprobeOutput(data)
	if err != nil {
		return 0, err
	}
	if len(probe.Streams) == 0 {
		return 0, fmt.Errorf("no video stream found")
	}
	n, err := strconv.Atoi(probe.Streams[0].NbReadFrames)
	if err != nil {
		return 0, fmt.Errorf("invalid nb_read_frames %q", probe.Streams[0].NbReadFrames)
	}
	return n, nil
}

func (p *Prober) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, p.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, merrors.WrapExecError(p.binary, err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}

// parseFFprobeOutput decodes ffprobe JSON output.
func parseFFprobeOutput(data []byte) (*ffprobeOutput, error) {
	var result ffprobeOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

// streamInfo extracts the first video stream. TotalFrames is 0 when the
// container does not record a frame count.
func streamInfo(probe *ffprobeOutput) (StreamInfo, error) {
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return StreamInfo{}, fmt.Errorf("invalid dimensions %dx%d", s.Width, s.Height)
		}

		info := StreamInfo{
			Info:      video.Info{Width: s.Width, Height: s.Height},
			CodecName: s.CodecName,
			FrameRate: parseRate(s.RFrameRate),
		}
		if n, err := strconv.Atoi(s.NbFrames); err == nil {
			info.TotalFrames = n
		}
		duration := s.Duration
		if duration == "" {
			duration = probe.Format.Duration
		}
		if d, err := strconv.ParseFloat(duration, 64); err == nil {
			info.DurationSecs = d
		}
		return info, nil
	}
	return StreamInfo{}, fmt.Errorf("no video stream found")
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// cacheKey identifies a file version by path, size, and modification time.
func cacheKey(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%d", path, st.Size(), st.ModTime().UnixNano()), nil
}
