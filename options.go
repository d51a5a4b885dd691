package marlin

import (
	"net/http"

	"github.com/five82/marlin/internal/config"
	"github.com/five82/marlin/internal/decode"
	"github.com/five82/marlin/internal/features"
	"github.com/five82/marlin/internal/ffprobe"
	"github.com/five82/marlin/internal/registry"
	"github.com/five82/marlin/internal/reporter"
	"github.com/five82/marlin/internal/video"
)

// settings holds the configuration and collaborators of a model. Options
// passed to ExtractVideo apply to a copy for that call only.
type settings struct {
	cfg           *config.Config
	source        video.Source
	extractor     features.Extractor
	reconstructor Reconstructor
	detector      features.FaceCropper
	reporter      reporter.Reporter
	client        *http.Client
	databasePath  string
	runID         string
	overwrite     bool
	recursive     bool
}

// Option configures a model or a single extraction.
type Option func(*settings)

func newSettings(opts []Option) settings {
	s := settings{cfg: config.NewConfig()}
	s = s.with(opts)
	if s.source == nil {
		prober := ffprobe.NewProber(s.cfg.FFprobePath(), ffprobe.DefaultCacheTTL)
		s.source = decode.NewPipeSource(prober, s.cfg.FFmpegPath())
	}
	return s
}

// with applies opts to a copy of s.
func (s settings) with(opts []Option) settings {
	cfg := *s.cfg
	s.cfg = &cfg
	for _, opt := range opts {
		opt(&s)
	}
	if s.reporter == nil {
		s.reporter = reporter.NullReporter{}
	}
	return s
}

func (s settings) downloader() *registry.Downloader {
	rep := s.reporter
	return &registry.Downloader{
		Client: s.client,
		Progress: func(url string, written, total int64) {
			rep.DownloadProgress(reporter.DownloadProgress{URL: url, Written: written, Total: total})
		},
	}
}

// WithSource sets the frame source. The default decodes through an ffmpeg
// rawvideo pipe and probes with ffprobe.
func WithSource(src Source) Option {
	return func(s *settings) {
		s.source = src
	}
}

// WithExtractor sets the encoder runtime used for feature extraction.
func WithExtractor(ex Extractor) Option {
	return func(s *settings) {
		s.extractor = ex
	}
}

// WithReconstructor sets the full model runtime used by Forward.
func WithReconstructor(r Reconstructor) Option {
	return func(s *settings) {
		s.reconstructor = r
	}
}

// WithFaceDetector sets the face detector used when face cropping is enabled.
func WithFaceDetector(d FaceDetector) Option {
	return func(s *settings) {
		s.detector = d
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(s *settings) {
		s.reporter = r
	}
}

// WithHTTPClient sets the client used for checkpoint and bundle downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.client = c
	}
}

// WithSampleRate keeps every n-th decoded frame of long videos.
func WithSampleRate(n int) Option {
	return func(s *settings) {
		s.cfg.SampleRate = n
	}
}

// WithStride sets the clip stride. It is validated but does not change
// which clips are emitted.
func WithStride(n int) Option {
	return func(s *settings) {
		s.cfg.Stride = n
	}
}

// WithReduction collapses the feature batch: "none", "mean", or "max".
func WithReduction(name string) Option {
	return func(s *settings) {
		s.cfg.Reduction = name
	}
}

// WithKeepSeq keeps one feature row per encoder token.
func WithKeepSeq(keep bool) Option {
	return func(s *settings) {
		s.cfg.KeepSeq = keep
	}
}

// WithCropFace crops the face out of every frame before extraction.
func WithCropFace(crop bool) Option {
	return func(s *settings) {
		s.cfg.CropFace = crop
	}
}

// WithFaceMissPolicy selects what happens to frames without a face:
// "resize" uses the whole frame, "fail" aborts.
func WithFaceMissPolicy(policy string) Option {
	return func(s *settings) {
		s.cfg.FaceMissPolicy = policy
	}
}

// WithDevice sets the compute device recorded for the model.
func WithDevice(device string) Option {
	return func(s *settings) {
		s.cfg.Device = device
	}
}

// WithDetectorDevice sets the face detector device. Empty means the model device.
func WithDetectorDevice(device string) Option {
	return func(s *settings) {
		s.cfg.DetectorDevice = device
	}
}

// WithCacheDir sets the directory for checkpoints and the face bundle.
func WithCacheDir(dir string) Option {
	return func(s *settings) {
		s.cfg.CacheDir = dir
	}
}

// WithFFmpegDir sets the directory holding the ffprobe and ffmpeg binaries.
func WithFFmpegDir(dir string) Option {
	return func(s *settings) {
		s.cfg.FFmpegDir = dir
	}
}

// WithRegistryURL sets the base URL of published checkpoints.
func WithRegistryURL(url string) Option {
	return func(s *settings) {
		s.cfg.RegistryBaseURL = url
	}
}

// WithDatabase also stores batch results in the SQLite database at path.
func WithDatabase(path string) Option {
	return func(s *settings) {
		s.databasePath = path
	}
}

// WithRunID tags stored batch results. A random id is used when unset.
func WithRunID(id string) Option {
	return func(s *settings) {
		s.runID = id
	}
}

// WithOverwrite re-extracts videos whose feature file already exists.
func WithOverwrite(overwrite bool) Option {
	return func(s *settings) {
		s.overwrite = overwrite
	}
}

// WithRecursive makes ExtractDirectory descend into subdirectories.
func WithRecursive(recursive bool) Option {
	return func(s *settings) {
		s.recursive = recursive
	}
}
